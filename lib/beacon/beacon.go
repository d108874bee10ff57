// Package beacon receives the datagrams of the server's broadcast channel.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"golang.org/x/net/ipv4"
)

// MaxDatagramSize is the largest datagram the broadcast channel accepts.
const MaxDatagramSize = 1 << 16

var ErrNotListening = errors.New("beacon is not listening")

type Beacon interface {
	Listen() error
	Read() (data []byte, addr net.Addr, err error)
	LocalAddr() net.Addr
	Address() net.IP
	Close() error
}

// New creates a Beacon for the given destination address.
// A multicast address is joined on iface (nil lets the kernel choose),
// any other address is treated as the broadcast address of the local network.
func New(ctx context.Context, port int, address net.IP, iface *net.Interface) Beacon {
	ctx, cancel := context.WithCancel(ctx)
	return &beacon{
		port:    port,
		address: address,
		iface:   iface,
		ctx:     ctx,
		cancel:  cancel,
		log:     log.New(log.Writer(), "beacon: ", log.Flags()),
	}
}

type beacon struct {
	port    int
	address net.IP
	iface   *net.Interface
	raw     net.PacketConn
	conn    *ipv4.PacketConn
	ctx     context.Context
	cancel  context.CancelFunc
	log     *log.Logger
}

func (b *beacon) Listen() (err error) {
	b.raw, err = net.ListenPacket("udp4", fmt.Sprintf(":%d", b.port))
	if err != nil {
		return
	}
	b.conn = ipv4.NewPacketConn(b.raw)
	if b.address.IsMulticast() {
		err = b.conn.JoinGroup(b.iface, &net.UDPAddr{IP: b.address})
		if err != nil {
			_ = b.raw.Close()
			return fmt.Errorf("join multicast group %v: %w", b.address, err)
		}
	}
	if e := b.conn.SetControlMessage(ipv4.FlagDst, true); e != nil {
		// Without destination info every datagram on the port is accepted.
		b.log.Println("listen: destination filtering unavailable:", e)
	}
	go func() {
		<-b.ctx.Done()
		if b.address.IsMulticast() {
			_ = b.conn.LeaveGroup(b.iface, &net.UDPAddr{IP: b.address})
		}
		_ = b.raw.Close()
	}()
	return
}

// Read blocks until a datagram addressed to the beacon's address arrives.
func (b *beacon) Read() (data []byte, addr net.Addr, err error) {
	if b.conn == nil {
		err = ErrNotListening
		return
	}
	buf := make([]byte, MaxDatagramSize)
	for {
		n, cm, src, e := b.conn.ReadFrom(buf)
		if e != nil {
			if b.ctx.Err() != nil {
				e = net.ErrClosed
			}
			err = e
			return
		}
		if cm != nil && cm.Dst != nil && !b.accepts(cm.Dst) {
			continue
		}
		data = make([]byte, n)
		copy(data, buf[:n])
		addr = src
		return
	}
}

func (b *beacon) accepts(dst net.IP) bool {
	return dst.Equal(b.address) || dst.Equal(net.IPv4bcast)
}

func (b *beacon) LocalAddr() net.Addr {
	if b.raw == nil {
		return nil
	}
	return b.raw.LocalAddr()
}

func (b *beacon) Address() net.IP {
	return b.address
}

func (b *beacon) Close() error {
	b.cancel()
	return nil
}
