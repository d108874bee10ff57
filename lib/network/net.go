// Package network enumerates the local IPv4 networks the broadcast channel can listen on.
package network

import (
	"encoding/binary"
	"errors"
	"net"
)

var ErrNoBroadcastNetwork = errors.New("no up and broadcast capable IPv4 network")

type Net struct {
	net.IPNet
	Interface net.Interface
}

func (n *Net) has(flag net.Flags) bool {
	return n.Interface.Flags&flag != 0
}

func (n *Net) IsUp() bool        { return n.has(net.FlagUp) }
func (n *Net) IsLoopback() bool  { return n.has(net.FlagLoopback) }
func (n *Net) IsBroadcast() bool { return n.has(net.FlagBroadcast) }
func (n *Net) IsMulticast() bool { return n.has(net.FlagMulticast) }

// BroadcastIp computes the directed broadcast address of an IPv4 network.
func (n *Net) BroadcastIp() (ip net.IP, err error) {
	ip4 := n.IP.To4()
	if ip4 == nil {
		err = errors.New("not an IPv4 address")
		return
	}
	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		err = errors.New("mask is not 4 bytes long")
		return
	}
	ip = make(net.IP, net.IPv4len)
	addr := binary.BigEndian.Uint32(ip4)
	bits := binary.BigEndian.Uint32(mask)
	binary.BigEndian.PutUint32(ip, addr|^bits)
	return
}

// Interfaces lists the IPv4 networks of every interface that is up.
func Interfaces() (present []Net, err error) {
	ins, err := net.Interfaces()
	if err != nil {
		return
	}
	present = make([]Net, 0, 8)
	for _, in := range ins {
		if in.Flags&net.FlagUp == 0 {
			continue
		}
		var inAddrs []net.Addr
		inAddrs, err = in.Addrs()
		if err != nil {
			return
		}
		for _, inAddr := range inAddrs {
			addr, ok := inAddr.(*net.IPNet)
			if !ok || addr.IP.To4() == nil {
				continue
			}
			present = append(present, Net{IPNet: *addr, Interface: in})
		}
	}
	return
}

// FirstBroadcast picks the first non-loopback network that supports broadcasting.
func FirstBroadcast(nets []Net) (Net, error) {
	for _, n := range nets {
		if n.IsUp() && n.IsBroadcast() && !n.IsLoopback() {
			return n, nil
		}
	}
	return Net{}, ErrNoBroadcastNetwork
}
