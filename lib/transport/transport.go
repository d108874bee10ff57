// Package transport owns the command and broadcast channels to the central determination server.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"cds/client/lib/beacon"
	"cds/client/lib/device"
	"cds/client/lib/event"
	"cds/client/lib/network"
	"cds/client/lib/secure"
	"cds/client/lib/wire"
	"golang.org/x/sync/errgroup"
)

var ErrNotConnected = errors.New("command channel is not connected")

type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

type Config struct {
	Host string
	Port int

	// BroadcastPort is the UDP port of the broadcast channel.
	BroadcastPort int
	// BroadcastGroup is the multicast group of the broadcast channel.
	// If empty the broadcast address of the first suitable interface is used.
	BroadcastGroup string

	HeartbeatInterval time.Duration

	// ServerKey is the X25519 static key of the server.
	// If empty the command channel is not encrypted.
	ServerKey []byte
	KeyPair   device.KeyPair
}

type Dialer interface {
	DialContext(ctx context.Context, network string, address string) (net.Conn, error)
}

// Handler receives every message read from either channel.
type Handler func(message wire.Message)

// Heartbeat sends a no-op request to the server.
type Heartbeat func(ctx context.Context) error

// Firewall opens the broadcast port in the host firewall.
type Firewall func(port int) error

var firewallOnce sync.Once

type Transport struct {
	config    Config
	events    event.Publisher
	dialer    Dialer
	firewall  Firewall
	handler   Handler
	heartbeat Heartbeat

	mutex         sync.Mutex
	state         ConnectionState
	generation    uint64
	command       secure.Conn
	broadcast     beacon.Beacon
	stopHeartbeat context.CancelFunc

	log *log.Logger
}

func New(config Config, events event.Publisher) *Transport {
	return &Transport{
		config: config,
		events: events,
		dialer: &net.Dialer{},
		firewall: func(port int) error {
			return nil
		},
		log: log.New(log.Writer(), "transport: ", log.Flags()),
	}
}

// SetHandler sets the receiver of inbound messages.
// It must be called before the first connect.
func (t *Transport) SetHandler(handler Handler) {
	t.handler = handler
}

// SetHeartbeat sets the function the heartbeat timer calls.
// It must be called before the first connect.
func (t *Transport) SetHeartbeat(heartbeat Heartbeat) {
	t.heartbeat = heartbeat
}

func (t *Transport) SetFirewall(firewall Firewall) {
	t.firewall = firewall
}

func (t *Transport) SetDialer(dialer Dialer) {
	t.dialer = dialer
}

func (t *Transport) State() ConnectionState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// ConnectCommand opens the command channel.
// It returns true immediately if the channel is connected or a connect is in flight.
// Failures are logged and reported as false.
func (t *Transport) ConnectCommand(ctx context.Context, timeout time.Duration) bool {
	t.mutex.Lock()
	if t.state != Disconnected {
		t.mutex.Unlock()
		return true
	}
	t.state = Connecting
	generation := t.generation
	t.mutex.Unlock()

	conn, err := t.dial(ctx, timeout)
	if err != nil {
		t.log.Println("connect command:", err)
		t.mutex.Lock()
		if t.generation == generation {
			t.state = Disconnected
		}
		t.mutex.Unlock()
		return false
	}

	t.mutex.Lock()
	if t.generation != generation {
		// disconnected while connecting
		t.mutex.Unlock()
		_ = conn.Close()
		return false
	}
	t.generation++
	generation = t.generation
	t.command = conn
	t.state = Connected
	heartbeatCtx, stop := context.WithCancel(context.Background())
	t.stopHeartbeat = stop
	t.mutex.Unlock()

	t.events.Publish(event.ServerOnline, nil)
	go t.runHeartbeat(heartbeatCtx)
	go t.readCommand(conn, generation)
	return true
}

func (t *Transport) dial(ctx context.Context, timeout time.Duration) (secure.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	address := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	raw, err := t.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if len(t.config.ServerKey) == 0 {
		return secure.Plain(raw), nil
	}
	conn, err := secure.Client(raw, t.config.KeyPair, t.config.ServerKey, timeout)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("handshake with %s: %w", address, err)
	}
	return conn, nil
}

// ConnectBroadcast opens the broadcast channel,
// replacing a previously opened one.
func (t *Transport) ConnectBroadcast(ctx context.Context) error {
	address, iface, err := t.broadcastAddress()
	if err != nil {
		return err
	}
	firewallOnce.Do(func() {
		if e := t.firewall(t.config.BroadcastPort); e != nil {
			t.log.Println("connect broadcast: firewall rule:", e)
		}
	})
	b := beacon.New(context.Background(), t.config.BroadcastPort, address, iface)
	if err = b.Listen(); err != nil {
		return fmt.Errorf("listen on broadcast channel: %w", err)
	}

	t.mutex.Lock()
	previous := t.broadcast
	t.broadcast = b
	t.mutex.Unlock()
	if previous != nil {
		_ = previous.Close()
	}

	go t.readBroadcast(b)
	return nil
}

func (t *Transport) broadcastAddress() (net.IP, *net.Interface, error) {
	if t.config.BroadcastGroup != "" {
		ip := net.ParseIP(t.config.BroadcastGroup)
		if ip == nil {
			return nil, nil, fmt.Errorf("invalid broadcast group %q", t.config.BroadcastGroup)
		}
		return ip, nil, nil
	}
	nets, err := network.Interfaces()
	if err != nil {
		return nil, nil, err
	}
	n, err := network.FirstBroadcast(nets)
	if err != nil {
		return nil, nil, err
	}
	ip, err := n.BroadcastIp()
	if err != nil {
		return nil, nil, err
	}
	return ip, &n.Interface, nil
}

// BroadcastAddr returns the local address of the broadcast channel, if it is open.
func (t *Transport) BroadcastAddr() net.Addr {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.broadcast == nil {
		return nil
	}
	return t.broadcast.LocalAddr()
}

// Disconnect closes both channels. Failures are only logged.
func (t *Transport) Disconnect() {
	t.mutex.Lock()
	command, broadcast := t.command, t.broadcast
	wasConnected := t.state == Connected
	t.command, t.broadcast = nil, nil
	t.state = Disconnected
	t.generation++
	if t.stopHeartbeat != nil {
		t.stopHeartbeat()
		t.stopHeartbeat = nil
	}
	t.mutex.Unlock()

	var group errgroup.Group
	if command != nil {
		group.Go(command.Close)
	}
	if broadcast != nil {
		group.Go(broadcast.Close)
	}
	if err := group.Wait(); err != nil {
		t.log.Println("disconnect:", err)
	}
	if wasConnected {
		t.events.Publish(event.ServerOffline, nil)
	}
}

// Send writes one message to the command channel.
func (t *Transport) Send(message wire.Message) error {
	t.mutex.Lock()
	conn, generation := t.command, t.generation
	t.mutex.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := wire.Marshal(message)
	if err != nil {
		return err
	}
	if err = conn.WriteFrame(data); err != nil {
		t.lost(generation, err)
		return err
	}
	return nil
}

func (t *Transport) readCommand(conn secure.Conn, generation uint64) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			t.lost(generation, err)
			return
		}
		t.dispatch(frame)
	}
}

func (t *Transport) readBroadcast(b beacon.Beacon) {
	for {
		data, _, err := b.Read()
		if err != nil {
			return
		}
		t.dispatch(data)
	}
}

func (t *Transport) dispatch(frame []byte) {
	message, err := wire.Unmarshal(frame)
	if err != nil {
		t.log.Println("read: dropping undecodable frame:", err)
		return
	}
	if t.handler != nil {
		t.handler(message)
	}
}

// lost tears down the command channel of the given generation after a read or write failure.
func (t *Transport) lost(generation uint64, cause error) {
	t.mutex.Lock()
	if t.generation != generation || t.state != Connected {
		t.mutex.Unlock()
		return
	}
	conn := t.command
	t.command = nil
	t.state = Disconnected
	t.generation++
	if t.stopHeartbeat != nil {
		t.stopHeartbeat()
		t.stopHeartbeat = nil
	}
	t.mutex.Unlock()

	t.log.Println("command channel lost:", cause)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.log.Println("command channel close:", err)
	}
	t.events.Publish(event.ServerOffline, nil)
}

func (t *Transport) runHeartbeat(ctx context.Context) {
	if t.heartbeat == nil || t.config.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.beat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) beat(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Println("heartbeat: recovered:", r)
		}
	}()
	if err := t.heartbeat(ctx); err != nil && ctx.Err() == nil {
		t.log.Println("heartbeat:", err)
	}
}
