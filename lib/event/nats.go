package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stoewer/go-strcase"
)

var ErrUnknownSignal = errors.New("unknown signal")

// signals are the kinds that may be raised from outside the terminal client.
var signals = map[Kind]func() interface{}{
	NetworkAvailabilityChanged: func() interface{} { return &NetworkAvailability{} },
	OperatorClearLockup:        func() interface{} { return nil },
	GameEnabled:                func() interface{} { return &Game{} },
	GameDisabled:               func() interface{} { return &Game{} },
}

// Subject returns the NATS subject an event kind is published on.
func Subject(prefix string, kind Kind) string {
	return prefix + "." + strcase.KebabCase(kind.String())
}

// SignalSubject returns the NATS subject an external signal is received on.
func SignalSubject(prefix string, kind Kind) string {
	return prefix + ".signal." + strcase.KebabCase(kind.String())
}

type envelope struct {
	Kind    string          `json:"kind"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Forwarder mirrors the bus onto NATS: every event is published on its subject
// and messages on the signal subjects are published on the bus.
type Forwarder struct {
	conn        *nats.Conn
	bus         *Bus
	prefix      string
	log         *log.Logger
	unsubscribe func()
	sub         *nats.Subscription
}

func Forward(conn *nats.Conn, bus *Bus, prefix string) (*Forwarder, error) {
	f := &Forwarder{
		conn:   conn,
		bus:    bus,
		prefix: prefix,
		log:    log.New(log.Writer(), "event.nats: ", log.Flags()),
	}
	sub, err := conn.Subscribe(prefix+".signal.*", f.receive)
	if err != nil {
		return nil, fmt.Errorf("subscribe to signals: %w", err)
	}
	f.sub = sub
	f.unsubscribe = bus.Subscribe(f.send)
	return f, nil
}

func (f *Forwarder) send(e Event) {
	data, err := encodeEvent(e)
	if err != nil {
		f.log.Println("send: failed to encode", e.Kind, err)
		return
	}
	if err = f.conn.Publish(Subject(f.prefix, e.Kind), data); err != nil {
		f.log.Println("send: failed to publish", e.Kind, err)
	}
}

func (f *Forwarder) receive(msg *nats.Msg) {
	kind, payload, err := decodeSignal(f.prefix, msg.Subject, msg.Data)
	if err != nil {
		f.log.Println("receive:", err)
		return
	}
	f.bus.Publish(kind, payload)
}

func (f *Forwarder) Close() error {
	f.unsubscribe()
	return f.sub.Unsubscribe()
}

func encodeEvent(e Event) ([]byte, error) {
	env := envelope{Kind: e.Kind.String(), Time: e.Time}
	if e.Payload != nil {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	}
	return json.Marshal(env)
}

func decodeSignal(prefix string, subject string, data []byte) (Kind, interface{}, error) {
	name := strings.TrimPrefix(subject, prefix+".signal.")
	for kind, create := range signals {
		if strcase.KebabCase(kind.String()) != name {
			continue
		}
		payload := create()
		if payload != nil && len(data) > 0 {
			if err := json.Unmarshal(data, payload); err != nil {
				return 0, nil, fmt.Errorf("decode %v: %w", kind, err)
			}
		}
		switch p := payload.(type) {
		case *NetworkAvailability:
			return kind, *p, nil
		case *Game:
			return kind, *p, nil
		}
		return kind, nil, nil
	}
	return 0, nil, fmt.Errorf("%w: %s", ErrUnknownSignal, subject)
}
