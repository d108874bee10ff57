// Package event announces state transitions of the terminal client and carries
// externally raised signals into it.
package event

import (
	"fmt"
	"sync"
	"time"
)

type Kind int

const (
	ServerOnline Kind = iota + 1
	ServerOffline
	InitializationInProgress
	InitializationComplete
	InitializationFailed
	GamePlayRequestFailed
	PrizeCalculationError
	PendingCleared
	NetworkAvailabilityChanged
	OperatorClearLockup
	GameEnabled
	GameDisabled
	ServerPlay
	ServerPause
	ParametersChanged
)

var kindNames = map[Kind]string{
	ServerOnline:               "ServerOnline",
	ServerOffline:              "ServerOffline",
	InitializationInProgress:   "InitializationInProgress",
	InitializationComplete:     "InitializationComplete",
	InitializationFailed:       "InitializationFailed",
	GamePlayRequestFailed:      "GamePlayRequestFailed",
	PrizeCalculationError:      "PrizeCalculationError",
	PendingCleared:             "PendingCleared",
	NetworkAvailabilityChanged: "NetworkAvailabilityChanged",
	OperatorClearLockup:        "OperatorClearLockup",
	GameEnabled:                "GameEnabled",
	GameDisabled:               "GameDisabled",
	ServerPlay:                 "ServerPlay",
	ServerPause:                "ServerPause",
	ParametersChanged:          "ParametersChanged",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// NetworkAvailability is the payload of NetworkAvailabilityChanged.
type NetworkAvailability struct {
	Up bool `json:"up"`
}

// Game is the payload of GameEnabled and GameDisabled.
type Game struct {
	GameID uint32 `json:"game_id"`
}

// RequestFailure is the payload of GamePlayRequestFailed.
type RequestFailure struct {
	SequenceID    uint64 `json:"sequence_id"`
	TransactionID uint32 `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// CalculationFailure is the payload of PrizeCalculationError.
type CalculationFailure struct {
	GameID        uint32 `json:"game_id"`
	TransactionID uint32 `json:"transaction_id"`
	Expected      string `json:"expected"`
	Calculated    string `json:"calculated"`
}

type Event struct {
	Kind    Kind
	Time    time.Time
	Payload interface{}
}

// Publisher is the part of the Bus that components announce through.
type Publisher interface {
	Publish(kind Kind, payload interface{})
}

// Subscriber is the part of the Bus that components react through.
type Subscriber interface {
	Subscribe(handle func(Event), kinds ...Kind) (unsubscribe func())
}

// Bus delivers events synchronously, in subscription order, on the publishing goroutine.
// Handlers must not block; long running reactions belong on their own goroutine.
type Bus struct {
	mutex       sync.RWMutex
	nextId      int
	subscribers map[int]subscription
	order       []int
}

type subscription struct {
	kinds  map[Kind]struct{}
	handle func(Event)
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]subscription)}
}

// Subscribe registers a handler for the given kinds, or for every kind if none are given.
func (b *Bus) Subscribe(handle func(Event), kinds ...Kind) (unsubscribe func()) {
	s := subscription{handle: handle}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, kind := range kinds {
			s.kinds[kind] = struct{}{}
		}
	}
	b.mutex.Lock()
	id := b.nextId
	b.nextId++
	b.subscribers[id] = s
	b.order = append(b.order, id)
	b.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mutex.Lock()
			defer b.mutex.Unlock()
			delete(b.subscribers, id)
			for i, other := range b.order {
				if other == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *Bus) Publish(kind Kind, payload interface{}) {
	e := Event{Kind: kind, Time: time.Now(), Payload: payload}
	b.mutex.RLock()
	handlers := make([]func(Event), 0, len(b.order))
	for _, id := range b.order {
		s := b.subscribers[id]
		if s.kinds != nil {
			if _, ok := s.kinds[kind]; !ok {
				continue
			}
		}
		handlers = append(handlers, s.handle)
	}
	b.mutex.RUnlock()
	for _, handle := range handlers {
		handle(e)
	}
}
