// Package store persists the state the terminal needs after a crash:
// the pending requests, the last transaction id, the requests and response of the
// round in flight, and the prize record of the last round.
package store

import (
	"context"
	"sort"
	"sync"

	"cds/client/lib/wire"
)

// Slot names a saved request of the round in flight.
type Slot string

const (
	SlotGamePlay  Slot = "game_play"
	SlotRaceStart Slot = "race_start"
)

// Pending is a persisted unresolved request.
type Pending struct {
	Request wire.Request
	Failed  bool
}

// Prize is the persisted prize record of a round.
// Data is owned by the outcome engine.
type Prize struct {
	SequenceID    uint64
	TransactionID uint32
	Data          []byte
}

type Store interface {
	Pending(ctx context.Context) ([]Pending, error)
	// SavePending replaces the persisted pending set.
	SavePending(ctx context.Context, pending []Pending) error

	LastTransactionID(ctx context.Context) (uint32, error)
	SaveLastTransactionID(ctx context.Context, id uint32) error

	LastRequest(ctx context.Context, slot Slot) (wire.Request, bool, error)
	SaveLastRequest(ctx context.Context, slot Slot, request wire.Request) error
	ClearLastRequest(ctx context.Context, slot Slot) error

	LastResponse(ctx context.Context) (wire.Response, bool, error)
	SaveLastResponse(ctx context.Context, response wire.Response) error

	LastPrize(ctx context.Context) (Prize, bool, error)
	SavePrize(ctx context.Context, prize Prize) error

	Close() error
}

// Memory is a Store that keeps everything in memory.
type Memory struct {
	mutex             sync.Mutex
	pending           []Pending
	lastTransactionID uint32
	requests          map[Slot]wire.Request
	response          *wire.Response
	prize             *Prize
}

func NewMemory() *Memory {
	return &Memory{requests: make(map[Slot]wire.Request)}
}

func (m *Memory) Pending(ctx context.Context) ([]Pending, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]Pending(nil), m.pending...), nil
}

func (m *Memory) SavePending(ctx context.Context, pending []Pending) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.pending = append([]Pending(nil), pending...)
	sort.Slice(m.pending, func(i, j int) bool {
		return m.pending[i].Request.SequenceID < m.pending[j].Request.SequenceID
	})
	return nil
}

func (m *Memory) LastTransactionID(ctx context.Context) (uint32, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.lastTransactionID, nil
}

func (m *Memory) SaveLastTransactionID(ctx context.Context, id uint32) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.lastTransactionID = id
	return nil
}

func (m *Memory) LastRequest(ctx context.Context, slot Slot) (wire.Request, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	request, ok := m.requests[slot]
	return request, ok, nil
}

func (m *Memory) SaveLastRequest(ctx context.Context, slot Slot, request wire.Request) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[slot] = request
	return nil
}

func (m *Memory) ClearLastRequest(ctx context.Context, slot Slot) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.requests, slot)
	return nil
}

func (m *Memory) LastResponse(ctx context.Context) (wire.Response, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.response == nil {
		return wire.Response{}, false, nil
	}
	return *m.response, true, nil
}

func (m *Memory) SaveLastResponse(ctx context.Context, response wire.Response) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.response = &response
	return nil
}

func (m *Memory) LastPrize(ctx context.Context) (Prize, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.prize == nil {
		return Prize{}, false, nil
	}
	return *m.prize, true, nil
}

func (m *Memory) SavePrize(ctx context.Context, prize Prize) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	prize.Data = append([]byte(nil), prize.Data...)
	m.prize = &prize
	return nil
}

func (m *Memory) Close() error {
	return nil
}
