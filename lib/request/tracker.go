// Package request tracks every request that has not been confirmed by the server
// and gates gameplay on it.
package request

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"cds/client/lib/event"
	"cds/client/lib/lockup"
	"cds/client/lib/protocol"
	"cds/client/lib/store"
	"cds/client/lib/wire"
	"golang.org/x/sync/semaphore"
)

var (
	ErrUnknownCommand = errors.New("no expectation for request command")
	ErrFailed         = errors.New("server reported failure")
	ErrUnexpected     = errors.New("unexpected response command")
)

// Caller sends requests and waits for their responses.
type Caller interface {
	Call(ctx context.Context, request wire.Request, options protocol.Options) (wire.Response, error)
	NextSequence() uint64
	SeedSequence(last uint64)
}

// Pending is an unresolved request.
type Pending struct {
	Request     wire.Request
	Expectation Expectation
	Failed      bool
}

type Tracker struct {
	caller         Caller
	store          store.Store
	lockups        lockup.Disabler
	events         event.Publisher
	options        protocol.Options
	canPlayTimeout time.Duration

	mutex    sync.Mutex
	pending  map[uint64]*Pending
	gate     *semaphore.Weighted
	gateHeld bool

	log *log.Logger
}

// New creates a tracker. Requests are sent with the given options,
// CanPlay waits at most timeout times retries for the admission gate.
func New(caller Caller, s store.Store, lockups lockup.Disabler, events event.Publisher, options protocol.Options) *Tracker {
	retries := options.Retries
	if retries < 1 {
		retries = 1
	}
	return &Tracker{
		caller:         caller,
		store:          s,
		lockups:        lockups,
		events:         events,
		options:        options,
		canPlayTimeout: options.Timeout * time.Duration(retries),
		pending:        make(map[uint64]*Pending),
		gate:           semaphore.NewWeighted(1),
		log:            log.New(log.Writer(), "request: ", log.Flags()),
	}
}

// Attach replays on InitializationComplete and clears on OperatorClearLockup.
func (t *Tracker) Attach(ctx context.Context, events event.Subscriber) (detach func()) {
	replay := events.Subscribe(func(event.Event) {
		go t.Replay(ctx)
	}, event.InitializationComplete)
	operator := events.Subscribe(func(event.Event) {
		t.ClearLockups()
	}, event.OperatorClearLockup)
	return func() {
		replay()
		operator()
	}
}

// Request sends a request with the tracker's default options.
func (t *Tracker) Request(ctx context.Context, request wire.Request) (wire.Response, error) {
	return t.RequestWith(ctx, request, t.options)
}

// RequestWith records the request as pending unless its policy is Idle,
// sends it and waits for the response.
// A timeout or failure marks the request failed and leaves it pending.
// Cancelling the context never removes it.
func (t *Tracker) RequestWith(ctx context.Context, request wire.Request, options protocol.Options) (wire.Response, error) {
	expectation, ok := Expectations[request.Command()]
	if !ok {
		return wire.Response{}, fmt.Errorf("%w: %v", ErrUnknownCommand, request.Command())
	}
	if request.SequenceID == 0 {
		request.SequenceID = t.caller.NextSequence()
	}
	if expectation.Policy.Kind != Idle {
		t.add(request, expectation)
	}

	response, err := t.caller.Call(ctx, request, options)
	if err != nil {
		if ctx.Err() != nil {
			return response, err
		}
		t.fail(request.SequenceID, err)
		return response, err
	}
	if response.Command != expectation.Response {
		return response, fmt.Errorf("%w: %v for %v", ErrUnexpected, response.Command, request.Command())
	}
	if !response.OK() {
		return response, fmt.Errorf("%w: %v %d", ErrFailed, request.Command(), request.SequenceID)
	}
	return response, nil
}

// NextSequence reserves a sequence id for a request that is persisted before it is sent.
func (t *Tracker) NextSequence() uint64 {
	return t.caller.NextSequence()
}

// KeepAlive sends the heartbeat request.
func (t *Tracker) KeepAlive(ctx context.Context) error {
	_, err := t.Request(ctx, wire.Request{Body: &wire.KeepAlive{}})
	return err
}

func (t *Tracker) add(request wire.Request, expectation Expectation) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, ok := t.pending[request.SequenceID]; !ok {
		t.pending[request.SequenceID] = &Pending{Request: request, Expectation: expectation}
	}
	t.closeGate()
	t.persist()
}

func (t *Tracker) fail(sequenceID uint64, cause error) {
	t.mutex.Lock()
	p, ok := t.pending[sequenceID]
	if !ok {
		t.mutex.Unlock()
		return
	}
	p.Failed = true
	t.persist()
	policy := p.Expectation.Policy
	t.mutex.Unlock()

	t.log.Printf("request %v %d failed: %v", p.Request.Command(), sequenceID, cause)
	OnEntry(policy, t.lockups)
}

// Observe is shown every response read from the server.
func (t *Tracker) Observe(response wire.Response) {
	if response.IsRecovery() {
		return
	}
	t.mutex.Lock()
	p, ok := t.pending[response.ReplyID]
	if !ok {
		t.mutex.Unlock()
		return
	}
	if response.Command != p.Expectation.Response || !response.OK() {
		p.Failed = true
		t.persist()
		policy := p.Expectation.Policy
		t.mutex.Unlock()
		t.log.Printf("response %v %d: status %v", response.Command, response.ReplyID, response.Status)
		OnEntry(policy, t.lockups)
		return
	}
	t.mutex.Unlock()
	t.Resolve(response.ReplyID)
}

// Resolve removes a request that was answered, directly or through a recovery.
func (t *Tracker) Resolve(sequenceID uint64) {
	t.mutex.Lock()
	p, ok := t.pending[sequenceID]
	if !ok {
		t.mutex.Unlock()
		return
	}
	delete(t.pending, sequenceID)
	exit := !t.lockupStillFailed(p.Expectation.Policy)
	cleared := !t.hasTransaction()
	if cleared {
		t.openGate()
	}
	t.persist()
	t.mutex.Unlock()

	if exit {
		OnExit(p.Expectation.Policy, t.lockups)
	}
	if cleared {
		t.events.Publish(event.PendingCleared, nil)
	}
}

// CanPlay waits for the admission gate and reports whether nothing is pending.
func (t *Tracker) CanPlay(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, t.canPlayTimeout)
	defer cancel()
	if err := t.gate.Acquire(ctx, 1); err != nil {
		return false
	}
	t.gate.Release(1)

	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.pending) == 0
}

// Replay marks every pending request failed and sends each of them once more.
func (t *Tracker) Replay(ctx context.Context) {
	t.mutex.Lock()
	requests := make([]wire.Request, 0, len(t.pending))
	for _, p := range t.sorted() {
		p.Failed = true
		requests = append(requests, p.Request)
	}
	t.persist()
	t.mutex.Unlock()

	once := protocol.Options{Timeout: t.options.Timeout}
	for _, request := range requests {
		if _, err := t.RequestWith(ctx, request, once); err != nil {
			t.log.Printf("replay: %v %d: %v", request.Command(), request.SequenceID, err)
		}
	}
}

// ClearLockups removes every pending request with a Lockup policy or that failed.
func (t *Tracker) ClearLockups() {
	t.mutex.Lock()
	var removed []Policy
	for sequenceID, p := range t.pending {
		if p.Expectation.Policy.Kind == Lockup || p.Failed {
			delete(t.pending, sequenceID)
			removed = append(removed, p.Expectation.Policy)
		}
	}
	exits := make([]Policy, 0, len(removed))
	seen := map[lockup.Key]struct{}{}
	for _, policy := range removed {
		if _, ok := seen[policy.Lockup.Key]; ok || t.lockupStillFailed(policy) {
			continue
		}
		seen[policy.Lockup.Key] = struct{}{}
		exits = append(exits, policy)
	}
	t.openGate()
	t.persist()
	t.mutex.Unlock()

	if len(removed) > 0 {
		t.log.Println("operator cleared", len(removed), "pending requests")
	}
	for _, policy := range exits {
		OnExit(policy, t.lockups)
	}
	t.events.Publish(event.PendingCleared, nil)
}

// Restore loads the persisted pending requests.
func (t *Tracker) Restore(ctx context.Context) error {
	persisted, err := t.store.Pending(ctx)
	if err != nil {
		return fmt.Errorf("restore pending requests: %w", err)
	}
	var failed []Policy
	var last uint64

	t.mutex.Lock()
	for _, p := range persisted {
		expectation, ok := Expectations[p.Request.Command()]
		if !ok {
			t.log.Println("restore: dropping request with unknown command", p.Request.Command(), p.Request.SequenceID)
			continue
		}
		t.pending[p.Request.SequenceID] = &Pending{Request: p.Request, Expectation: expectation, Failed: p.Failed}
		if p.Failed {
			failed = append(failed, expectation.Policy)
		}
		if p.Request.SequenceID > last {
			last = p.Request.SequenceID
		}
	}
	if len(t.pending) > 0 {
		t.closeGate()
	}
	t.mutex.Unlock()

	t.caller.SeedSequence(last)
	for _, policy := range failed {
		OnEntry(policy, t.lockups)
	}
	return nil
}

// PendingTransactionIDs returns the transaction ids carried by pending requests.
func (t *Tracker) PendingTransactionIDs() []uint32 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	var ids []uint32
	for _, p := range t.sorted() {
		if body, ok := p.Request.Body.(wire.TransactionIDer); ok {
			ids = append(ids, body.TransactionID())
		}
	}
	return ids
}

// Pending returns a copy of the pending requests ordered by sequence id.
func (t *Tracker) Pending() []Pending {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	list := make([]Pending, 0, len(t.pending))
	for _, p := range t.sorted() {
		list = append(list, *p)
	}
	return list
}

func (t *Tracker) IsPending(sequenceID uint64) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	_, ok := t.pending[sequenceID]
	return ok
}

func (t *Tracker) sorted() []*Pending {
	list := make([]*Pending, 0, len(t.pending))
	for _, p := range t.pending {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Request.SequenceID < list[j].Request.SequenceID
	})
	return list
}

func (t *Tracker) hasTransaction() bool {
	for _, p := range t.pending {
		if p.Expectation.Transaction {
			return true
		}
	}
	return false
}

// lockupStillFailed reports whether another failed request holds the policy's lockup.
func (t *Tracker) lockupStillFailed(policy Policy) bool {
	if policy.Kind != Lockup {
		return false
	}
	for _, p := range t.pending {
		if p.Failed && p.Expectation.Policy.Kind == Lockup && p.Expectation.Policy.Lockup.Key == policy.Lockup.Key {
			return true
		}
	}
	return false
}

func (t *Tracker) closeGate() {
	if t.gateHeld {
		return
	}
	// CanPlay holds the gate only between its Acquire and Release.
	_ = t.gate.Acquire(context.Background(), 1)
	t.gateHeld = true
}

func (t *Tracker) openGate() {
	if !t.gateHeld {
		return
	}
	t.gate.Release(1)
	t.gateHeld = false
}

func (t *Tracker) persist() {
	list := make([]store.Pending, 0, len(t.pending))
	for _, p := range t.sorted() {
		list = append(list, store.Pending{Request: p.Request, Failed: p.Failed})
	}
	if err := t.store.SavePending(context.Background(), list); err != nil {
		t.log.Println("persist:", err)
	}
}
