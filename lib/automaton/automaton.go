package automaton

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// EntryAction runs on the automaton's goroutine whenever its state is entered,
// including through a self-loop.
// It may call Fire; the trigger is queued and handled after the action returns.
type EntryAction func(ctx context.Context, trigger Trigger)

type Definition struct {
	Initial     State
	Transitions Transitions
	OnEntry     map[State]EntryAction

	// OnTransition, if set, is called after every state change and before the entry action.
	OnTransition func(from State, to State, trigger Trigger)
}

// Automaton is a single actor that owns a state.
// Triggers are processed one at a time in the order they were fired.
type Automaton struct {
	table        Table
	entry        map[State]EntryAction
	onTransition func(from State, to State, trigger Trigger)

	state int64

	mutex   sync.Mutex
	queue   []Trigger
	pending chan struct{}

	log *log.Logger
}

func New(definition Definition) *Automaton {
	if definition.Initial == NoState {
		panic("initial state is required in automaton definition")
	}
	return &Automaton{
		table:        Compile(definition.Transitions),
		entry:        definition.OnEntry,
		onTransition: definition.OnTransition,
		state:        int64(definition.Initial),
		pending:      make(chan struct{}, 1),
		log:          log.New(log.Writer(), "automaton: ", log.Flags()),
	}
}

// State returns the current state.
// It is safe to call this function concurrently.
func (a *Automaton) State() State {
	return State(atomic.LoadInt64(&a.state))
}

func (a *Automaton) Table() Table {
	return a.table
}

// Fire queues a trigger. It never blocks.
func (a *Automaton) Fire(trigger Trigger) {
	a.mutex.Lock()
	a.queue = append(a.queue, trigger)
	a.mutex.Unlock()
	select {
	case a.pending <- struct{}{}:
	default:
	}
}

// Run processes queued triggers until the context is cancelled.
func (a *Automaton) Run(ctx context.Context) {
	for {
		select {
		case <-a.pending:
		case <-ctx.Done():
			return
		}
		for {
			trigger, ok := a.pop()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return
			}
			a.handle(ctx, trigger)
		}
	}
}

func (a *Automaton) pop() (Trigger, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if len(a.queue) == 0 {
		return 0, false
	}
	trigger := a.queue[0]
	a.queue = a.queue[1:]
	return trigger, true
}

func (a *Automaton) handle(ctx context.Context, trigger Trigger) {
	from := a.State()
	to, err := a.table.Next(trigger, from)
	if err != nil {
		a.log.Printf("ignoring trigger %d in state %d: %v", trigger, from, err)
		return
	}
	atomic.StoreInt64(&a.state, int64(to))
	if a.onTransition != nil {
		a.onTransition(from, to, trigger)
	}
	if action, ok := a.entry[to]; ok {
		action(ctx, trigger)
	}
}
