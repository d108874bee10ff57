package automaton

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	initial State = iota + 1
	foo
	bar
)

const (
	toFoo Trigger = iota + 1
	toBar
	reset
)

func definition() Transitions {
	return Transitions{
		toFoo: {{At: States{initial, foo}, To: foo}},
		toBar: {{At: States{foo}, To: bar}},
		reset: {{At: States{foo, bar}, To: initial}},
	}
}

func TestCompile_EmptyTransition(t *testing.T) {
	assert.PanicsWithError(t, EmptyTransition.Error(), func() {
		Compile(Transitions{toFoo: {{}}})
	})
}

func TestCompile_MissingStates(t *testing.T) {
	assert.PanicsWithError(t, MissingTriggerState.Error(), func() {
		Compile(Transitions{toFoo: {{To: foo}}})
	})
	assert.PanicsWithError(t, MissingTargetState.Error(), func() {
		Compile(Transitions{toFoo: {{At: States{initial}}}})
	})
}

func TestCompile_AmbiguousTransitions(t *testing.T) {
	assert.PanicsWithError(t, AmbiguousTransitions.Error(), func() {
		Compile(Transitions{
			toFoo: {
				{At: States{initial, bar}, To: foo},
				{At: States{bar}, To: initial},
			},
		})
	})
}

func TestTable_Next(t *testing.T) {
	table := Compile(definition())

	next, err := table.Next(toFoo, initial)
	assert.Nil(t, err)
	assert.Equal(t, foo, next)

	_, err = table.Next(toBar, initial)
	assert.Equal(t, BadTransitionState, err)

	_, err = table.Next(Trigger(42), initial)
	assert.Equal(t, BadTransitionKey, err)
}

func TestTable_SourcesAndTargets(t *testing.T) {
	table := Compile(definition())
	assert.ElementsMatch(t, States{initial}, table.Sources(foo))
	assert.ElementsMatch(t, States{foo}, table.Sources(bar))
	assert.ElementsMatch(t, States{foo, bar, initial}, table.Targets(foo))
	assert.ElementsMatch(t, States{foo}, table.Targets(initial))
}

func TestAutomaton_Run(t *testing.T) {
	var mutex sync.Mutex
	var path []State
	record := func(state State) EntryAction {
		return func(ctx context.Context, trigger Trigger) {
			mutex.Lock()
			defer mutex.Unlock()
			path = append(path, state)
		}
	}

	var a *Automaton
	a = New(Definition{
		Initial:     initial,
		Transitions: definition(),
		OnEntry: map[State]EntryAction{
			initial: record(initial),
			bar:     record(bar),
			foo: func(ctx context.Context, trigger Trigger) {
				record(foo)(ctx, trigger)
				if trigger == toFoo {
					a.Fire(toBar)
				}
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Fire(toBar) // ignored in initial
	a.Fire(toFoo)

	assert.Eventually(t, func() bool { return a.State() == bar }, time.Second, time.Millisecond)
	a.Fire(reset)
	assert.Eventually(t, func() bool { return a.State() == initial }, time.Second, time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, []State{foo, bar, initial}, path)
}

func TestAutomaton_SelfLoopRunsEntry(t *testing.T) {
	var mutex sync.Mutex
	count := 0
	a := New(Definition{
		Initial:     initial,
		Transitions: definition(),
		OnEntry: map[State]EntryAction{
			foo: func(ctx context.Context, trigger Trigger) {
				mutex.Lock()
				count++
				mutex.Unlock()
			},
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Fire(toFoo)
	a.Fire(toFoo)
	a.Fire(toFoo)
	assert.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return count == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, foo, a.State())
}

func TestState_IsAny(t *testing.T) {
	assert.True(t, foo.IsAny(initial, foo))
	assert.True(t, foo.IsNone(initial, bar))
	assert.True(t, States{foo, bar}.Contains(bar))
	assert.False(t, States{foo}.Contains(NoState))
}
