package automaton

import "errors"

var (
	EmptyTransition      = errors.New("cannot have an empty transition")
	MissingTriggerState  = errors.New("missing definition of triggering state in At")
	MissingTargetState   = errors.New("missing definition of target state in To")
	AmbiguousTransitions = errors.New("ambiguous definition, cannot determine correct transition path")
	BadTransitionKey     = errors.New("transition key not defined in automaton")
	BadTransitionState   = errors.New("transition state for key not defined in automaton")
)

// Transition moves the automaton from any of the states in At to To.
// A state may appear in both At and To to express a self-loop.
type Transition struct {
	At States
	To State
}

type Transitions map[Trigger][]Transition

// Table is a compiled transition table.
type Table map[Trigger]map[State]State

// Compile validates the transitions and builds a lookup table.
// An invalid definition is a programming error and causes a panic.
func Compile(transitions Transitions) Table {
	table := make(Table, len(transitions))
	for trigger, list := range transitions {
		targets := map[State]State{}
		for _, transition := range list {
			if transition.At == nil && transition.To == NoState {
				panic(EmptyTransition)
			}
			if len(transition.At) == 0 {
				panic(MissingTriggerState)
			}
			if transition.To == NoState {
				panic(MissingTargetState)
			}
			for _, at := range transition.At {
				if _, has := targets[at]; has {
					panic(AmbiguousTransitions)
				}
				targets[at] = transition.To
			}
		}
		table[trigger] = targets
	}
	return table
}

// Next returns the state the trigger leads to from the given state.
func (t Table) Next(trigger Trigger, state State) (State, error) {
	sub, ok := t[trigger]
	if !ok {
		return NoState, BadTransitionKey
	}
	next, ok := sub[state]
	if !ok {
		return NoState, BadTransitionState
	}
	return next, nil
}

// Sources returns every state with a direct transition into the given state.
// Self-loops are not included.
func (t Table) Sources(to State) States {
	seen := map[State]struct{}{}
	var sources States
	for _, sub := range t {
		for from, target := range sub {
			if target != to || from == to {
				continue
			}
			if _, ok := seen[from]; ok {
				continue
			}
			seen[from] = struct{}{}
			sources = append(sources, from)
		}
	}
	return sources
}

// Targets returns every state directly reachable from the given state, self-loops included.
func (t Table) Targets(from State) States {
	seen := map[State]struct{}{}
	var targets States
	for _, sub := range t {
		target, ok := sub[from]
		if !ok {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}
	return targets
}
