package automaton

// State is a state of an automaton. Define states starting from iota + 1,
// the zero value is NoState.
type State int

const NoState State = 0

func (s State) Is(state State) bool { return s == state }

func (s State) IsNot(state State) bool { return s != state }

// IsAny reports whether s is one of the states.
func (s State) IsAny(states ...State) bool {
	return States(states).Contains(s)
}

func (s State) IsNone(states ...State) bool {
	return !States(states).Contains(s)
}

type States []State

func (s States) Contains(state State) bool {
	for _, other := range s {
		if other == state {
			return true
		}
	}
	return false
}

// Trigger causes a transition. Like states, triggers start at iota + 1.
type Trigger int
