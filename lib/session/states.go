package session

import (
	"fmt"

	"cds/client/lib/automaton"
)

const (
	Created automaton.State = iota + 1
	Disconnected
	Initializing
	InitializationFailed
	WaitingForReadyToPlay
	Ready
)

var stateNames = map[automaton.State]string{
	Created:               "Created",
	Disconnected:          "Disconnected",
	Initializing:          "Initializing",
	InitializationFailed:  "InitializationFailed",
	WaitingForReadyToPlay: "WaitingForReadyToPlay",
	Ready:                 "Ready",
}

// StateName returns the name of a session state.
func StateName(state automaton.State) string {
	if name, ok := stateNames[state]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(state))
}

const (
	Disconnect automaton.Trigger = iota + 1
	Initialize
	Fail
	BecomeReady
	Wait
	Retry
)

var transitions = automaton.Transitions{
	Disconnect: {
		{At: automaton.States{Created, Initializing, InitializationFailed, WaitingForReadyToPlay, Ready}, To: Disconnected},
	},
	Initialize: {
		{At: automaton.States{Disconnected, InitializationFailed, Initializing}, To: Initializing},
	},
	Fail: {
		{At: automaton.States{Initializing}, To: InitializationFailed},
	},
	BecomeReady: {
		{At: automaton.States{Initializing, WaitingForReadyToPlay}, To: Ready},
	},
	Wait: {
		{At: automaton.States{Initializing}, To: WaitingForReadyToPlay},
	},
	Retry: {
		{At: automaton.States{WaitingForReadyToPlay}, To: WaitingForReadyToPlay},
	},
}

// Table returns the compiled transition table of the session.
func Table() automaton.Table {
	return automaton.Compile(transitions)
}
