package request

import (
	"cds/client/lib/lockup"
	"cds/client/lib/wire"
)

type PolicyKind int

const (
	// Idle timeouts are informational and have no terminal wide effect.
	Idle PolicyKind = iota
	// Lockup timeouts disable the terminal until the request succeeds or is cleared.
	Lockup
)

// Policy decides what a timeout or failure of a request does to the terminal.
type Policy struct {
	Kind   PolicyKind
	Lockup lockup.Lockup
}

func IdlePolicy() Policy {
	return Policy{Kind: Idle}
}

func LockupPolicy(key lockup.Key) Policy {
	return Policy{Kind: Lockup, Lockup: lockup.Of(key)}
}

// OnEntry runs when a request of the policy timed out or failed.
func OnEntry(policy Policy, lockups lockup.Disabler) {
	if policy.Kind == Lockup {
		lockups.Disable(policy.Lockup)
	}
}

// OnExit runs when a request of the policy is resolved or cleared.
func OnExit(policy Policy, lockups lockup.Disabler) {
	if policy.Kind == Lockup {
		lockups.Enable(policy.Lockup.Key)
	}
}

// Expectation is what the tracker knows about a request command.
type Expectation struct {
	// Response is the command a successful response carries.
	Response wire.Command
	Policy   Policy
	// Transaction requests keep the admission gate closed while pending.
	Transaction bool
}

// Expectations pairs every request command with its response and policy.
var Expectations = map[wire.Command]Expectation{
	wire.CommandKeepAlive:       {Response: wire.CommandKeepAlive, Policy: IdlePolicy()},
	wire.CommandParameters:      {Response: wire.CommandParameters, Policy: IdlePolicy()},
	wire.CommandGameInfo:        {Response: wire.CommandGameInfo, Policy: IdlePolicy()},
	wire.CommandPlayerID:        {Response: wire.CommandPlayerID, Policy: IdlePolicy()},
	wire.CommandProgressiveInfo: {Response: wire.CommandProgressiveInfo, Policy: IdlePolicy()},
	wire.CommandReadyToPlay:     {Response: wire.CommandReadyToPlay, Policy: IdlePolicy()},
	wire.CommandGamePlay:        {Response: wire.CommandGamePlay, Policy: LockupPolicy(lockup.GamePlayTimeout), Transaction: true},
	wire.CommandRaceStart:       {Response: wire.CommandRaceStart, Policy: LockupPolicy(lockup.GamePlayTimeout), Transaction: true},
	wire.CommandRecovery:        {Response: wire.CommandRecovery, Policy: LockupPolicy(lockup.RecoveryFailed), Transaction: true},
	wire.CommandTransaction:     {Response: wire.CommandTransaction, Policy: LockupPolicy(lockup.TransactionTimeout), Transaction: true},
}
