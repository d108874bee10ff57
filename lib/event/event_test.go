package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeKinds(t *testing.T) {
	bus := NewBus()
	var all, online []Kind
	bus.Subscribe(func(e Event) { all = append(all, e.Kind) })
	unsubscribe := bus.Subscribe(func(e Event) { online = append(online, e.Kind) }, ServerOnline)

	bus.Publish(ServerOnline, nil)
	bus.Publish(ServerOffline, nil)
	unsubscribe()
	bus.Publish(ServerOnline, nil)

	assert.Equal(t, []Kind{ServerOnline, ServerOffline, ServerOnline}, all)
	assert.Equal(t, []Kind{ServerOnline}, online)
}

func TestBus_PublishFromHandler(t *testing.T) {
	bus := NewBus()
	var seen []Kind
	bus.Subscribe(func(e Event) {
		seen = append(seen, e.Kind)
		if e.Kind == ServerOffline {
			bus.Publish(InitializationFailed, nil)
		}
	})
	bus.Publish(ServerOffline, nil)
	assert.Equal(t, []Kind{ServerOffline, InitializationFailed}, seen)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "cds.terminal.game-play-request-failed", Subject("cds.terminal", GamePlayRequestFailed))
	assert.Equal(t, "cds.terminal.signal.operator-clear-lockup", SignalSubject("cds.terminal", OperatorClearLockup))
}

func TestDecodeSignal(t *testing.T) {
	kind, payload, err := decodeSignal("cds", SignalSubject("cds", NetworkAvailabilityChanged), []byte(`{"up":true}`))
	require.Nil(t, err)
	assert.Equal(t, NetworkAvailabilityChanged, kind)
	assert.Equal(t, NetworkAvailability{Up: true}, payload)

	kind, payload, err = decodeSignal("cds", SignalSubject("cds", OperatorClearLockup), nil)
	require.Nil(t, err)
	assert.Equal(t, OperatorClearLockup, kind)
	assert.Nil(t, payload)

	_, _, err = decodeSignal("cds", "cds.signal.server-online", nil)
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent(Event{Kind: GameDisabled, Payload: Game{GameID: 4}})
	require.Nil(t, err)
	var env envelope
	require.Nil(t, json.Unmarshal(data, &env))
	assert.Equal(t, "GameDisabled", env.Kind)
	assert.JSONEq(t, `{"game_id":4}`, string(env.Payload))
}
