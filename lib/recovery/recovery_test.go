package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"cds/client/lib/game"
	"cds/client/lib/lockup"
	"cds/client/lib/protocol"
	"cds/client/lib/store"
	"cds/client/lib/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type fakeRequester struct {
	requests []wire.Request
	options  []protocol.Options
	resolved []uint64
	respond  func(wire.Request) (wire.Response, error)
}

func (f *fakeRequester) RequestWith(ctx context.Context, request wire.Request, options protocol.Options) (wire.Response, error) {
	f.requests = append(f.requests, request)
	f.options = append(f.options, options)
	return f.respond(request)
}

func (f *fakeRequester) Resolve(sequenceID uint64) {
	f.resolved = append(f.resolved, sequenceID)
}

func newService(t *testing.T) (*Service, *fakeRequester, *store.Memory, *lockup.Manager) {
	paytable := &game.Paytable{
		ID:    "derby-5",
		Lines: 1,
		TicketSets: []game.TicketSet{{
			Credits: 1,
			Lines:   1,
			Patterns: [2][]game.Pattern{
				{{Masks: [5]uint8{0x1F}, Prize: "W100"}, {Masks: [5]uint8{0x0F}, Prize: "W10"}},
				{{Masks: [5]uint8{0xFF, 0xFF}, Prize: "P1;W5"}},
			},
		}},
	}
	games := game.NewRegistry([]*game.Paytable{paytable})
	require.Nil(t, games.SetGames([]wire.GameInfo{{GameID: 4, PaytableID: "derby-5"}}, 1))

	requests := &fakeRequester{}
	s := store.NewMemory()
	lockups := lockup.NewManager(language.English, nil)
	return New(requests, s, games, lockups, protocol.Options{Timeout: time.Second, Retries: 3}), requests, s, lockups
}

func races() []wire.RaceSet {
	race := wire.Race{Selected: []byte{1, 2, 3}, Actual: []byte{1, 2, 3}}
	set := wire.RaceSet{Races: []wire.Race{race, race, race, race, race}}
	return []wire.RaceSet{set, set}
}

func record(sequenceID uint64) wire.Response {
	return wire.Response{
		ReplyID: 77,
		Command: wire.CommandRecovery,
		Status:  wire.StatusOK,
		Body: &wire.RecoveryResponse{
			GameID:         4,
			ReplyID:        sequenceID,
			TransactionID:  9,
			Credits:        1,
			Lines:          1,
			PrizeLocations: []uint32{1, 0},
			RaceSets:       races(),
		},
	}
}

func TestRecover_NoSavedRequest(t *testing.T) {
	service, requests, _, lockups := newService(t)

	_, err := service.Recover(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUnrecoverable)
	assert.True(t, lockups.IsActive(lockup.RecoveryFailed))
	assert.Empty(t, requests.requests)
}

func TestRecover_Rebuilds(t *testing.T) {
	service, requests, s, lockups := newService(t)
	ctx := context.Background()
	play := wire.Request{SequenceID: 42, Body: &wire.GamePlayRequest{GameID: 4, Credits: 1, Transaction: 9}}
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotGamePlay, play))
	requests.respond = func(wire.Request) (wire.Response, error) {
		return record(42), nil
	}

	response, err := service.Recover(ctx, 42)
	require.Nil(t, err)
	assert.True(t, response.IsRecovery())
	assert.Equal(t, wire.CommandGamePlay, response.Command)
	outcome := response.Body.(*wire.Outcome)
	assert.Equal(t, "W100|", outcome.WinnerString)
	assert.Equal(t, "W100", outcome.RaceSets[0].Prize)
	assert.Equal(t, "", outcome.RaceSets[1].Prize)
	assert.Equal(t, uint32(9), outcome.TransactionID)

	require.Len(t, requests.requests, 1)
	assert.Equal(t, &wire.RecoveryRequest{SequenceID: 42}, requests.requests[0].Body)
	assert.Equal(t, -1, requests.options[0].Retries)
	assert.Equal(t, time.Second, requests.options[0].Timeout)
	assert.Equal(t, []uint64{42}, requests.resolved)
	assert.False(t, lockups.IsActive(lockup.RecoveryFailed))

	again, err := service.Recover(ctx, 42)
	require.Nil(t, err)
	assert.Equal(t, response, again)
	assert.Len(t, requests.requests, 1)
}

func TestRecover_RaceStart(t *testing.T) {
	service, requests, s, _ := newService(t)
	ctx := context.Background()
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotGamePlay, wire.Request{SequenceID: 41, Body: &wire.GamePlayRequest{GameID: 4, Transaction: 9}}))
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotRaceStart, wire.Request{SequenceID: 42, Body: &wire.RaceStartRequest{GameID: 4, Transaction: 9}}))
	requests.respond = func(wire.Request) (wire.Response, error) {
		return record(42), nil
	}

	response, err := service.Recover(ctx, 42)
	require.Nil(t, err)
	assert.Equal(t, wire.CommandRaceStart, response.Command)
}

func TestRecover_Empty(t *testing.T) {
	service, requests, s, lockups := newService(t)
	ctx := context.Background()
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotGamePlay, wire.Request{SequenceID: 42, Body: &wire.GamePlayRequest{GameID: 4, Transaction: 9}}))
	requests.respond = func(wire.Request) (wire.Response, error) {
		return wire.Response{ReplyID: 77, Command: wire.CommandRecovery, Status: wire.StatusOK, Body: &wire.RecoveryResponse{}}, nil
	}

	_, err := service.Recover(ctx, 42)
	assert.ErrorIs(t, err, ErrUnrecoverable)
	assert.True(t, lockups.IsActive(lockup.RecoveryFailed))
	assert.Empty(t, requests.resolved)
}

func TestRecover_RequestFails(t *testing.T) {
	service, requests, s, _ := newService(t)
	ctx := context.Background()
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotGamePlay, wire.Request{SequenceID: 42, Body: &wire.GamePlayRequest{GameID: 4, Transaction: 9}}))
	requests.respond = func(wire.Request) (wire.Response, error) {
		return wire.Response{}, protocol.ErrClosed
	}

	_, err := service.Recover(ctx, 42)
	assert.True(t, errors.Is(err, protocol.ErrClosed))
	assert.Empty(t, requests.resolved)
}

func TestRecover_CachedResponse(t *testing.T) {
	service, requests, s, _ := newService(t)
	ctx := context.Background()
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotGamePlay, wire.Request{SequenceID: 42, Body: &wire.GamePlayRequest{GameID: 4, Transaction: 9}}))
	last := wire.Response{ReplyID: 42, Command: wire.CommandGamePlay, Status: wire.StatusOK, Body: &wire.Outcome{GameID: 4, WinnerString: "W10|"}}
	require.Nil(t, s.SaveLastResponse(ctx, last))

	response, err := service.Recover(ctx, 42)
	require.Nil(t, err)
	assert.Equal(t, last.ReplyID, response.ReplyID)
	assert.Equal(t, "W10|", response.Body.(*wire.Outcome).WinnerString)
	assert.Empty(t, requests.requests)
}

func TestRecover_RecordMatchesLastResponse(t *testing.T) {
	service, requests, s, _ := newService(t)
	ctx := context.Background()
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotGamePlay, wire.Request{SequenceID: 42, Body: &wire.GamePlayRequest{GameID: 4, Transaction: 9}}))
	last := wire.Response{ReplyID: 41, Command: wire.CommandGamePlay, Status: wire.StatusOK, Body: &wire.Outcome{GameID: 4, WinnerString: "W10|"}}
	require.Nil(t, s.SaveLastResponse(ctx, last))
	requests.respond = func(wire.Request) (wire.Response, error) {
		return record(41), nil
	}

	response, err := service.Recover(ctx, 42)
	require.Nil(t, err)
	assert.Equal(t, uint64(41), response.ReplyID)
	assert.Equal(t, "W10|", response.Body.(*wire.Outcome).WinnerString)
	assert.Equal(t, []uint64{42}, requests.resolved)
}

func TestUnfinished(t *testing.T) {
	service, _, s, _ := newService(t)
	ctx := context.Background()

	_, ok, err := service.Unfinished(ctx)
	require.Nil(t, err)
	assert.False(t, ok)

	play := wire.Request{SequenceID: 42, Body: &wire.GamePlayRequest{GameID: 4, Transaction: 9}}
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotGamePlay, play))
	require.Nil(t, s.SavePrize(ctx, store.Prize{SequenceID: 30, TransactionID: 8}))
	unfinished, ok, err := service.Unfinished(ctx)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), unfinished.SequenceID)

	require.Nil(t, s.SavePrize(ctx, store.Prize{SequenceID: 42, TransactionID: 9}))
	_, ok, err = service.Unfinished(ctx)
	require.Nil(t, err)
	assert.False(t, ok)
}
