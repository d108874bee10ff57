package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"cds/client/lib/store"
	"cds/client/lib/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terminal.db")
	s, err := Open(context.Background(), path)
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStore_PendingSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTempStore(t)

	pending := []store.Pending{
		{Request: wire.Request{SequenceID: 12, Body: &wire.GamePlayRequest{GameID: 3, Credits: 5, Transaction: 77}}, Failed: true},
		{Request: wire.Request{SequenceID: 11, Body: &wire.TransactionRequest{Kind: wire.TransactionCashIn, Transaction: 76, Amount: 500}}},
	}
	require.Nil(t, s.SavePending(ctx, pending))
	require.Nil(t, s.Close())

	reopened, err := Open(ctx, path)
	require.Nil(t, err)
	defer reopened.Close()

	loaded, err := reopened.Pending(ctx)
	require.Nil(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, uint64(11), loaded[0].Request.SequenceID)
	assert.False(t, loaded[0].Failed)
	assert.Equal(t, uint32(76), loaded[0].Request.Body.(*wire.TransactionRequest).Transaction)
	assert.True(t, loaded[1].Failed)
	assert.Equal(t, wire.CommandGamePlay, loaded[1].Request.Command())

	require.Nil(t, reopened.SavePending(ctx, nil))
	loaded, err = reopened.Pending(ctx)
	require.Nil(t, err)
	assert.Empty(t, loaded)
}

func TestStore_Records(t *testing.T) {
	ctx := context.Background()
	s, _ := openTempStore(t)

	id, err := s.LastTransactionID(ctx)
	require.Nil(t, err)
	assert.Equal(t, uint32(0), id)
	require.Nil(t, s.SaveLastTransactionID(ctx, 41))
	require.Nil(t, s.SaveLastTransactionID(ctx, 42))
	id, _ = s.LastTransactionID(ctx)
	assert.Equal(t, uint32(42), id)

	_, ok, err := s.LastRequest(ctx, store.SlotRaceStart)
	require.Nil(t, err)
	assert.False(t, ok)
	race := wire.Request{SequenceID: 5, Body: &wire.RaceStartRequest{GameID: 2, Transaction: 42}}
	require.Nil(t, s.SaveLastRequest(ctx, store.SlotRaceStart, race))
	loaded, ok, err := s.LastRequest(ctx, store.SlotRaceStart)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), loaded.SequenceID)
	require.Nil(t, s.ClearLastRequest(ctx, store.SlotRaceStart))
	_, ok, _ = s.LastRequest(ctx, store.SlotRaceStart)
	assert.False(t, ok)

	response := wire.Response{ReplyID: 5, Command: wire.CommandRaceStart, Status: wire.StatusOK, Body: &wire.Outcome{GameID: 2, WinnerString: "W10|"}}
	require.Nil(t, s.SaveLastResponse(ctx, response))
	loadedResponse, ok, err := s.LastResponse(ctx)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "W10|", loadedResponse.Body.(*wire.Outcome).WinnerString)
}

func TestStore_Prize(t *testing.T) {
	ctx := context.Background()
	s, _ := openTempStore(t)

	_, ok, err := s.LastPrize(ctx)
	require.Nil(t, err)
	assert.False(t, ok)

	require.Nil(t, s.SavePrize(ctx, store.Prize{SequenceID: 1, TransactionID: 2, Data: []byte(`{"a":1}`)}))
	require.Nil(t, s.SavePrize(ctx, store.Prize{SequenceID: 3, TransactionID: 4, Data: []byte(`{"a":2}`)}))
	prize, ok, err := s.LastPrize(ctx)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), prize.SequenceID)
	assert.Equal(t, uint32(4), prize.TransactionID)
	assert.JSONEq(t, `{"a":2}`, string(prize.Data))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.NotNil(t, err)
}
