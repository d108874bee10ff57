package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleOutcome() *Outcome {
	race := Race{
		Selected: []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Actual:   []byte{1, 2, 3, 4, 5, 8, 7, 6},
	}
	return &Outcome{
		GameID:        7,
		TransactionID: 1200,
		RaceSets: []RaceSet{
			{Races: []Race{race, race, race, race, race}, Prize: "W50"},
			{Races: []Race{race, race, race, race, race}, Prize: ""},
		},
		WinnerString: "W50|",
	}
}

func TestUnmarshal_OutcomeResponse(t *testing.T) {
	data, err := MarshalResponse(Response{
		ReplyID: 42,
		Command: CommandGamePlay,
		Status:  StatusOK,
		Body:    sampleOutcome(),
	})
	require.Nil(t, err)

	response, err := UnmarshalResponse(data)
	require.Nil(t, err)
	assert.EqualValues(t, 42, response.ReplyID)
	assert.True(t, response.OK())
	assert.False(t, response.IsRecovery())
	outcome, ok := response.Body.(*Outcome)
	require.True(t, ok)
	assert.Equal(t, sampleOutcome(), outcome)
}

func TestUnmarshalRequest_KeepsTransactionID(t *testing.T) {
	data, err := MarshalRequest(Request{
		SequenceID: 9,
		Body:       &TransactionRequest{Kind: TransactionCashOut, Transaction: 77, Amount: 12500},
	})
	require.Nil(t, err)

	request, err := UnmarshalRequest(data)
	require.Nil(t, err)
	assert.EqualValues(t, 9, request.SequenceID)
	assert.Equal(t, CommandTransaction, request.Command())
	ider, ok := request.Body.(TransactionIDer)
	require.True(t, ok)
	assert.EqualValues(t, 77, ider.TransactionID())
}

func TestRecoveryResponse_KeepsZeroPrizeLocations(t *testing.T) {
	data, err := MarshalResponse(Response{
		ReplyID: 0,
		Command: CommandRecovery,
		Status:  StatusOK,
		Body:    &RecoveryResponse{GameID: 3, ReplyID: 11, PrizeLocations: []uint32{0, 2}},
	})
	require.Nil(t, err)
	response, err := UnmarshalResponse(data)
	require.Nil(t, err)
	assert.True(t, response.IsRecovery())
	assert.Equal(t, []uint32{0, 2}, response.Body.(*RecoveryResponse).PrizeLocations)
}

func TestMarshal_UnknownCommand(t *testing.T) {
	_, err := Marshal(Message{Kind: KindNotification, Command: CommandGamePlay, Body: &Ack{}})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestUnmarshal_MissingBody(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(KindRequest))
	b = protowire.AppendTag(b, fieldCommand, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(CommandKeepAlive))
	_, err := Unmarshal(b)
	assert.ErrorIs(t, err, ErrMissingBody)
}

func TestUnmarshal_Truncated(t *testing.T) {
	data, err := Marshal(Message{Kind: KindNotification, Command: CommandServerCommand, Body: &ServerCommand{Action: ActionPlay}})
	require.Nil(t, err)
	_, err = Unmarshal(data[:len(data)-1])
	assert.NotNil(t, err)
}
