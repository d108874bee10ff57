package wire

import "google.golang.org/protobuf/encoding/protowire"

// KeepAlive is the no-op request sent by the heartbeat.
type KeepAlive struct{}

func (*KeepAlive) Command() Command         { return CommandKeepAlive }
func (*KeepAlive) appendTo(b []byte) []byte { return b }
func (*KeepAlive) readField(field) error    { return nil }

// Ack is the empty response body of requests without a result.
type Ack struct{}

func (*Ack) appendTo(b []byte) []byte { return b }
func (*Ack) readField(field) error    { return nil }

// ReadyToPlay probes whether the server lets the terminal offer gameplay.
type ReadyToPlay struct{}

func (*ReadyToPlay) Command() Command         { return CommandReadyToPlay }
func (*ReadyToPlay) appendTo(b []byte) []byte { return b }
func (*ReadyToPlay) readField(field) error    { return nil }

// ParameterPush is sent by the server when the terminal parameters changed.
type ParameterPush struct{}

func (*ParameterPush) appendTo(b []byte) []byte { return b }
func (*ParameterPush) readField(field) error    { return nil }

type ParametersRequest struct {
	TerminalID string
}

func (*ParametersRequest) Command() Command { return CommandParameters }

func (m *ParametersRequest) appendTo(b []byte) []byte {
	return appendString(b, 1, m.TerminalID)
}

func (m *ParametersRequest) readField(f field) error {
	if f.num == 1 {
		m.TerminalID = f.string()
	}
	return nil
}

type ParametersResponse struct {
	TerminalID          string
	LastTransactionID   uint32
	GameCount           uint32
	ProgressiveDisabled bool
}

func (m *ParametersResponse) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.TerminalID)
	b = appendVarint(b, 2, uint64(m.LastTransactionID))
	b = appendVarint(b, 3, uint64(m.GameCount))
	return appendBool(b, 4, m.ProgressiveDisabled)
}

func (m *ParametersResponse) readField(f field) error {
	switch f.num {
	case 1:
		m.TerminalID = f.string()
	case 2:
		m.LastTransactionID = uint32(f.varint)
	case 3:
		m.GameCount = uint32(f.varint)
	case 4:
		m.ProgressiveDisabled = protowire.DecodeBool(f.varint)
	}
	return nil
}

type GameInfoRequest struct{}

func (*GameInfoRequest) Command() Command         { return CommandGameInfo }
func (*GameInfoRequest) appendTo(b []byte) []byte { return b }
func (*GameInfoRequest) readField(field) error    { return nil }

type GameInfo struct {
	GameID        uint32
	PaytableID    string
	Denominations []uint32
}

func (m *GameInfo) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.GameID))
	b = appendString(b, 2, m.PaytableID)
	for _, d := range m.Denominations {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d))
	}
	return b
}

func (m *GameInfo) readField(f field) error {
	switch f.num {
	case 1:
		m.GameID = uint32(f.varint)
	case 2:
		m.PaytableID = f.string()
	case 3:
		m.Denominations = append(m.Denominations, uint32(f.varint))
	}
	return nil
}

type GameInfoResponse struct {
	Games []GameInfo
}

func (m *GameInfoResponse) appendTo(b []byte) []byte {
	for i := range m.Games {
		b = appendMessage(b, 1, &m.Games[i])
	}
	return b
}

func (m *GameInfoResponse) readField(f field) error {
	if f.num != 1 {
		return nil
	}
	var game GameInfo
	if err := readMessage(f, &game); err != nil {
		return err
	}
	m.Games = append(m.Games, game)
	return nil
}

type PlayerIDRequest struct {
	TerminalID string
}

func (*PlayerIDRequest) Command() Command { return CommandPlayerID }

func (m *PlayerIDRequest) appendTo(b []byte) []byte {
	return appendString(b, 1, m.TerminalID)
}

func (m *PlayerIDRequest) readField(f field) error {
	if f.num == 1 {
		m.TerminalID = f.string()
	}
	return nil
}

type PlayerIDResponse struct {
	PlayerID string
}

func (m *PlayerIDResponse) appendTo(b []byte) []byte {
	return appendString(b, 1, m.PlayerID)
}

func (m *PlayerIDResponse) readField(f field) error {
	if f.num == 1 {
		m.PlayerID = f.string()
	}
	return nil
}

type ProgressiveInfoRequest struct{}

func (*ProgressiveInfoRequest) Command() Command         { return CommandProgressiveInfo }
func (*ProgressiveInfoRequest) appendTo(b []byte) []byte { return b }
func (*ProgressiveInfoRequest) readField(field) error    { return nil }

// ProgressiveLevel is the current amount of one level for a game and wager.
type ProgressiveLevel struct {
	GameID  uint32
	Credits uint32
	Level   uint32
	Amount  uint64
}

func (m *ProgressiveLevel) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.GameID))
	b = appendVarint(b, 2, uint64(m.Credits))
	b = appendVarint(b, 3, uint64(m.Level))
	return appendVarint(b, 4, m.Amount)
}

func (m *ProgressiveLevel) readField(f field) error {
	switch f.num {
	case 1:
		m.GameID = uint32(f.varint)
	case 2:
		m.Credits = uint32(f.varint)
	case 3:
		m.Level = uint32(f.varint)
	case 4:
		m.Amount = f.varint
	}
	return nil
}

type ProgressiveInfoResponse struct {
	Levels []ProgressiveLevel
}

func (m *ProgressiveInfoResponse) appendTo(b []byte) []byte {
	for i := range m.Levels {
		b = appendMessage(b, 1, &m.Levels[i])
	}
	return b
}

func (m *ProgressiveInfoResponse) readField(f field) error {
	if f.num != 1 {
		return nil
	}
	var level ProgressiveLevel
	if err := readMessage(f, &level); err != nil {
		return err
	}
	m.Levels = append(m.Levels, level)
	return nil
}

type GamePlayRequest struct {
	GameID       uint32
	Credits      uint32
	Denomination uint32
	Lines        uint32
	Transaction  uint32
	PlayerID     string
	Manual       bool
}

func (*GamePlayRequest) Command() Command        { return CommandGamePlay }
func (m *GamePlayRequest) TransactionID() uint32 { return m.Transaction }

func (m *GamePlayRequest) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.GameID))
	b = appendVarint(b, 2, uint64(m.Credits))
	b = appendVarint(b, 3, uint64(m.Denomination))
	b = appendVarint(b, 4, uint64(m.Lines))
	b = appendVarint(b, 5, uint64(m.Transaction))
	b = appendString(b, 6, m.PlayerID)
	return appendBool(b, 7, m.Manual)
}

func (m *GamePlayRequest) readField(f field) error {
	switch f.num {
	case 1:
		m.GameID = uint32(f.varint)
	case 2:
		m.Credits = uint32(f.varint)
	case 3:
		m.Denomination = uint32(f.varint)
	case 4:
		m.Lines = uint32(f.varint)
	case 5:
		m.Transaction = uint32(f.varint)
	case 6:
		m.PlayerID = f.string()
	case 7:
		m.Manual = protowire.DecodeBool(f.varint)
	}
	return nil
}

// RaceStartRequest finalizes a manually handicapped round with the chosen picks.
type RaceStartRequest struct {
	GameID      uint32
	Transaction uint32
	Picks       []RaceSet
}

func (*RaceStartRequest) Command() Command        { return CommandRaceStart }
func (m *RaceStartRequest) TransactionID() uint32 { return m.Transaction }

func (m *RaceStartRequest) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.GameID))
	b = appendVarint(b, 2, uint64(m.Transaction))
	for i := range m.Picks {
		b = appendMessage(b, 3, &m.Picks[i])
	}
	return b
}

func (m *RaceStartRequest) readField(f field) error {
	switch f.num {
	case 1:
		m.GameID = uint32(f.varint)
	case 2:
		m.Transaction = uint32(f.varint)
	case 3:
		var set RaceSet
		if err := readMessage(f, &set); err != nil {
			return err
		}
		m.Picks = append(m.Picks, set)
	}
	return nil
}

// Outcome is the server's result of a game play or race start.
type Outcome struct {
	GameID        uint32
	TransactionID uint32
	RaceSets      []RaceSet
	WinnerString  string
}

func (m *Outcome) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.GameID))
	b = appendVarint(b, 2, uint64(m.TransactionID))
	for i := range m.RaceSets {
		b = appendMessage(b, 3, &m.RaceSets[i])
	}
	return appendString(b, 4, m.WinnerString)
}

func (m *Outcome) readField(f field) error {
	switch f.num {
	case 1:
		m.GameID = uint32(f.varint)
	case 2:
		m.TransactionID = uint32(f.varint)
	case 3:
		var set RaceSet
		if err := readMessage(f, &set); err != nil {
			return err
		}
		m.RaceSets = append(m.RaceSets, set)
	case 4:
		m.WinnerString = f.string()
	}
	return nil
}

type RecoveryRequest struct {
	SequenceID uint64
}

func (*RecoveryRequest) Command() Command { return CommandRecovery }

func (m *RecoveryRequest) appendTo(b []byte) []byte {
	return appendVarint(b, 1, m.SequenceID)
}

func (m *RecoveryRequest) readField(f field) error {
	if f.num == 1 {
		m.SequenceID = f.varint
	}
	return nil
}

// RecoveryResponse is the server's record of a round.
// An empty record (GameID 0) means the server has no knowledge of the round.
type RecoveryResponse struct {
	GameID         uint32
	ReplyID        uint64
	TransactionID  uint32
	Credits        uint32
	Lines          uint32
	PrizeLocations []uint32
	RaceSets       []RaceSet
}

// Empty reports whether the server returned no record.
func (m *RecoveryResponse) Empty() bool {
	return m.GameID == 0
}

func (m *RecoveryResponse) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.GameID))
	b = appendVarint(b, 2, m.ReplyID)
	b = appendVarint(b, 3, uint64(m.TransactionID))
	b = appendVarint(b, 4, uint64(m.Credits))
	b = appendVarint(b, 5, uint64(m.Lines))
	for _, location := range m.PrizeLocations {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(location))
	}
	for i := range m.RaceSets {
		b = appendMessage(b, 7, &m.RaceSets[i])
	}
	return b
}

func (m *RecoveryResponse) readField(f field) error {
	switch f.num {
	case 1:
		m.GameID = uint32(f.varint)
	case 2:
		m.ReplyID = f.varint
	case 3:
		m.TransactionID = uint32(f.varint)
	case 4:
		m.Credits = uint32(f.varint)
	case 5:
		m.Lines = uint32(f.varint)
	case 6:
		m.PrizeLocations = append(m.PrizeLocations, uint32(f.varint))
	case 7:
		var set RaceSet
		if err := readMessage(f, &set); err != nil {
			return err
		}
		m.RaceSets = append(m.RaceSets, set)
	}
	return nil
}

// TransactionKind names the financial event a transaction request reports.
type TransactionKind int32

const (
	TransactionUnknown TransactionKind = iota
	TransactionBonus
	TransactionCashIn
	TransactionCashOut
	TransactionGameWin
)

// TransactionRequest reports a financial event to the server.
// The translators that build these from terminal events live outside this module.
type TransactionRequest struct {
	Kind        TransactionKind
	Transaction uint32
	Amount      uint64
	Reference   string
}

func (*TransactionRequest) Command() Command        { return CommandTransaction }
func (m *TransactionRequest) TransactionID() uint32 { return m.Transaction }

func (m *TransactionRequest) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.Kind))
	b = appendVarint(b, 2, uint64(m.Transaction))
	b = appendVarint(b, 3, m.Amount)
	return appendString(b, 4, m.Reference)
}

func (m *TransactionRequest) readField(f field) error {
	switch f.num {
	case 1:
		m.Kind = TransactionKind(f.varint)
	case 2:
		m.Transaction = uint32(f.varint)
	case 3:
		m.Amount = f.varint
	case 4:
		m.Reference = f.string()
	}
	return nil
}

// ServerAction is the action of an unsolicited server command.
type ServerAction int32

const (
	ActionUnknown ServerAction = iota
	ActionPlay
	ActionPause
)

type ServerCommand struct {
	Action ServerAction
}

func (m *ServerCommand) appendTo(b []byte) []byte {
	return appendVarint(b, 1, uint64(m.Action))
}

func (m *ServerCommand) readField(f field) error {
	if f.num == 1 {
		m.Action = ServerAction(f.varint)
	}
	return nil
}
