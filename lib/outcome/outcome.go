// Package outcome determines the prize of a game round from the server's race data
// and verifies it against the server's own record of the win.
package outcome

import (
	"errors"
	"fmt"

	"cds/client/lib/wire"
)

var (
	// ErrIgnoreOutcome marks a stale or duplicate response. The round is not affected.
	ErrIgnoreOutcome = errors.New("ignoring stale outcome")
	// ErrPrizeMismatch means the calculated prize disagrees with the server. It is never retried.
	ErrPrizeMismatch    = errors.New("calculated prize does not match server")
	ErrMalformedOutcome = errors.New("malformed outcome")
	ErrNoRaceInfo       = errors.New("no race info requested for manual handicap")
	ErrBadPicks         = errors.New("handicap picks do not cover every race")
	ErrBadDenomination  = errors.New("denomination not offered by game")
	ErrNoSavedRequest   = errors.New("no saved request for transaction")
)

// CalculationError is the fatal disagreement between the terminal and the server.
type CalculationError struct {
	GameID        uint32
	TransactionID uint32
	Expected      string
	Calculated    string
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("game %d transaction %d: server declared %q, calculated %q",
		e.GameID, e.TransactionID, e.Expected, e.Calculated)
}

func (e *CalculationError) Unwrap() error {
	return ErrPrizeMismatch
}

type Progressive struct {
	Level  uint32 `json:"level"`
	Count  uint32 `json:"count"`
	Amount uint64 `json:"amount"`
}

// PrizeInformation is the verified result of one round.
// Wins are in credits, index 0 is the primary race set and index 1 the progressive eligible one.
type PrizeInformation struct {
	GameID         uint32         `json:"game_id"`
	TransactionID  uint32         `json:"transaction_id"`
	SequenceID     uint64         `json:"sequence_id"`
	Credits        uint32         `json:"credits"`
	Denomination   uint32         `json:"denomination"`
	Lines          uint32         `json:"lines"`
	Wager          [2]uint64      `json:"wager"`
	GrossWin       [2]uint64      `json:"gross_win"`
	NetWin         [2]uint64      `json:"net_win"`
	ProgressiveWin uint64         `json:"progressive_win"`
	Progressives   []Progressive  `json:"progressives,omitempty"`
	HandpayGUIDs   []string       `json:"handpay_guids,omitempty"`
	Prizes         [2]string      `json:"prizes"`
	RaceSets       []wire.RaceSet `json:"race_sets"`
	WinnerString   string         `json:"winner_string"`
	Recovered      bool           `json:"recovered"`
}

// TotalWin is the sum of both net wins and the progressive win.
func (p PrizeInformation) TotalWin() uint64 {
	return p.NetWin[0] + p.NetWin[1] + p.ProgressiveWin
}
