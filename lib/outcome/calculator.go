package outcome

import (
	"fmt"
	"sort"

	"cds/client/lib/game"
	"cds/client/lib/wire"
	"github.com/google/uuid"
)

// Masks compares the selected and actual finishing order of every slot of a race set.
// Bit i of a slot's mask is set when position i agrees.
func Masks(set wire.RaceSet) ([wire.RacesPerSet]uint8, error) {
	var masks [wire.RacesPerSet]uint8
	if len(set.Races) != wire.RacesPerSet {
		return masks, fmt.Errorf("%w: %d races in set", ErrMalformedOutcome, len(set.Races))
	}
	for i, race := range set.Races {
		n := len(race.Selected)
		if len(race.Actual) < n {
			n = len(race.Actual)
		}
		if n > wire.HorsesPerRace {
			n = wire.HorsesPerRace
		}
		for j := 0; j < n; j++ {
			if race.Selected[j] == race.Actual[j] {
				masks[i] |= 1 << j
			}
		}
	}
	return masks, nil
}

// Evaluate returns the prize string of the first matching pattern of each race set.
func Evaluate(ticketSet *game.TicketSet, raceSets []wire.RaceSet) ([2]string, error) {
	var prizes [2]string
	if len(raceSets) != wire.RaceSetCount {
		return prizes, fmt.Errorf("%w: %d race sets", ErrMalformedOutcome, len(raceSets))
	}
	for r, set := range raceSets {
		masks, err := Masks(set)
		if err != nil {
			return prizes, err
		}
		if pattern, _, ok := ticketSet.Match(r, masks); ok {
			prizes[r] = pattern.Prize
		}
	}
	return prizes, nil
}

// Validate compares the calculated prizes with the server's declaration.
// In manual handicap mode every race set is compared on its own.
func Validate(outcome *wire.Outcome, prizes [2]string, manual bool) error {
	if manual {
		for r, set := range outcome.RaceSets {
			if set.Prize != prizes[r] {
				return &CalculationError{
					GameID:        outcome.GameID,
					TransactionID: outcome.TransactionID,
					Expected:      set.Prize,
					Calculated:    prizes[r],
				}
			}
		}
		return nil
	}
	calculated := game.WinnerString(prizes)
	if calculated != outcome.WinnerString {
		return &CalculationError{
			GameID:        outcome.GameID,
			TransactionID: outcome.TransactionID,
			Expected:      outcome.WinnerString,
			Calculated:    calculated,
		}
	}
	return nil
}

// LevelAmount returns the current amount of a progressive level.
type LevelAmount func(gameID uint32, credits uint32, level uint32) (uint64, error)

// Calculate fills the wins of a verified round.
// The secondary race set's gross win includes its progressive payouts; the net win excludes
// them so net wins and the progressive win are disjoint.
func Calculate(info *PrizeInformation, prizes [2]string, levels LevelAmount, largeWinLimit uint64) error {
	var parsed [2]game.Prize
	for r, s := range prizes {
		p, err := game.ParsePrize(s)
		if err != nil {
			return err
		}
		parsed[r] = p
		info.GrossWin[r] = p.Credits
	}

	counts := parsed[1].LevelCounts()
	hit := make([]uint32, 0, len(counts))
	for level := range counts {
		hit = append(hit, level)
	}
	sort.Slice(hit, func(i, j int) bool { return hit[i] < hit[j] })

	info.Progressives = nil
	info.ProgressiveWin = 0
	for _, level := range hit {
		amount, err := levels(info.GameID, info.Credits, level)
		if err != nil {
			return err
		}
		count := counts[level]
		info.Progressives = append(info.Progressives, Progressive{Level: level, Count: count, Amount: amount * uint64(count)})
		info.ProgressiveWin += amount * uint64(count)
	}

	info.GrossWin[1] += info.ProgressiveWin
	info.NetWin[0] = info.GrossWin[0]
	info.NetWin[1] = info.GrossWin[1] - info.ProgressiveWin

	info.HandpayGUIDs = nil
	for _, p := range info.Progressives {
		for i := uint32(0); i < p.Count; i++ {
			info.HandpayGUIDs = append(info.HandpayGUIDs, uuid.New().String())
		}
	}
	if largeWinLimit > 0 && info.NetWin[0]+info.NetWin[1] >= largeWinLimit {
		info.HandpayGUIDs = append(info.HandpayGUIDs, uuid.New().String())
	}
	return nil
}
