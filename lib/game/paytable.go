package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cds/client/lib/wire"
)

var (
	ErrNoTicketSet        = errors.New("no ticket set for credits and lines")
	ErrBadPrizeLocation   = errors.New("prize location out of range")
	ErrIncompletePaytable = errors.New("paytable is incomplete")
)

// Pattern is the set of horse positions that must match in each slot for its prize.
type Pattern struct {
	Masks [wire.RacesPerSet]uint8 `json:"masks"`
	Prize string                  `json:"prize"`
}

// Matches reports whether every expected bit is set in the achieved masks.
func (p Pattern) Matches(achieved [wire.RacesPerSet]uint8) bool {
	for i, mask := range p.Masks {
		if mask&achieved[i] != mask {
			return false
		}
	}
	return true
}

// TicketSet holds the ordered pattern lists of one wager.
type TicketSet struct {
	Credits  uint32                       `json:"credits"`
	Lines    uint32                       `json:"lines"`
	Patterns [wire.RaceSetCount][]Pattern `json:"patterns"`
}

// Match returns the first pattern of the race set that the achieved masks satisfy.
func (t *TicketSet) Match(raceSet int, achieved [wire.RacesPerSet]uint8) (Pattern, int, bool) {
	for i, pattern := range t.Patterns[raceSet] {
		if pattern.Matches(achieved) {
			return pattern, i, true
		}
	}
	return Pattern{}, -1, false
}

type Paytable struct {
	ID         string      `json:"id"`
	Lines      uint32      `json:"lines"`
	TicketSets []TicketSet `json:"ticket_sets"`
}

// TicketSet returns the ticket set for a wager.
func (p *Paytable) TicketSet(credits uint32, lines uint32) (*TicketSet, error) {
	for i := range p.TicketSets {
		if p.TicketSets[i].Credits == credits && p.TicketSets[i].Lines == lines {
			return &p.TicketSets[i], nil
		}
	}
	return nil, fmt.Errorf("%w: paytable %s, %d credits, %d lines", ErrNoTicketSet, p.ID, credits, lines)
}

// PrizeAt resolves a 1-based prize location of a race set. Location 0 is no prize.
func (p *Paytable) PrizeAt(credits uint32, lines uint32, raceSet int, location uint32) (string, error) {
	if location == 0 {
		return "", nil
	}
	set, err := p.TicketSet(credits, lines)
	if err != nil {
		return "", err
	}
	if raceSet < 0 || raceSet >= wire.RaceSetCount || int(location) > len(set.Patterns[raceSet]) {
		return "", fmt.Errorf("%w: race set %d, location %d", ErrBadPrizeLocation, raceSet, location)
	}
	return set.Patterns[raceSet][location-1].Prize, nil
}

func (p *Paytable) validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrIncompletePaytable)
	}
	if p.Lines == 0 {
		return fmt.Errorf("%w: %s has no lines", ErrIncompletePaytable, p.ID)
	}
	for _, set := range p.TicketSets {
		for r, patterns := range set.Patterns {
			for _, pattern := range patterns {
				if _, err := ParsePrize(pattern.Prize); err != nil {
					return fmt.Errorf("paytable %s, %d credits, race set %d: %w", p.ID, set.Credits, r, err)
				}
			}
		}
	}
	return nil
}

// LoadPaytables reads every JSON paytable in dir.
func LoadPaytables(dir string) ([]*Paytable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read paytable dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	paytables := make([]*Paytable, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read paytable %s: %w", name, err)
		}
		var paytable Paytable
		if err = json.Unmarshal(data, &paytable); err != nil {
			return nil, fmt.Errorf("decode paytable %s: %w", name, err)
		}
		if err = paytable.validate(); err != nil {
			return nil, err
		}
		paytables = append(paytables, &paytable)
	}
	return paytables, nil
}
