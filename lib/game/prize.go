package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadPrize = errors.New("malformed prize string")

// Prize is a parsed prize string.
// The grammar is a ';' separated list of W<credits> and P<level> tokens,
// a level is repeated once per hit.
type Prize struct {
	Credits uint64
	Levels  []uint32
}

func ParsePrize(s string) (Prize, error) {
	var prize Prize
	if s == "" {
		return prize, nil
	}
	for _, token := range strings.Split(s, ";") {
		if len(token) < 2 {
			return Prize{}, fmt.Errorf("%w: %q", ErrBadPrize, s)
		}
		value, err := strconv.ParseUint(token[1:], 10, 64)
		if err != nil {
			return Prize{}, fmt.Errorf("%w: %q", ErrBadPrize, s)
		}
		switch token[0] {
		case 'W':
			prize.Credits += value
		case 'P':
			if value == 0 || value > 1<<31 {
				return Prize{}, fmt.Errorf("%w: level in %q", ErrBadPrize, s)
			}
			prize.Levels = append(prize.Levels, uint32(value))
		default:
			return Prize{}, fmt.Errorf("%w: %q", ErrBadPrize, s)
		}
	}
	return prize, nil
}

// LevelCounts returns the hit count per level.
func (p Prize) LevelCounts() map[uint32]uint32 {
	counts := make(map[uint32]uint32, len(p.Levels))
	for _, level := range p.Levels {
		counts[level]++
	}
	return counts
}

// WinnerString combines the prizes of both race sets the way the server declares them.
func WinnerString(prizes [2]string) string {
	return prizes[0] + "|" + prizes[1]
}
