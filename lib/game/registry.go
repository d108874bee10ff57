// Package game holds the games the terminal offers and the data needed to
// compute their prizes.
package game

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"cds/client/lib/event"
	"cds/client/lib/wire"
)

var (
	ErrUnknownGame        = errors.New("unknown game")
	ErrGameDisabled       = errors.New("game is disabled")
	ErrMissingPaytable    = errors.New("no paytable for game")
	ErrGameCount          = errors.New("game count does not match")
	ErrUnknownProgressive = errors.New("progressive level not configured")
)

type Game struct {
	ID            uint32
	PaytableID    string
	Denominations []uint32
}

type levelKey struct {
	gameID  uint32
	credits uint32
	level   uint32
}

type Registry struct {
	mutex     sync.RWMutex
	paytables map[string]*Paytable
	games     map[uint32]Game
	levels    map[levelKey]uint64
	disabled  map[uint32]struct{}
	playerID  string

	log *log.Logger
}

func NewRegistry(paytables []*Paytable) *Registry {
	r := &Registry{
		paytables: make(map[string]*Paytable, len(paytables)),
		games:     make(map[uint32]Game),
		levels:    make(map[levelKey]uint64),
		disabled:  make(map[uint32]struct{}),
		log:       log.New(log.Writer(), "game: ", log.Flags()),
	}
	for _, p := range paytables {
		r.paytables[p.ID] = p
	}
	return r
}

// Attach follows GameEnabled and GameDisabled signals.
func (r *Registry) Attach(events event.Subscriber) (detach func()) {
	return events.Subscribe(func(e event.Event) {
		g, ok := e.Payload.(event.Game)
		if !ok {
			r.log.Println("attach: ignoring", e.Kind, "without game payload")
			return
		}
		if e.Kind == event.GameEnabled {
			r.Enable(g.GameID)
		} else {
			r.Disable(g.GameID)
		}
	}, event.GameEnabled, event.GameDisabled)
}

// SetGames replaces the games with the ones the server offers.
// Every game needs a local paytable and the count must match the server's declared count.
func (r *Registry) SetGames(infos []wire.GameInfo, declared uint32) error {
	if uint32(len(infos)) != declared {
		return fmt.Errorf("%w: server declared %d, sent %d", ErrGameCount, declared, len(infos))
	}
	games := make(map[uint32]Game, len(infos))
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, info := range infos {
		if _, ok := r.paytables[info.PaytableID]; !ok {
			return fmt.Errorf("%w: game %d, paytable %q", ErrMissingPaytable, info.GameID, info.PaytableID)
		}
		games[info.GameID] = Game{
			ID:            info.GameID,
			PaytableID:    info.PaytableID,
			Denominations: append([]uint32(nil), info.Denominations...),
		}
	}
	r.games = games
	return nil
}

func (r *Registry) Games() []Game {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	games := make([]Game, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games
}

// Lookup returns an enabled game and its paytable.
func (r *Registry) Lookup(gameID uint32) (Game, *Paytable, error) {
	g, p, err := r.lookup(gameID)
	if err != nil {
		return g, p, err
	}
	r.mutex.RLock()
	_, disabled := r.disabled[gameID]
	r.mutex.RUnlock()
	if disabled {
		return g, p, fmt.Errorf("%w: %d", ErrGameDisabled, gameID)
	}
	return g, p, nil
}

// Paytable returns the paytable of a game, enabled or not.
func (r *Registry) Paytable(gameID uint32) (*Paytable, error) {
	_, p, err := r.lookup(gameID)
	return p, err
}

func (r *Registry) lookup(gameID uint32) (Game, *Paytable, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	g, ok := r.games[gameID]
	if !ok {
		return Game{}, nil, fmt.Errorf("%w: %d", ErrUnknownGame, gameID)
	}
	return g, r.paytables[g.PaytableID], nil
}

func (r *Registry) Enable(gameID uint32) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.disabled, gameID)
}

func (r *Registry) Disable(gameID uint32) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.disabled[gameID] = struct{}{}
}

func (r *Registry) IsEnabled(gameID uint32) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, disabled := r.disabled[gameID]
	return !disabled
}

// SetProgressiveLevels replaces the configured progressive amounts.
func (r *Registry) SetProgressiveLevels(levels []wire.ProgressiveLevel) {
	configured := make(map[levelKey]uint64, len(levels))
	for _, l := range levels {
		configured[levelKey{l.GameID, l.Credits, l.Level}] = l.Amount
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.levels = configured
}

// ProgressiveAmount returns the current amount of a level for a game and wager.
func (r *Registry) ProgressiveAmount(gameID uint32, credits uint32, level uint32) (uint64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	amount, ok := r.levels[levelKey{gameID, credits, level}]
	if !ok {
		return 0, fmt.Errorf("%w: game %d, %d credits, level %d", ErrUnknownProgressive, gameID, credits, level)
	}
	return amount, nil
}

func (r *Registry) SetPlayerID(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.playerID = id
}

func (r *Registry) PlayerID() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.playerID
}
