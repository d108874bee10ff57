// Package recovery asks the server what happened to a play request whose
// response never arrived and rebuilds the outcome from the answer.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"cds/client/lib/game"
	"cds/client/lib/lockup"
	"cds/client/lib/protocol"
	"cds/client/lib/store"
	"cds/client/lib/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cds/client/recovery")

// ErrUnrecoverable means there is no record of the round, locally or on the server.
var ErrUnrecoverable = errors.New("round is unrecoverable")

// Requester is the request tracker.
type Requester interface {
	RequestWith(ctx context.Context, request wire.Request, options protocol.Options) (wire.Response, error)
	Resolve(sequenceID uint64)
}

type Service struct {
	requests Requester
	store    store.Store
	games    *game.Registry
	lockups  lockup.Disabler
	options  protocol.Options

	mutex     sync.Mutex
	recovered map[uint64]wire.Response

	log *log.Logger
}

// New creates the service. Recovery requests use the timeout of options and are retried until answered.
func New(requests Requester, s store.Store, games *game.Registry, lockups lockup.Disabler, options protocol.Options) *Service {
	options.Retries = -1
	return &Service{
		requests:  requests,
		store:     s,
		games:     games,
		lockups:   lockups,
		options:   options,
		recovered: make(map[uint64]wire.Response),
		log:       log.New(log.Writer(), "recovery: ", log.Flags()),
	}
}

// Recover returns the outcome of the play or race start request with the sequence id.
// A rebuilt outcome carries reply id 0.
func (s *Service) Recover(ctx context.Context, sequenceID uint64) (response wire.Response, err error) {
	ctx, span := tracer.Start(ctx, "recovery.recover")
	span.SetAttributes(attribute.Int64("sequence_id", int64(sequenceID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	command, err := s.savedCommand(ctx, sequenceID)
	if err != nil {
		return wire.Response{}, err
	}

	s.mutex.Lock()
	cached, ok := s.recovered[sequenceID]
	s.mutex.Unlock()
	if ok {
		return cached, nil
	}
	last, hasLast, err := s.store.LastResponse(ctx)
	if err != nil {
		return wire.Response{}, err
	}
	if hasLast && last.ReplyID == sequenceID {
		s.remember(sequenceID, last)
		return last, nil
	}

	request := wire.Request{Body: &wire.RecoveryRequest{SequenceID: sequenceID}}
	reply, err := s.requests.RequestWith(ctx, request, s.options)
	if err != nil {
		return wire.Response{}, err
	}
	record, ok := reply.Body.(*wire.RecoveryResponse)
	if !ok || record.Empty() {
		return wire.Response{}, s.unrecoverable(fmt.Errorf("%w: server has no record of %d", ErrUnrecoverable, sequenceID))
	}

	if hasLast && !last.IsRecovery() && record.ReplyID == last.ReplyID {
		s.log.Println("recovered", sequenceID, "from cached outcome", last.ReplyID)
		response = last
	} else {
		outcome, err := s.rebuild(record)
		if err != nil {
			return wire.Response{}, s.unrecoverable(err)
		}
		response = wire.Response{ReplyID: 0, Command: command, Status: wire.StatusOK, Body: outcome}
	}
	s.remember(sequenceID, response)
	s.requests.Resolve(sequenceID)
	return response, nil
}

// Unfinished returns the play request of a round that has no prize record yet.
func (s *Service) Unfinished(ctx context.Context) (wire.Request, bool, error) {
	play, ok, err := s.store.LastRequest(ctx, store.SlotGamePlay)
	if err != nil || !ok {
		return wire.Request{}, false, err
	}
	body, ok := play.Body.(wire.TransactionIDer)
	if !ok {
		return wire.Request{}, false, nil
	}
	prize, ok, err := s.store.LastPrize(ctx)
	if err != nil {
		return wire.Request{}, false, err
	}
	if ok && prize.TransactionID == body.TransactionID() {
		return wire.Request{}, false, nil
	}
	return play, true, nil
}

// savedCommand returns the command of the saved request with the sequence id.
// Any saved request is enough, the server knows the rest.
func (s *Service) savedCommand(ctx context.Context, sequenceID uint64) (wire.Command, error) {
	found := false
	for _, slot := range []store.Slot{store.SlotRaceStart, store.SlotGamePlay} {
		request, ok, err := s.store.LastRequest(ctx, slot)
		if err != nil {
			return wire.CommandInvalid, err
		}
		if !ok {
			continue
		}
		if request.SequenceID == sequenceID {
			return request.Command(), nil
		}
		found = true
	}
	if !found {
		return wire.CommandInvalid, s.unrecoverable(fmt.Errorf("%w: no saved play request", ErrUnrecoverable))
	}
	return wire.CommandGamePlay, nil
}

// rebuild resolves the prize locations of a recovery record into an outcome.
func (s *Service) rebuild(record *wire.RecoveryResponse) (*wire.Outcome, error) {
	if len(record.RaceSets) != wire.RaceSetCount || len(record.PrizeLocations) != wire.RaceSetCount {
		return nil, fmt.Errorf("%w: record of game %d has %d race sets and %d prize locations",
			ErrUnrecoverable, record.GameID, len(record.RaceSets), len(record.PrizeLocations))
	}
	paytable, err := s.games.Paytable(record.GameID)
	if err != nil {
		return nil, err
	}

	outcome := &wire.Outcome{
		GameID:        record.GameID,
		TransactionID: record.TransactionID,
		RaceSets:      make([]wire.RaceSet, wire.RaceSetCount),
	}
	var prizes [2]string
	for r, set := range record.RaceSets {
		prize, err := paytable.PrizeAt(record.Credits, record.Lines, r, record.PrizeLocations[r])
		if err != nil {
			return nil, err
		}
		prizes[r] = prize
		outcome.RaceSets[r] = wire.RaceSet{Races: set.Races, Prize: prize}
	}
	outcome.WinnerString = game.WinnerString(prizes)
	return outcome, nil
}

func (s *Service) remember(sequenceID uint64, response wire.Response) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.recovered[sequenceID] = response
}

func (s *Service) unrecoverable(err error) error {
	s.log.Println(err)
	s.lockups.Disable(lockup.Of(lockup.RecoveryFailed))
	return err
}
