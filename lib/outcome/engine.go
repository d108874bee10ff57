package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"cds/client/lib/event"
	"cds/client/lib/game"
	"cds/client/lib/lockup"
	"cds/client/lib/protocol"
	"cds/client/lib/store"
	"cds/client/lib/txid"
	"cds/client/lib/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cds/client/outcome")

// Requester sends tracked requests.
type Requester interface {
	Request(ctx context.Context, request wire.Request) (wire.Response, error)
	NextSequence() uint64
}

// Recoverer asks the server what happened to a request.
type Recoverer interface {
	Recover(ctx context.Context, sequenceID uint64) (wire.Response, error)
}

type Config struct {
	ManualHandicap bool
	// LargeWinLimit is the win in credits at and above which a handpay is required.
	LargeWinLimit uint64
}

type Engine struct {
	config       Config
	requests     Requester
	recovery     Recoverer
	games        *game.Registry
	transactions *txid.Counter
	store        store.Store
	lockups      lockup.Disabler
	events       event.Publisher

	mutex         sync.Mutex
	recoveries    uint64
	lastPlay      uint64
	lastRaceStart uint64
	handicap      *handicap

	log *log.Logger
}

// handicap is the state between the two phases of a manually handicapped round.
type handicap struct {
	gameID       uint32
	credits      uint32
	denomination uint32
	transaction  uint32
	outcome      *wire.Outcome
	picks        []wire.RaceSet
}

func New(config Config, requests Requester, recovery Recoverer, games *game.Registry, transactions *txid.Counter,
	s store.Store, lockups lockup.Disabler, events event.Publisher) *Engine {
	return &Engine{
		config:       config,
		requests:     requests,
		recovery:     recovery,
		games:        games,
		transactions: transactions,
		store:        s,
		lockups:      lockups,
		events:       events,
		log:          log.New(log.Writer(), "outcome: ", log.Flags()),
	}
}

// Play starts a round with the next transaction id.
func (e *Engine) Play(ctx context.Context, gameID uint32, credits uint32, denomination uint32) (PrizeInformation, error) {
	transactionID, err := e.transactions.Next()
	if err != nil {
		return PrizeInformation{}, err
	}
	return e.DeterminePrize(ctx, gameID, credits, denomination, transactionID, false)
}

// DeterminePrize plays a round and returns its verified prize.
// With recovering set the round that was in flight for the transaction is recovered instead.
func (e *Engine) DeterminePrize(ctx context.Context, gameID uint32, credits uint32, denomination uint32,
	transactionID uint32, recovering bool) (info PrizeInformation, err error) {

	ctx, span := tracer.Start(ctx, "outcome.determine_prize")
	span.SetAttributes(
		attribute.Int64("game_id", int64(gameID)),
		attribute.Int64("transaction_id", int64(transactionID)),
		attribute.Bool("recovering", recovering),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	round, err := e.round(gameID, credits, denomination, transactionID)
	if err != nil {
		return info, err
	}
	if recovering {
		return e.recoverRound(ctx, round)
	}
	if e.config.ManualHandicap {
		return e.startRace(ctx, round)
	}

	request := wire.Request{Body: e.playBody(round, false)}
	response, generation, err := e.send(ctx, request, store.SlotGamePlay)
	if err != nil {
		return info, err
	}
	return e.finish(ctx, round, response, generation, false)
}

// ResumeRound recovers the round of a play request that has no prize record.
func (e *Engine) ResumeRound(ctx context.Context, play wire.Request) (PrizeInformation, error) {
	body, ok := play.Body.(*wire.GamePlayRequest)
	if !ok {
		return PrizeInformation{}, fmt.Errorf("%w: %v request", ErrNoSavedRequest, play.Command())
	}
	return e.DeterminePrize(ctx, body.GameID, body.Credits, body.Denomination, body.Transaction, true)
}

// RequestRaceInfo sends the first phase of a manually handicapped round
// and returns the prize the server's own picks would win.
func (e *Engine) RequestRaceInfo(ctx context.Context, gameID uint32, credits uint32, denomination uint32,
	transactionID uint32) (PrizeInformation, error) {

	round, err := e.round(gameID, credits, denomination, transactionID)
	if err != nil {
		return PrizeInformation{}, err
	}
	request := wire.Request{Body: e.playBody(round, true)}
	response, generation, err := e.send(ctx, request, store.SlotGamePlay)
	if err != nil {
		return PrizeInformation{}, err
	}
	outcome, err := e.accept(response, generation)
	if err != nil {
		return PrizeInformation{}, err
	}
	info, err := e.calculate(round, response, outcome, true)
	if err != nil {
		return PrizeInformation{}, err
	}

	e.mutex.Lock()
	e.handicap = &handicap{
		gameID:       gameID,
		credits:      credits,
		denomination: denomination,
		transaction:  transactionID,
		outcome:      outcome,
		picks:        outcome.RaceSets,
	}
	e.mutex.Unlock()
	return info, nil
}

// SetHandicapPicks replaces the picks the race start is sent with.
func (e *Engine) SetHandicapPicks(picks []wire.RaceSet) error {
	if len(picks) != wire.RaceSetCount {
		return fmt.Errorf("%w: %d race sets", ErrBadPicks, len(picks))
	}
	for _, set := range picks {
		if len(set.Races) != wire.RacesPerSet {
			return fmt.Errorf("%w: %d races", ErrBadPicks, len(set.Races))
		}
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.handicap == nil {
		return ErrNoRaceInfo
	}
	e.handicap.picks = picks
	return nil
}

// ClearManualHandicapData forgets the race info of an unfinished manual round.
func (e *Engine) ClearManualHandicapData() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.handicap = nil
}

func (e *Engine) startRace(ctx context.Context, round PrizeInformation) (PrizeInformation, error) {
	e.mutex.Lock()
	h := e.handicap
	e.mutex.Unlock()
	if h == nil || h.transaction != round.TransactionID || h.gameID != round.GameID {
		if _, err := e.RequestRaceInfo(ctx, round.GameID, round.Credits, round.Denomination, round.TransactionID); err != nil {
			return PrizeInformation{}, err
		}
		e.mutex.Lock()
		h = e.handicap
		e.mutex.Unlock()
	}

	picks := make([]wire.RaceSet, len(h.picks))
	for i, set := range h.picks {
		picks[i] = wire.RaceSet{Races: set.Races}
	}
	request := wire.Request{Body: &wire.RaceStartRequest{
		GameID:      round.GameID,
		Transaction: round.TransactionID,
		Picks:       picks,
	}}
	response, generation, err := e.send(ctx, request, store.SlotRaceStart)
	if err != nil {
		return PrizeInformation{}, err
	}
	info, err := e.finish(ctx, round, response, generation, true)
	if err == nil {
		e.ClearManualHandicapData()
	}
	return info, err
}

func (e *Engine) round(gameID uint32, credits uint32, denomination uint32, transactionID uint32) (PrizeInformation, error) {
	g, paytable, err := e.games.Lookup(gameID)
	if err != nil {
		return PrizeInformation{}, err
	}
	if len(g.Denominations) > 0 && !contains(g.Denominations, denomination) {
		return PrizeInformation{}, fmt.Errorf("%w: game %d, denomination %d", ErrBadDenomination, gameID, denomination)
	}
	if _, err = paytable.TicketSet(credits, paytable.Lines); err != nil {
		return PrizeInformation{}, err
	}
	return PrizeInformation{
		GameID:        gameID,
		TransactionID: transactionID,
		Credits:       credits,
		Denomination:  denomination,
		Lines:         paytable.Lines,
		Wager:         [2]uint64{uint64(credits), 0},
	}, nil
}

func (e *Engine) playBody(round PrizeInformation, manual bool) *wire.GamePlayRequest {
	return &wire.GamePlayRequest{
		GameID:       round.GameID,
		Credits:      round.Credits,
		Denomination: round.Denomination,
		Lines:        round.Lines,
		Transaction:  round.TransactionID,
		PlayerID:     e.games.PlayerID(),
		Manual:       manual,
	}
}

// send persists and sends a play or race start request.
// A timeout hands the request to the recovery.
func (e *Engine) send(ctx context.Context, request wire.Request, slot store.Slot) (wire.Response, uint64, error) {
	request.SequenceID = e.requests.NextSequence()
	if err := e.save(ctx, request, slot); err != nil {
		return wire.Response{}, 0, err
	}

	e.mutex.Lock()
	if slot == store.SlotRaceStart {
		e.lastRaceStart = request.SequenceID
	} else {
		e.lastPlay = request.SequenceID
	}
	generation := e.recoveries
	e.mutex.Unlock()

	response, err := e.requests.Request(ctx, request)
	switch {
	case errors.Is(err, protocol.ErrTimeout):
		e.failed(request, err)
		return e.recover(ctx, request.SequenceID)
	case err != nil && ctx.Err() == nil:
		e.failed(request, err)
	}
	return response, generation, err
}

func (e *Engine) save(ctx context.Context, request wire.Request, slot store.Slot) error {
	if slot == store.SlotGamePlay {
		if err := e.store.ClearLastRequest(ctx, store.SlotRaceStart); err != nil {
			return err
		}
	}
	if err := e.store.SaveLastRequest(ctx, slot, request); err != nil {
		return err
	}
	if body, ok := request.Body.(wire.TransactionIDer); ok {
		if err := e.store.SaveLastTransactionID(ctx, body.TransactionID()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) failed(request wire.Request, cause error) {
	payload := event.RequestFailure{SequenceID: request.SequenceID, Reason: cause.Error()}
	if body, ok := request.Body.(wire.TransactionIDer); ok {
		payload.TransactionID = body.TransactionID()
	}
	e.events.Publish(event.GamePlayRequestFailed, payload)
}

// recover asks the recovery for the outcome of a request.
// The returned generation includes this recovery, so it is not mistaken for a concurrent one.
func (e *Engine) recover(ctx context.Context, sequenceID uint64) (wire.Response, uint64, error) {
	e.mutex.Lock()
	e.recoveries++
	generation := e.recoveries
	e.mutex.Unlock()

	response, err := e.recovery.Recover(ctx, sequenceID)
	return response, generation, err
}

func (e *Engine) recoverRound(ctx context.Context, round PrizeInformation) (PrizeInformation, error) {
	request, slot, err := e.savedRequest(ctx, round.TransactionID)
	if err != nil {
		return PrizeInformation{}, err
	}
	e.mutex.Lock()
	if slot == store.SlotRaceStart {
		e.lastRaceStart = request.SequenceID
	} else {
		e.lastPlay = request.SequenceID
	}
	e.mutex.Unlock()

	response, generation, err := e.recover(ctx, request.SequenceID)
	if err != nil {
		return PrizeInformation{}, err
	}
	manual := slot == store.SlotRaceStart
	info, err := e.finish(ctx, round, response, generation, manual)
	if err == nil && manual {
		e.ClearManualHandicapData()
	}
	return info, err
}

// savedRequest returns the latest saved play or race start request of a transaction.
func (e *Engine) savedRequest(ctx context.Context, transactionID uint32) (wire.Request, store.Slot, error) {
	for _, slot := range []store.Slot{store.SlotRaceStart, store.SlotGamePlay} {
		request, ok, err := e.store.LastRequest(ctx, slot)
		if err != nil {
			return wire.Request{}, slot, err
		}
		if !ok {
			continue
		}
		if body, ok := request.Body.(wire.TransactionIDer); ok && body.TransactionID() == transactionID {
			return request, slot, nil
		}
	}
	return wire.Request{}, "", fmt.Errorf("%w: %d", ErrNoSavedRequest, transactionID)
}

// accept discards stale responses.
func (e *Engine) accept(response wire.Response, generation uint64) (*wire.Outcome, error) {
	e.mutex.Lock()
	concurrent := e.recoveries != generation
	lastPlay, lastRaceStart := e.lastPlay, e.lastRaceStart
	e.mutex.Unlock()

	if concurrent {
		return nil, fmt.Errorf("%w: recovery started while waiting for %d", ErrIgnoreOutcome, response.ReplyID)
	}
	if !response.IsRecovery() && response.ReplyID != lastPlay && response.ReplyID != lastRaceStart {
		return nil, fmt.Errorf("%w: reply %d", ErrIgnoreOutcome, response.ReplyID)
	}
	outcome, ok := response.Body.(*wire.Outcome)
	if !ok {
		return nil, fmt.Errorf("%w: %v body", ErrMalformedOutcome, response.Command)
	}
	return outcome, nil
}

func (e *Engine) finish(ctx context.Context, round PrizeInformation, response wire.Response, generation uint64,
	manual bool) (PrizeInformation, error) {

	outcome, err := e.accept(response, generation)
	if err != nil {
		return PrizeInformation{}, err
	}
	if err = e.store.SaveLastResponse(ctx, response); err != nil {
		return PrizeInformation{}, err
	}
	info, err := e.calculate(round, response, outcome, manual)
	if err != nil {
		return PrizeInformation{}, err
	}

	data, err := json.Marshal(info)
	if err != nil {
		return PrizeInformation{}, err
	}
	prize := store.Prize{SequenceID: info.SequenceID, TransactionID: info.TransactionID, Data: data}
	if err = e.store.SavePrize(ctx, prize); err != nil {
		return PrizeInformation{}, err
	}
	return info, nil
}

func (e *Engine) calculate(round PrizeInformation, response wire.Response, outcome *wire.Outcome, manual bool) (PrizeInformation, error) {
	info := round
	info.SequenceID = response.ReplyID
	info.Recovered = response.IsRecovery()
	info.RaceSets = outcome.RaceSets
	info.WinnerString = outcome.WinnerString

	paytable, err := e.games.Paytable(round.GameID)
	if err != nil {
		return PrizeInformation{}, err
	}
	ticketSet, err := paytable.TicketSet(round.Credits, round.Lines)
	if err != nil {
		return PrizeInformation{}, err
	}
	prizes, err := Evaluate(ticketSet, outcome.RaceSets)
	if err != nil {
		return PrizeInformation{}, e.fatal(round, outcome, err)
	}
	if err = Validate(outcome, prizes, manual); err != nil {
		return PrizeInformation{}, e.fatal(round, outcome, err)
	}
	info.Prizes = prizes
	if err = Calculate(&info, prizes, e.games.ProgressiveAmount, e.config.LargeWinLimit); err != nil {
		return PrizeInformation{}, e.fatal(round, outcome, err)
	}
	return info, nil
}

// fatal disables the terminal for a round whose prize cannot be verified.
func (e *Engine) fatal(round PrizeInformation, outcome *wire.Outcome, err error) error {
	payload := event.CalculationFailure{
		GameID:        round.GameID,
		TransactionID: round.TransactionID,
		Expected:      outcome.WinnerString,
	}
	var calculation *CalculationError
	if errors.As(err, &calculation) {
		payload.Expected = calculation.Expected
		payload.Calculated = calculation.Calculated
	}
	e.log.Println("prize calculation:", err)
	e.lockups.Disable(lockup.Of(lockup.PrizeCalculationError))
	e.events.Publish(event.PrizeCalculationError, payload)
	return err
}

func contains(values []uint32, value uint32) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
