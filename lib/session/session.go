// Package session drives the terminal through connecting to the server,
// fetching its startup data and waiting until the server allows play.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cds/client/lib/automaton"
	"cds/client/lib/event"
	"cds/client/lib/game"
	"cds/client/lib/lockup"
	"cds/client/lib/protocol"
	"cds/client/lib/txid"
	"cds/client/lib/wire"
)

var (
	ErrConnect             = errors.New("could not connect to server")
	ErrProgressiveDisabled = errors.New("progressives are disabled by the server")
	ErrUnexpectedBody      = errors.New("unexpected response body")
)

// Connector is the transport.
type Connector interface {
	ConnectCommand(ctx context.Context, timeout time.Duration) bool
	ConnectBroadcast(ctx context.Context) error
	Disconnect()
}

// Requester is the request tracker.
type Requester interface {
	Request(ctx context.Context, request wire.Request) (wire.Response, error)
	RequestWith(ctx context.Context, request wire.Request, options protocol.Options) (wire.Response, error)
	PendingTransactionIDs() []uint32
	CanPlay(ctx context.Context) bool
}

type Events interface {
	event.Publisher
	event.Subscriber
}

type Config struct {
	TerminalID           string
	ConnectTimeout       time.Duration
	RequestTimeout       time.Duration
	Retries              int
	StartupTimeout       time.Duration
	ReconnectInterval    time.Duration
	ReinitializeInterval time.Duration
	ReadyProbeInterval   time.Duration
}

type Session struct {
	config       Config
	transport    Connector
	requests     Requester
	games        *game.Registry
	transactions *txid.Counter
	lockups      lockup.Disabler
	events       Events

	automaton *automaton.Automaton

	reconnect  periodic
	reinit     periodic
	readyProbe periodic

	mutex      sync.Mutex
	cancelInit context.CancelFunc

	networkDown int32
	playSeen    int32
	probing     int32

	log *log.Logger
}

func New(config Config, transport Connector, requests Requester, games *game.Registry,
	transactions *txid.Counter, lockups lockup.Disabler, events Events) *Session {
	s := &Session{
		config:       config,
		transport:    transport,
		requests:     requests,
		games:        games,
		transactions: transactions,
		lockups:      lockups,
		events:       events,
		log:          log.New(log.Writer(), "session: ", log.Flags()),
	}
	s.automaton = automaton.New(automaton.Definition{
		Initial:     Created,
		Transitions: transitions,
		OnEntry: map[automaton.State]automaton.EntryAction{
			Disconnected:          s.enterDisconnected,
			Initializing:          s.enterInitializing,
			InitializationFailed:  s.enterInitializationFailed,
			WaitingForReadyToPlay: s.enterWaitingForReadyToPlay,
			Ready:                 s.enterReady,
		},
		OnTransition: func(from automaton.State, to automaton.State, trigger automaton.Trigger) {
			if from == Initializing && to != Initializing {
				s.stopInitialization()
			}
			s.log.Println(StateName(from), "->", StateName(to))
		},
	})
	return s
}

func (s *Session) State() automaton.State {
	return s.automaton.State()
}

// CanOfferGameplay reports whether a new round may start.
func (s *Session) CanOfferGameplay(ctx context.Context) bool {
	return s.State().Is(Ready) && s.requests.CanPlay(ctx)
}

// Run connects to the server and keeps the session alive until the context is cancelled.
func (s *Session) Run(ctx context.Context) {
	unsubscribe := s.events.Subscribe(func(e event.Event) {
		switch e.Kind {
		case event.ServerOffline:
			if s.State().IsNone(Created, Disconnected) {
				s.automaton.Fire(Disconnect)
			}
		case event.NetworkAvailabilityChanged:
			s.networkChanged(e.Payload)
		}
	}, event.ServerOffline, event.NetworkAvailabilityChanged)
	defer unsubscribe()
	defer s.stopTimers()
	defer s.stopInitialization()

	s.automaton.Fire(Disconnect)
	s.automaton.Fire(Initialize)
	s.automaton.Run(ctx)
}

// Notify handles an unsolicited server message.
func (s *Session) Notify(message wire.Message) {
	switch body := message.Body.(type) {
	case *wire.ServerCommand:
		s.serverCommand(body.Action)
	case *wire.ParameterPush:
		s.log.Println("server pushed new parameters, reinitializing")
		s.events.Publish(event.ParametersChanged, nil)
		s.automaton.Fire(Disconnect)
	default:
		s.log.Println("ignoring notification", message.Command)
	}
}

func (s *Session) serverCommand(action wire.ServerAction) {
	state := s.State()
	switch action {
	case wire.ActionPlay:
		s.events.Publish(event.ServerPlay, nil)
		s.lockups.Enable(lockup.ServerPaused)
		switch {
		case state.Is(Initializing):
			atomic.StoreInt32(&s.playSeen, 1)
		case state.Is(WaitingForReadyToPlay):
			s.automaton.Fire(BecomeReady)
		}
	case wire.ActionPause:
		s.events.Publish(event.ServerPause, nil)
		switch {
		case state.Is(Ready):
			s.lockups.Disable(lockup.Of(lockup.ServerPaused))
		case state.Is(WaitingForReadyToPlay):
			s.automaton.Fire(Retry)
		}
	default:
		s.log.Println("ignoring server command", action)
	}
}

func (s *Session) networkChanged(payload interface{}) {
	availability, ok := payload.(event.NetworkAvailability)
	if !ok {
		s.log.Println("ignoring network change without availability")
		return
	}
	if !availability.Up {
		atomic.StoreInt32(&s.networkDown, 1)
		if s.State().IsNot(Disconnected) {
			s.automaton.Fire(Disconnect)
		}
		return
	}
	atomic.StoreInt32(&s.networkDown, 0)
	if s.State().IsAny(Disconnected, InitializationFailed) {
		s.automaton.Fire(Initialize)
	}
}

func (s *Session) networkUp() bool {
	return atomic.LoadInt32(&s.networkDown) == 0
}

func (s *Session) enterDisconnected(ctx context.Context, trigger automaton.Trigger) {
	s.stopTimers()
	s.lockups.Disable(lockup.Of(lockup.ServerDisconnected))
	s.transport.Disconnect()
	s.reconnect.Start(ctx, s.config.ReconnectInterval, func(context.Context) {
		if s.networkUp() {
			s.automaton.Fire(Initialize)
		}
	})
}

func (s *Session) enterInitializing(ctx context.Context, trigger automaton.Trigger) {
	s.stopTimers()
	s.stopInitialization()
	atomic.StoreInt32(&s.playSeen, 0)
	s.lockups.Disable(lockup.Of(lockup.ProtocolInitializing))
	s.events.Publish(event.InitializationInProgress, nil)

	ctx, cancel := context.WithCancel(ctx)
	s.mutex.Lock()
	s.cancelInit = cancel
	s.mutex.Unlock()
	go func() {
		err := s.initialize(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Println("initialization failed:", err)
			s.automaton.Fire(Fail)
			return
		}
		s.events.Publish(event.InitializationComplete, nil)
		if atomic.LoadInt32(&s.playSeen) == 1 {
			s.automaton.Fire(BecomeReady)
		} else {
			s.automaton.Fire(Wait)
		}
	}()
}

func (s *Session) enterInitializationFailed(ctx context.Context, trigger automaton.Trigger) {
	if !s.lockups.IsActive(lockup.ProgressiveDisabled) {
		s.lockups.Disable(lockup.Of(lockup.ProtocolInitializationFailed))
		s.events.Publish(event.InitializationFailed, nil)
	}
	s.reinit.Start(ctx, s.config.ReinitializeInterval, func(context.Context) {
		s.automaton.Fire(Initialize)
	})
}

func (s *Session) enterWaitingForReadyToPlay(ctx context.Context, trigger automaton.Trigger) {
	s.lockups.Enable(lockup.ProtocolInitializationFailed)
	s.probe(ctx)
	s.readyProbe.Start(ctx, s.config.ReadyProbeInterval, s.probe)
}

func (s *Session) enterReady(ctx context.Context, trigger automaton.Trigger) {
	s.stopTimers()
	s.lockups.Enable(lockup.ProtocolInitializationFailed)
	s.lockups.Enable(lockup.ProtocolInitializing)
}

// probe tells the server that the terminal is waiting for a play command.
// At most one probe is in flight; a tick that finds one running is skipped.
func (s *Session) probe(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.probing, 0, 1) {
		return
	}
	go func() {
		defer atomic.StoreInt32(&s.probing, 0)
		if _, err := s.requests.Request(ctx, wire.Request{Body: &wire.ReadyToPlay{}}); err != nil && ctx.Err() == nil {
			s.log.Println("ready to play:", err)
		}
	}()
}

// initialize connects and fetches everything the terminal needs before it can play.
func (s *Session) initialize(ctx context.Context) error {
	if !s.transport.ConnectCommand(ctx, s.config.ConnectTimeout) {
		return ErrConnect
	}
	s.lockups.Enable(lockup.ServerDisconnected)

	parameters, err := fetch[wire.ParametersResponse](ctx, s.requests, &wire.ParametersRequest{TerminalID: s.config.TerminalID}, nil)
	if err != nil {
		return err
	}
	s.transactions.Seed(txid.Reconcile(parameters.LastTransactionID, s.requests.PendingTransactionIDs()...))

	info, err := fetch[wire.GameInfoResponse](ctx, s.requests, &wire.GameInfoRequest{}, nil)
	if err != nil {
		return err
	}
	if err = s.transport.ConnectBroadcast(ctx); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if err = s.games.SetGames(info.Games, parameters.GameCount); err != nil {
		return err
	}

	startup := protocol.Options{Timeout: s.config.StartupTimeout, Retries: s.config.Retries}
	player, err := fetch[wire.PlayerIDResponse](ctx, s.requests, &wire.PlayerIDRequest{TerminalID: s.config.TerminalID}, &startup)
	if err != nil {
		return err
	}
	s.games.SetPlayerID(player.PlayerID)

	if parameters.ProgressiveDisabled {
		s.lockups.Disable(lockup.Of(lockup.ProgressiveDisabled))
		return ErrProgressiveDisabled
	}
	s.lockups.Enable(lockup.ProgressiveDisabled)
	progressives, err := fetch[wire.ProgressiveInfoResponse](ctx, s.requests, &wire.ProgressiveInfoRequest{}, nil)
	if err != nil {
		return err
	}
	s.games.SetProgressiveLevels(progressives.Levels)
	return nil
}

// fetch sends a startup request and returns the response body.
func fetch[T any](ctx context.Context, requests Requester, body wire.RequestBody, options *protocol.Options) (*T, error) {
	request := wire.Request{Body: body}
	var response wire.Response
	var err error
	if options != nil {
		response, err = requests.RequestWith(ctx, request, *options)
	} else {
		response, err = requests.Request(ctx, request)
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", body.Command(), err)
	}
	out, ok := any(response.Body).(*T)
	if !ok {
		return nil, fmt.Errorf("%w: %T for %v", ErrUnexpectedBody, response.Body, body.Command())
	}
	return out, nil
}

func (s *Session) stopInitialization() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cancelInit != nil {
		s.cancelInit()
		s.cancelInit = nil
	}
}

func (s *Session) stopTimers() {
	s.reconnect.Stop()
	s.reinit.Stop()
	s.readyProbe.Stop()
}
