package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"cds/client/lib/config"
	"cds/client/lib/event"
	"cds/client/lib/game"
	"cds/client/lib/lockup"
	"cds/client/lib/outcome"
	"cds/client/lib/protocol"
	"cds/client/lib/recovery"
	"cds/client/lib/request"
	"cds/client/lib/session"
	"cds/client/lib/store/sqlite"
	"cds/client/lib/transport"
	"cds/client/lib/txid"
	"cds/client/lib/wire"
	"github.com/nats-io/nats.go"
)

func init() {
	log.SetFlags(log.Ltime)
}

// logSink shows lockups in the log until the terminal has a display attached.
type logSink struct{}

func (logSink) Disabled(key lockup.Key, message string, help string) {
	log.Printf("LOCKUP %s: %s (%s)\n", key, message, help)
}

func (logSink) Enabled(key lockup.Key) {
	log.Printf("lockup %s cleared\n", key)
}

func main() {
	validate := flag.Bool("validate", false, "validate the configuration and paytables and exit")
	flag.Parse()

	c, err := config.Load()
	if err != nil {
		log.Fatalln("failed to load configuration:", err)
	}
	tag, err := c.Language()
	if err != nil {
		log.Fatalln("invalid locale:", err)
	}
	serverKey, err := c.ServerKeyBytes()
	if err != nil {
		log.Fatalln("invalid server key:", err)
	}
	keyPair, err := c.KeyPair()
	if err != nil {
		log.Fatalln("failed to create terminal identity:", err)
	}
	paytables, err := game.LoadPaytables(c.PaytableDir)
	if err != nil {
		log.Fatalln("failed to load paytables:", err)
	}
	if *validate {
		log.Printf("configuration is valid, %d paytables\n", len(paytables))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, c.DatabasePath)
	if err != nil {
		log.Fatalln("failed to open database:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Println("failed to close database:", err)
		}
	}()

	bus := event.NewBus()
	if c.NATSURL != "" {
		conn, err := nats.Connect(c.NATSURL, nats.Name("cds-terminal-"+strconv.FormatUint(uint64(c.TerminalID), 10)))
		if err != nil {
			log.Fatalln("failed to connect to nats:", err)
		}
		defer conn.Close()
		forwarder, err := event.Forward(conn, bus, c.NATSPrefix)
		if err != nil {
			log.Fatalln("failed to forward events:", err)
		}
		defer forwarder.Close()
	}

	lockups := lockup.NewManager(tag, logSink{})
	games := game.NewRegistry(paytables)
	defer games.Attach(bus)()

	t := transport.New(transport.Config{
		Host:              c.ServerHost,
		Port:              c.ServerPort,
		BroadcastPort:     c.BroadcastPort,
		BroadcastGroup:    c.BroadcastGroup,
		HeartbeatInterval: c.HeartbeatInterval,
		ServerKey:         serverKey,
		KeyPair:           keyPair,
	}, bus)

	options := protocol.Options{Timeout: c.RequestTimeout, Retries: c.Retries}
	var tracker *request.Tracker
	var terminal *session.Session
	client := protocol.New(t,
		func(response wire.Response) { tracker.Observe(response) },
		func(message wire.Message) { terminal.Notify(message) })
	defer client.Close()

	tracker = request.New(client, db, lockups, bus, options)
	if err := tracker.Restore(ctx); err != nil {
		log.Fatalln("failed to restore pending requests:", err)
	}
	defer tracker.Attach(ctx, bus)()
	t.SetHandler(client.Handle)
	t.SetHeartbeat(tracker.KeepAlive)

	transactions := &txid.Counter{}
	last, err := db.LastTransactionID(ctx)
	if err != nil {
		log.Fatalln("failed to read last transaction id:", err)
	}
	transactions.Seed(last)

	recoveries := recovery.New(tracker, db, games, lockups, options)
	engine := outcome.New(outcome.Config{
		ManualHandicap: c.ManualHandicap,
		LargeWinLimit:  c.LargeWinLimit,
	}, tracker, recoveries, games, transactions, db, lockups, bus)

	terminal = session.New(session.Config{
		TerminalID:           strconv.FormatUint(uint64(c.TerminalID), 10),
		ConnectTimeout:       c.ConnectTimeout,
		RequestTimeout:       c.RequestTimeout,
		Retries:              c.Retries,
		StartupTimeout:       c.StartupTimeout,
		ReconnectInterval:    c.ReconnectInterval,
		ReinitializeInterval: c.ReinitializeInterval,
		ReadyProbeInterval:   c.ReadyProbeInterval,
	}, t, tracker, games, transactions, lockups, bus)

	defer bus.Subscribe(func(event.Event) {
		go resume(ctx, recoveries, engine)
	}, event.InitializationComplete)()

	go terminal.Run(ctx)
	log.Printf("terminal %d (%s) started, server %s:%d\n", c.TerminalID, keyPair.Fingerprint(), c.ServerHost, c.ServerPort)
	<-ctx.Done()
	t.Disconnect()
	log.Println("terminal stopped")
}

// resume finishes a round that was interrupted before its prize was recorded.
func resume(ctx context.Context, recoveries *recovery.Service, engine *outcome.Engine) {
	play, ok, err := recoveries.Unfinished(ctx)
	if err != nil {
		log.Println("failed to look for an unfinished round:", err)
		return
	}
	if !ok {
		return
	}
	info, err := engine.ResumeRound(ctx, play)
	switch {
	case errors.Is(err, outcome.ErrIgnoreOutcome):
		log.Println("unfinished round:", err)
	case err != nil:
		log.Println("failed to resume unfinished round:", err)
	default:
		log.Printf("resumed transaction %d, won %d credits\n", info.TransactionID, info.TotalWin())
	}
}
