// Package config loads the terminal client configuration from the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cds/client/lib/device"
	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
)

var (
	ErrMissingHost     = errors.New("server host is required")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrInvalidRetries  = errors.New("retry budget must not be negative")
)

type Config struct {
	ServerHost string `env:"CDS_SERVER_HOST"`
	ServerPort int    `env:"CDS_SERVER_PORT" envDefault:"7001"`
	// ServerKey is the hex encoded X25519 static key of the server.
	// The command channel is not encrypted without it.
	ServerKey string `env:"CDS_SERVER_KEY"`

	TerminalID uint32 `env:"CDS_TERMINAL_ID" envDefault:"1"`
	// TerminalSeed is the hex encoded Ed25519 seed of the terminal identity.
	TerminalSeed string `env:"CDS_TERMINAL_SEED"`

	BroadcastPort  int    `env:"CDS_BROADCAST_PORT" envDefault:"7002"`
	BroadcastGroup string `env:"CDS_BROADCAST_GROUP"`

	HeartbeatInterval    time.Duration `env:"CDS_HEARTBEAT_INTERVAL" envDefault:"10s"`
	ConnectTimeout       time.Duration `env:"CDS_CONNECT_TIMEOUT" envDefault:"5s"`
	RequestTimeout       time.Duration `env:"CDS_REQUEST_TIMEOUT" envDefault:"5s"`
	Retries              int           `env:"CDS_RETRIES" envDefault:"3"`
	StartupTimeout       time.Duration `env:"CDS_STARTUP_TIMEOUT" envDefault:"30s"`
	ReconnectInterval    time.Duration `env:"CDS_RECONNECT_INTERVAL" envDefault:"5s"`
	ReinitializeInterval time.Duration `env:"CDS_REINITIALIZE_INTERVAL" envDefault:"10s"`
	ReadyProbeInterval   time.Duration `env:"CDS_READY_PROBE_INTERVAL" envDefault:"5s"`

	ManualHandicap bool `env:"CDS_MANUAL_HANDICAP" envDefault:"false"`
	// LargeWinLimit is the win in credits at and above which a handpay is required.
	LargeWinLimit uint64 `env:"CDS_LARGE_WIN_LIMIT" envDefault:"120000"`

	DatabasePath string `env:"CDS_DATABASE_PATH" envDefault:"terminal.db"`
	PaytableDir  string `env:"CDS_PAYTABLE_DIR" envDefault:"paytables"`

	NATSURL    string `env:"CDS_NATS_URL"`
	NATSPrefix string `env:"CDS_NATS_PREFIX" envDefault:"cds.terminal"`

	Locale string `env:"CDS_LOCALE" envDefault:"en"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}
	return config, config.Validate()
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environment map[string]string) (Config, error) {
	var config Config
	if err := env.ParseWithOptions(&config, env.Options{Environment: environment}); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerHost) == "" {
		return ErrMissingHost
	}
	durations := map[string]time.Duration{
		"heartbeat interval":    c.HeartbeatInterval,
		"connect timeout":       c.ConnectTimeout,
		"request timeout":       c.RequestTimeout,
		"startup timeout":       c.StartupTimeout,
		"reconnect interval":    c.ReconnectInterval,
		"reinitialize interval": c.ReinitializeInterval,
		"ready probe interval":  c.ReadyProbeInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, name)
		}
	}
	if c.Retries < 0 {
		return ErrInvalidRetries
	}
	if _, err := c.ServerKeyBytes(); err != nil {
		return err
	}
	if _, err := c.Language(); err != nil {
		return err
	}
	return nil
}

func (c Config) ServerKeyBytes() ([]byte, error) {
	if c.ServerKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("decode server key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("server key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// KeyPair returns the terminal identity. Without a seed an ephemeral identity is generated.
func (c Config) KeyPair() (device.KeyPair, error) {
	if c.TerminalSeed == "" {
		return device.GenerateKeyPair(rand.Reader)
	}
	seed, err := hex.DecodeString(c.TerminalSeed)
	if err != nil {
		return device.KeyPair{}, fmt.Errorf("decode terminal seed: %w", err)
	}
	return device.KeyPairFromSeed(seed)
}

func (c Config) Language() (language.Tag, error) {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Und, fmt.Errorf("parse locale %q: %w", c.Locale, err)
	}
	return tag, nil
}

// CanPlayTimeout bounds the wait for the admission gate.
func (c Config) CanPlayTimeout() time.Duration {
	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	return c.RequestTimeout * time.Duration(retries)
}
