package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoadFrom_Defaults(t *testing.T) {
	config, err := LoadFrom(map[string]string{"CDS_SERVER_HOST": "cds.local"})
	require.Nil(t, err)
	assert.Equal(t, "cds.local", config.ServerHost)
	assert.Equal(t, 7001, config.ServerPort)
	assert.Equal(t, 5*time.Second, config.RequestTimeout)
	assert.Equal(t, 3, config.Retries)
	assert.Equal(t, 15*time.Second, config.CanPlayTimeout())
	assert.False(t, config.ManualHandicap)
	assert.Equal(t, "cds.terminal", config.NATSPrefix)

	tag, err := config.Language()
	require.Nil(t, err)
	assert.Equal(t, language.English, tag)
}

func TestLoadFrom_Overrides(t *testing.T) {
	config, err := LoadFrom(map[string]string{
		"CDS_SERVER_HOST":     "10.0.0.1",
		"CDS_REQUEST_TIMEOUT": "250ms",
		"CDS_RETRIES":         "2",
		"CDS_MANUAL_HANDICAP": "true",
		"CDS_LOCALE":          "de",
	})
	require.Nil(t, err)
	assert.Equal(t, 250*time.Millisecond, config.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, config.CanPlayTimeout())
	assert.True(t, config.ManualHandicap)
}

func TestLoadFrom_Invalid(t *testing.T) {
	_, err := LoadFrom(map[string]string{})
	assert.ErrorIs(t, err, ErrMissingHost)

	_, err = LoadFrom(map[string]string{"CDS_SERVER_HOST": "h", "CDS_READY_PROBE_INTERVAL": "0s"})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = LoadFrom(map[string]string{"CDS_SERVER_HOST": "h", "CDS_RETRIES": "-1"})
	assert.ErrorIs(t, err, ErrInvalidRetries)

	_, err = LoadFrom(map[string]string{"CDS_SERVER_HOST": "h", "CDS_SERVER_KEY": "abcd"})
	assert.NotNil(t, err)
}

func TestConfig_KeyPair(t *testing.T) {
	config := Config{TerminalSeed: strings.Repeat("01", 32)}
	first, err := config.KeyPair()
	require.Nil(t, err)
	second, err := config.KeyPair()
	require.Nil(t, err)
	assert.Equal(t, first.Public, second.Public)

	config.TerminalSeed = "zz"
	_, err = config.KeyPair()
	assert.NotNil(t, err)
}
