package device

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairFromSeed_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	k1, err := KeyPairFromSeed(seed)
	require.Nil(t, err)
	k2, err := KeyPairFromSeed(seed)
	require.Nil(t, err)
	assert.Equal(t, k1.Public, k2.Public)
	assert.Equal(t, k1.Noise().Public, k2.Noise().Public)
	assert.Equal(t, k1.Fingerprint(), k2.Fingerprint())
	assert.Len(t, k1.Fingerprint(), 16)
}

func TestKeyPairFromSeed_BadSeed(t *testing.T) {
	_, err := KeyPairFromSeed([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadSeed)
}

func TestKeyPair_Noise(t *testing.T) {
	key, err := GenerateKeyPair(rand.Reader)
	require.Nil(t, err)
	static := key.Noise()
	assert.Len(t, static.Private, 32)
	assert.Len(t, static.Public, 32)

	other, err := GenerateKeyPair(rand.Reader)
	require.Nil(t, err)
	assert.NotEqual(t, key.Fingerprint(), other.Fingerprint())
}
