// Package device holds the terminal's long-term identity.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/oasisprotocol/curve25519-voi/primitives/x25519"
)

var (
	ErrBadSeed = errors.New("terminal key seed must be 32 bytes")
	ErrBadKey  = errors.New("terminal key has no X25519 form")
)

// KeyPair is the Ed25519 identity a terminal is provisioned with.
// The command channel handshake uses its X25519 form.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey

	static noise.DHKey
}

func GenerateKeyPair(reader io.Reader) (KeyPair, error) {
	public, private, err := ed25519.GenerateKey(reader)
	if err != nil {
		return KeyPair{}, err
	}
	return newKeyPair(private, public)
}

// KeyPairFromSeed derives the key pair from the provisioned seed.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, fmt.Errorf("%w: got %v", ErrBadSeed, len(seed))
	}
	private := ed25519.NewKeyFromSeed(seed)
	return newKeyPair(private, private.Public().(ed25519.PublicKey))
}

func newKeyPair(private ed25519.PrivateKey, public ed25519.PublicKey) (KeyPair, error) {
	static, ok := x25519.EdPublicKeyToX25519(public)
	if !ok {
		return KeyPair{}, ErrBadKey
	}
	return KeyPair{
		Private: private,
		Public:  public,
		static: noise.DHKey{
			Private: x25519.EdPrivateKeyToX25519(private),
			Public:  static,
		},
	}, nil
}

// Noise returns the X25519 static key pair of the handshake.
func (k KeyPair) Noise() noise.DHKey {
	return k.static
}

// Fingerprint is the short form of the public key used to name the terminal.
func (k KeyPair) Fingerprint() string {
	sum := sha256.Sum256(k.Public)
	return hex.EncodeToString(sum[:8])
}
