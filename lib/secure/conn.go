// Package secure wraps the command channel into frame oriented connections,
// optionally encrypted with a Noise XK handshake against the server's static key.
package secure

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	. "github.com/flynn/noise"

	"cds/client/lib/device"
	"cds/client/lib/packet"
)

// TagSize is the size of the authentication tag of the noise.CipherChaChaPoly cipher.
const TagSize = 16

// MessageMaxSize represents the maximum byte size of an encrypted Noise message.
const MessageMaxSize = (1 << 16) - 1

// PayloadMaxSize represents the maximum byte size of a frame on an encrypted connection.
const PayloadMaxSize = MessageMaxSize - TagSize

var (
	ErrFrameTooLarge   = errors.New("frame is too large for an encrypted connection")
	ErrBadServerKey    = errors.New("server key must be a 32 byte X25519 public key")
	ErrHandshakeFailed = errors.New("noise handshake failed")
)

// cipherSuite is used for every encrypted command channel.
var cipherSuite = NewCipherSuite(DH25519, CipherChaChaPoly, HashSHA256)

// Conn is a connection that exchanges whole frames.
type Conn interface {
	WriteFrame(frame []byte) error
	ReadFrame() ([]byte, error)
	SetDeadline(t time.Time) error
	Close() error
}

// Plain frames a connection with length headers and no encryption.
func Plain(conn net.Conn) Conn {
	return &plainConn{Conn: conn}
}

type plainConn struct {
	net.Conn
	writeMutex sync.Mutex
}

func (c *plainConn) WriteFrame(frame []byte) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return packet.Write(c.Conn, frame)
}

func (c *plainConn) ReadFrame() ([]byte, error) {
	return packet.Read(c.Conn)
}

// Client performs the initiator side of a Noise XK handshake.
// The terminal proves its identity with its static key,
// the server is authenticated by the serverKey the terminal was provisioned with.
func Client(conn net.Conn, key device.KeyPair, serverKey []byte, timeout time.Duration) (Conn, error) {
	if len(serverKey) != 32 {
		return nil, ErrBadServerKey
	}
	hs, err := NewHandshakeState(Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       HandshakeXK,
		Initiator:     true,
		StaticKeypair: key.Noise(),
		PeerStatic:    serverKey,
	})
	if err != nil {
		return nil, err
	}
	if err = conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	// -> e, es
	if _, _, _, err = writeHandshake(conn, hs); err != nil {
		return nil, err
	}
	// <- e, ee
	if _, _, err = readHandshake(conn, hs); err != nil {
		return nil, err
	}
	// -> s, se
	_, c1, c2, err := writeHandshake(conn, hs)
	if err != nil {
		return nil, err
	}
	if c1 == nil || c2 == nil {
		return nil, ErrHandshakeFailed
	}
	if err = conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return wrap(conn, c1, c2), nil
}

// Server performs the responder side of a Noise XK handshake.
// It returns the X25519 static key of the initiator.
func Server(conn net.Conn, static DHKey, timeout time.Duration) (Conn, []byte, error) {
	hs, err := NewHandshakeState(Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       HandshakeXK,
		Initiator:     false,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, nil, err
	}
	if err = conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}
	if _, _, err = readHandshake(conn, hs); err != nil {
		return nil, nil, err
	}
	if _, _, _, err = writeHandshake(conn, hs); err != nil {
		return nil, nil, err
	}
	c1, c2, err := readHandshake(conn, hs)
	if err != nil {
		return nil, nil, err
	}
	if c1 == nil || c2 == nil {
		return nil, nil, ErrHandshakeFailed
	}
	if err = conn.SetDeadline(time.Time{}); err != nil {
		return nil, nil, err
	}
	return wrap(conn, c2, c1), hs.PeerStatic(), nil
}

func writeHandshake(conn net.Conn, hs *HandshakeState) (message []byte, c1, c2 *CipherState, err error) {
	message, c1, c2, err = hs.WriteMessage(nil, nil)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		return
	}
	err = packet.Write(conn, message)
	return
}

func readHandshake(conn net.Conn, hs *HandshakeState) (c1, c2 *CipherState, err error) {
	message, err := packet.Read(conn)
	if err != nil {
		return
	}
	_, c1, c2, err = hs.ReadMessage(nil, message)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return
}

func wrap(conn net.Conn, writeCipher, readCipher *CipherState) Conn {
	return &noiseConn{
		Conn:        conn,
		writeCipher: writeCipher,
		readCipher:  readCipher,
	}
}

type noiseConn struct {
	net.Conn
	writeCipher *CipherState
	readCipher  *CipherState
	writeMutex  sync.Mutex
	readMutex   sync.Mutex
}

// WriteFrame encrypts the frame and writes it as one packet.
// Encryption and write are atomic because Noise enforces
// that messages are decrypted in the order they were encrypted.
func (c *noiseConn) WriteFrame(frame []byte) error {
	if len(frame) > PayloadMaxSize {
		return fmt.Errorf("%w: %v bytes", ErrFrameTooLarge, len(frame))
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	ciphertext, err := c.writeCipher.Encrypt(nil, nil, frame)
	if err != nil {
		return err
	}
	return packet.Write(c.Conn, ciphertext)
}

// ReadFrame reads one packet and decrypts it.
func (c *noiseConn) ReadFrame() ([]byte, error) {
	c.readMutex.Lock()
	defer c.readMutex.Unlock()
	ciphertext, err := packet.Read(c.Conn)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) > MessageMaxSize {
		return nil, ErrFrameTooLarge
	}
	return c.readCipher.Decrypt(nil, nil, ciphertext)
}
