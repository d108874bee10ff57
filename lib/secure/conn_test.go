package secure

import (
	"bytes"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"cds/client/lib/device"
)

const handshakeTimeout = time.Second

func TestClientServer_Frames(t *testing.T) {
	terminal, err := device.GenerateKeyPair(rand.Reader)
	require.Nil(t, err)
	server, err := device.GenerateKeyPair(rand.Reader)
	require.Nil(t, err)
	serverStatic := server.Noise()

	c1, c2 := net.Pipe()
	var g errgroup.Group
	var clientConn, serverConn Conn
	var peer []byte
	g.Go(func() (err error) {
		clientConn, err = Client(c1, terminal, serverStatic.Public, handshakeTimeout)
		return
	})
	g.Go(func() (err error) {
		serverConn, peer, err = Server(c2, serverStatic, handshakeTimeout)
		return
	})
	require.Nil(t, g.Wait())
	assert.EqualValues(t, terminal.Noise().Public, peer)

	frame := []byte("ready to play")
	g.Go(func() error { return clientConn.WriteFrame(frame) })
	received, err := serverConn.ReadFrame()
	require.Nil(t, err)
	require.Nil(t, g.Wait())
	assert.EqualValues(t, frame, received)

	g.Go(func() error { return serverConn.WriteFrame(frame) })
	received, err = clientConn.ReadFrame()
	require.Nil(t, err)
	require.Nil(t, g.Wait())
	assert.EqualValues(t, frame, received)
}

func TestClient_BadServerKey(t *testing.T) {
	terminal, err := device.GenerateKeyPair(rand.Reader)
	require.Nil(t, err)
	c1, _ := net.Pipe()
	_, err = Client(c1, terminal, []byte{1, 2}, handshakeTimeout)
	assert.ErrorIs(t, err, ErrBadServerKey)
}

func TestNoiseConn_FrameTooLarge(t *testing.T) {
	c := &noiseConn{}
	err := c.WriteFrame(bytes.Repeat([]byte{0}, PayloadMaxSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestPlain_Frames(t *testing.T) {
	c1, c2 := net.Pipe()
	a, b := Plain(c1), Plain(c2)
	var g errgroup.Group
	g.Go(func() error { return a.WriteFrame([]byte("keepalive")) })
	frame, err := b.ReadFrame()
	require.Nil(t, err)
	require.Nil(t, g.Wait())
	assert.EqualValues(t, "keepalive", frame)
}
