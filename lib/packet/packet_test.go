package packet

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	var b bytes.Buffer
	require.Nil(t, Write(&b, []byte("game play")))
	assert.Equal(t, uint32(9), binary.BigEndian.Uint32(b.Bytes()[:headerSize]))
	assert.Equal(t, []byte("game play"), b.Bytes()[headerSize:])
}

func TestRead_Consecutive(t *testing.T) {
	var b bytes.Buffer
	require.Nil(t, Write(&b, []byte("game play")))
	require.Nil(t, Write(&b, []byte("race start")))
	require.Nil(t, Write(&b, nil))

	first, err := Read(&b)
	require.Nil(t, err)
	second, err := Read(&b)
	require.Nil(t, err)
	empty, err := Read(&b)
	require.Nil(t, err)
	assert.Equal(t, []byte("game play"), first)
	assert.Equal(t, []byte("race start"), second)
	assert.Empty(t, empty)

	_, err = Read(&b)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRead_Truncated(t *testing.T) {
	var b bytes.Buffer
	require.Nil(t, Write(&b, []byte("keepalive")))
	_, err := Read(bytes.NewReader(b.Bytes()[:b.Len()-1]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestTooLarge(t *testing.T) {
	assert.ErrorIs(t, Write(io.Discard, make([]byte, MaxLength+1)), ErrTooLarge)

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, MaxLength+1)
	_, err := Read(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrTooLarge)
}
