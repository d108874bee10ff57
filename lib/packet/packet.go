// Package packet frames the byte stream of the command channel.
// Every frame is a big endian uint32 length followed by that many bytes.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrTooLarge = errors.New("packet exceeds the maximum length")

const headerSize = 4

// MaxLength is the largest payload of a single frame.
// Game info responses are the largest frames the server sends.
const MaxLength = 1 << 22

// Write writes the payload as one frame with a single Write call,
// so that writers sharing a locked connection never interleave frames.
func Write(w io.Writer, payload []byte) error {
	if len(payload) > MaxLength {
		return fmt.Errorf("%w: %v bytes", ErrTooLarge, len(payload))
	}
	frame := make([]byte, headerSize, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}

// Read reads the payload of the next frame.
func Read(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxLength {
		return nil, fmt.Errorf("%w: header announces %v bytes", ErrTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
