package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame wire format, one TCP connection per camera:
// +----------------------+----------------------+
// | length               | payload              |
// +----------------------+----------------------+
// | 4 bytes (big endian) | exactly length bytes |
// +----------------------+----------------------+
// Control messages travel the other way on the same socket as ASCII
// lines terminated by '\n'; see command.go.

// MaxFramePayload guards the receiver against a corrupted length prefix.
const MaxFramePayload = 5 * 1024 * 1024

var ErrFrameTooLarge = errors.New("protocol: frame exceeds size limit")

// WriteFrame writes the length prefix followed by the payload. The caller
// must serialize calls per connection; interleaved writers corrupt the
// stream.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("protocol: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, consuming exactly the number
// of bytes the prefix declares. A declared length over MaxFramePayload
// returns ErrFrameTooLarge with the stream positioned after the header,
// so callers must treat it as fatal for the connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return []byte{}, nil
	}
	if length > MaxFramePayload {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: short frame read: %w", err)
	}
	return payload, nil
}
