package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxMessageSize is the maximum allowed payload size (1 MiB). A
	// declared length above this ceiling is treated as stream corruption,
	// not as a large message.
	MaxMessageSize = 1024 * 1024

	// HeaderSize is the size of the length prefix in bytes.
	HeaderSize = 4
)

var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size (1 MiB)")
)

// EncodeMessage serializes a message to its wire form:
// a 4-byte big-endian payload length followed by the JSON payload.
func EncodeMessage(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	if len(payload) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	data := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(data[:HeaderSize], uint32(len(payload)))
	copy(data[HeaderSize:], payload)
	return data, nil
}

// DecodePayload parses a frame payload back into a Message. A malformed
// payload yields an ERROR message carrying a diagnostic rather than an
// error value: garbage arrives from remote, possibly misbehaving peers
// and must be handled as data, never as a fatal condition.
func DecodePayload(payload []byte) Message {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return NewErrorResponse(fmt.Sprintf("malformed payload: %v", err))
	}
	return msg
}

// WriteMessage encodes a message and writes the full frame to w.
func WriteMessage(w io.Writer, msg Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadMessage reads exactly one frame from r, blocking until it is
// complete. It is the blocking counterpart to Buffer for callers that own
// the reader, such as the client and tests.
func ReadMessage(r io.Reader) (Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxMessageSize {
		return Message{}, ErrMessageTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, err
	}

	return DecodePayload(payload), nil
}
