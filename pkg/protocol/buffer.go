package protocol

import (
	"encoding/binary"
	"fmt"
)

// Buffer reassembles discrete messages from a TCP byte stream. A single
// read may carry zero, one, or many complete frames, and a frame may span
// many reads; callers append once per read and then drain:
//
//	buf.Append(data)
//	for buf.HasComplete() {
//		msg, ok := buf.Extract()
//		...
//	}
//
// A Buffer is owned by one receive loop and is not safe for concurrent use.
type Buffer struct {
	data []byte
}

// Append adds raw bytes from the stream to the accumulator.
func (b *Buffer) Append(data []byte) {
	b.data = append(b.data, data...)
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Clear discards all accumulated bytes.
func (b *Buffer) Clear() {
	b.data = nil
}

// HasComplete reports whether Extract would produce a message. A declared
// length above MaxMessageSize also counts as extractable: the resulting
// oversize error must reach the caller through the same drain loop.
func (b *Buffer) HasComplete() bool {
	if len(b.data) < HeaderSize {
		return false
	}
	length := binary.BigEndian.Uint32(b.data[:HeaderSize])
	if length > MaxMessageSize {
		return true
	}
	return len(b.data) >= HeaderSize+int(length)
}

// Extract removes exactly one frame from the front of the buffer and
// decodes it. The second return is false when no complete frame is
// buffered. When the declared length exceeds MaxMessageSize the entire
// accumulated buffer is discarded and a single ERROR message is returned:
// a corrupt length field permanently desynchronizes the stream, and the
// bytes already buffered cannot be trusted to start at a frame boundary.
func (b *Buffer) Extract() (Message, bool) {
	if len(b.data) < HeaderSize {
		return Message{}, false
	}

	length := binary.BigEndian.Uint32(b.data[:HeaderSize])
	if length > MaxMessageSize {
		b.Clear()
		return NewErrorResponse(fmt.Sprintf("declared frame length %d exceeds limit", length)), true
	}

	total := HeaderSize + int(length)
	if len(b.data) < total {
		return Message{}, false
	}

	payload := b.data[HeaderSize:total]
	msg := DecodePayload(payload)
	b.data = b.data[total:]
	if len(b.data) == 0 {
		b.data = nil
	}
	return msg, true
}
