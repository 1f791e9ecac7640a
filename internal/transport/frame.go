// Package transport implements the slave wire protocol (spec.md §4.6):
// a length-prefixed binary codec over the slave's stdio pipes, and a
// duplex connection wrapper with a buffered per-slave writer goroutine
// so the reactor's Send never blocks on a slow child. Grounded on the
// teacher's ws/delivery.go framing (length-prefixed binary frames over
// a single connection, fanned out to a per-connection write queue).
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameType enumerates the wire messages exchanged with a slave,
// spec §4.6.
type FrameType uint8

const (
	FrameHandshake FrameType = iota
	FrameHeartbeat
	FrameInvoke
	FrameChunk
	FrameError
	FrameChoke
	FrameTerminate
)

func (t FrameType) String() string {
	switch t {
	case FrameHandshake:
		return "handshake"
	case FrameHeartbeat:
		return "heartbeat"
	case FrameInvoke:
		return "invoke"
	case FrameChunk:
		return "chunk"
	case FrameError:
		return "error"
	case FrameChoke:
		return "choke"
	case FrameTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Frame is one wire message: a type tag, the session it belongs to
// (0 for session-less frames such as handshake/heartbeat), and an
// opaque payload.
type Frame struct {
	Type      FrameType
	SessionID uint64
	Payload   []byte
}

// header layout: 1 byte type, 8 bytes session id, 4 bytes payload
// length, all big-endian, followed by the payload bytes.
const headerSize = 1 + 8 + 4

// maxPayload guards against a malformed peer claiming an unbounded
// length prefix.
const maxPayload = 64 << 20

// WriteFrame encodes and writes one frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > maxPayload {
		return fmt.Errorf("transport: payload too large (%d bytes)", len(f.Payload))
	}
	header := make([]byte, headerSize)
	header[0] = byte(f.Type)
	binary.BigEndian.PutUint64(header[1:9], f.SessionID)
	binary.BigEndian.PutUint32(header[9:13], uint32(len(f.Payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("transport: write header: %w", err)
	}
	if len(f.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(f.Payload); err != nil {
		return fmt.Errorf("transport: write payload: %w", err)
	}
	return nil
}

// ReadFrame blocks until one complete frame has been read from r.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(header[9:13])
	if length > maxPayload {
		return Frame{}, fmt.Errorf("transport: declared payload too large (%d bytes)", length)
	}
	f := Frame{
		Type:      FrameType(header[0]),
		SessionID: binary.BigEndian.Uint64(header[1:9]),
	}
	if length == 0 {
		return f, nil
	}
	f.Payload = make([]byte, length)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, fmt.Errorf("transport: read payload: %w", err)
	}
	return f, nil
}
