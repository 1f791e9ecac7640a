package transport

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Conn is a duplex connection to one slave: reads are pumped by the
// caller (the engine's per-slave read pump calls ReadFrame); writes go through
// a bounded channel drained by a dedicated writer goroutine so Send
// never blocks the reactor on a slow or wedged child process (spec
// §4.6 "the reactor must never block on slave I/O").
type Conn struct {
	log *slog.Logger

	w io.WriteCloser
	r io.ReadCloser

	out chan Frame

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps a slave's stdio pipes. bufSize bounds the outbound
// write queue (spec's io_bulk_size governs reactor-side batching; this
// is the independent per-connection backpressure buffer).
func NewConn(r io.ReadCloser, w io.WriteCloser, bufSize int, log *slog.Logger) *Conn {
	c := &Conn{
		log:    log,
		w:      w,
		r:      r,
		out:    make(chan Frame, bufSize),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case f, ok := <-c.out:
			if !ok {
				return
			}
			if err := WriteFrame(c.w, f); err != nil {
				c.log.Warn("slave write failed", "frame", f.Type, "session_id", f.SessionID, "error", err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Send implements model.Channel. It enqueues the frame without
// blocking beyond filling the write buffer; a full buffer means the
// slave is not draining its stdin fast enough, and Send returns an
// error instead of waiting.
func (c *Conn) Send(frameType int, sessionID uint64, payload []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("transport: connection closed")
	default:
	}
	select {
	case c.out <- Frame{Type: FrameType(frameType), SessionID: sessionID, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("transport: write buffer full")
	}
}

// ReadFrame blocks for the next inbound frame from the slave.
func (c *Conn) ReadFrame() (Frame, error) {
	return ReadFrame(c.r)
}

// Close stops the writer goroutine and closes both pipe halves. Safe
// to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if cerr := c.w.Close(); cerr != nil {
			err = cerr
		}
		if cerr := c.r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
