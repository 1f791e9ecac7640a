package model

import (
	"sync"
)

// ErrorKind enumerates the session-scoped error kinds the engine can
// raise on a stream, mirroring the taxonomy in spec.md §7.
type ErrorKind int

const (
	_ ErrorKind = iota
	ErrQueueFull
	ErrDeadlineExceeded
	ErrWorkerUnresponsive
	ErrWorkerCrashed
	ErrEngineShutdown
	ErrInvocationFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrQueueFull:
		return "queue_full"
	case ErrDeadlineExceeded:
		return "deadline_exceeded"
	case ErrWorkerUnresponsive:
		return "worker_unresponsive"
	case ErrWorkerCrashed:
		return "worker_crashed"
	case ErrEngineShutdown:
		return "engine_shutdown"
	case ErrInvocationFailed:
		return "invocation_failed"
	default:
		return "unknown"
	}
}

// Upstream is the client-facing sink for a session's response payload.
// Implementations are supplied by the caller of Enqueue and must be
// safe for concurrent Write/Error/Close — the engine never serializes
// calls to it beyond the per-session ordering guarantee in spec §5.
type Upstream interface {
	Write(chunk []byte) error
	Error(kind ErrorKind, message string) error
	Close() error
}

// Downstream is the sink driven by a slave's reply frames. The engine
// owns exactly one per in-flight session and forwards every call to the
// session's Upstream, terminating it exactly once (spec §8 invariant 6).
type Downstream interface {
	Write(chunk []byte) error
	Error(kind ErrorKind, message string) error
	Close() error
}

// downstream adapts a Session's Upstream into a Downstream, enforcing
// the single-termination invariant with a sync.Once guard — the same
// idempotency shield the teacher's connect.Close uses to survive being
// called from more than one goroutine (Hub shutdown, evictor, handler).
type downstream struct {
	upstream Upstream
	once     sync.Once
	done     bool
	mu       sync.Mutex
}

// NewDownstream wraps an Upstream so that terminal calls (Error/Close)
// are delivered at most once, regardless of how many call sites race to
// terminate the session.
func NewDownstream(upstream Upstream) Downstream {
	return &downstream{upstream: upstream}
}

func (d *downstream) Write(chunk []byte) error {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done {
		return nil
	}
	return d.upstream.Write(chunk)
}

func (d *downstream) Error(kind ErrorKind, message string) error {
	var err error
	d.once.Do(func() {
		d.mu.Lock()
		d.done = true
		d.mu.Unlock()
		err = d.upstream.Error(kind, message)
	})
	return err
}

func (d *downstream) Close() error {
	var err error
	d.once.Do(func() {
		d.mu.Lock()
		d.done = true
		d.mu.Unlock()
		err = d.upstream.Close()
	})
	return err
}
