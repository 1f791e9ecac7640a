package model

import (
	"time"

	"github.com/google/uuid"
)

// Session carries one event through its lifecycle: created by Enqueue,
// queued, dequeued and bound to a slave, and completed exactly once by
// either a slave response, client cancellation, or deadline expiry.
type Session struct {
	ID         uint64
	Event      Event
	Sink       Downstream
	Tag        string
	EnqueuedAt time.Time

	// AssignedSlave is nil while the session is queued and set exactly
	// once, atomically with leaving queue ownership (spec §4.5 step 4).
	AssignedSlave *uuid.UUID
}

// NewSession wraps a caller-supplied event/upstream pair into a Session
// ready for queue insertion. The upstream is wrapped in a Downstream so
// every subsequent Error/Close call is delivered at most once.
func NewSession(id uint64, event Event, upstream Upstream, tag string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Event:      event,
		Sink:       NewDownstream(upstream),
		Tag:        tag,
		EnqueuedAt: now,
	}
}

// Expired reports whether the session's deadline has passed as of now.
func (s *Session) Expired(now time.Time) bool {
	return s.Event.Policy.Expired(now)
}

// Assign binds the session to a slave, marking it as no longer queued.
func (s *Session) Assign(slave uuid.UUID) {
	id := slave
	s.AssignedSlave = &id
}
