// Package model holds the core value types the engine schedules and
// supervises: policies, events, streams, sessions, and slaves.
package model

import "time"

// Policy governs how a session is scheduled. The zero value means
// "no timeout, no deadline, not urgent".
type Policy struct {
	// Urgent sessions bypass FIFO ordering and occupy the queue's prefix.
	Urgent bool

	// Timeout bounds how long a session may wait in the queue before it
	// is considered for deadline pruning by the caller (advisory; the
	// engine itself only acts on Deadline).
	Timeout time.Duration

	// Deadline is the absolute wall-clock expiry. Zero means none.
	Deadline time.Time
}

// Expired reports whether the policy's deadline has passed as of now.
func (p Policy) Expired(now time.Time) bool {
	return !p.Deadline.IsZero() && now.After(p.Deadline)
}
