package model

import (
	"time"

	"github.com/google/uuid"
)

// SlaveState is a stage in the lifecycle described in spec.md §4.3.
type SlaveState int

const (
	SlaveSpawning SlaveState = iota
	SlaveHandshaking
	SlaveActive
	SlaveDraining
	SlaveDead
)

func (s SlaveState) String() string {
	switch s {
	case SlaveSpawning:
		return "spawning"
	case SlaveHandshaking:
		return "handshaking"
	case SlaveActive:
		return "active"
	case SlaveDraining:
		return "draining"
	case SlaveDead:
		return "dead"
	default:
		return "unknown"
	}
}

// DeadReason records why a slave reached the terminal state, used for
// diagnostics (spec §4.4 reap, §6 snapshot).
type DeadReason int

const (
	DeadNone DeadReason = iota
	DeadLaunchFailed
	DeadHandshakeFailed
	DeadCrashed
	DeadNormal
	DeadForceKilled
)

func (r DeadReason) String() string {
	switch r {
	case DeadLaunchFailed:
		return "launch_failed"
	case DeadHandshakeFailed:
		return "handshake_failed"
	case DeadCrashed:
		return "crashed"
	case DeadNormal:
		return "normal"
	case DeadForceKilled:
		return "force_killed"
	default:
		return "none"
	}
}

// Channel is the duplex wire connection to a slave process. It is kept
// abstract here so the domain model does not depend on internal/transport.
type Channel interface {
	// Send enqueues a frame for the slave; it must not block the caller
	// beyond filling the per-slave write buffer (spec §4.6).
	Send(frameType int, sessionID uint64, payload []byte) error
	Close() error
}

// Slave is a supervised child process executing events for one app.
// Every field is touched exclusively from the engine's reactor
// goroutine (spec §5), so no internal locking is required.
type Slave struct {
	UUID        uuid.UUID
	State       SlaveState
	DeadReason  DeadReason
	SpawnedAt   time.Time
	LastActive  time.Time
	Concurrency int
	InFlight    map[uint64]struct{}
	Channel     Channel
}

// NewSlave creates a slave record in the spawning state.
func NewSlave(id uuid.UUID, concurrency int, now time.Time) *Slave {
	return &Slave{
		UUID:        id,
		State:       SlaveSpawning,
		SpawnedAt:   now,
		LastActive:  now,
		Concurrency: concurrency,
		InFlight:    make(map[uint64]struct{}),
	}
}

// Touch records activity, resetting the heartbeat_timeout clock.
func (s *Slave) Touch(now time.Time) {
	s.LastActive = now
}

// IdleCandidate reports whether the slave may receive new assignments:
// active state with spare concurrency window (spec §4.4 idle()).
func (s *Slave) IdleCandidate() bool {
	return s.State == SlaveActive && len(s.InFlight) < s.Concurrency
}

// Assign records a session as in-flight on this slave.
func (s *Slave) Assign(sessionID uint64) {
	s.InFlight[sessionID] = struct{}{}
}

// Release removes a session from the in-flight set, e.g. on completion.
func (s *Slave) Release(sessionID uint64) {
	delete(s.InFlight, sessionID)
}

// Kill transitions the slave to dead with the given reason. Returns the
// set of session IDs that were in flight at the moment of death, for the
// caller to requeue or error per spec §4.3/§7.
func (s *Slave) Kill(reason DeadReason) []uint64 {
	s.State = SlaveDead
	s.DeadReason = reason
	ids := make([]uint64, 0, len(s.InFlight))
	for id := range s.InFlight {
		ids = append(ids, id)
	}
	s.InFlight = map[uint64]struct{}{}
	return ids
}
