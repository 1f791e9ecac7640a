package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
)

// pendingHandshake is one entry in the handshake table (spec §3): a
// slave the pool has spawned but whose socket has not yet been
// accepted and bound by UUID.
type pendingHandshake struct {
	uuid      uuid.UUID
	spawnedAt time.Time
	acceptedAt time.Time
	accepted  bool
}

// handshakeTable tracks slaves between Spawn and their first READY
// frame. Two clocks apply: startup_timeout bounds spawn-to-accept (the
// slave must connect its socket in time), heartbeat_timeout bounds
// accept-to-READY (spec §3's "entries older than
// profile.heartbeat_timeout are discarded"). Owned exclusively by the
// reactor goroutine.
type handshakeTable struct {
	entries map[uuid.UUID]*pendingHandshake
}

func newHandshakeTable() *handshakeTable {
	return &handshakeTable{entries: make(map[uuid.UUID]*pendingHandshake)}
}

func (h *handshakeTable) add(id uuid.UUID, now time.Time) {
	h.entries[id] = &pendingHandshake{uuid: id, spawnedAt: now}
}

func (h *handshakeTable) accept(id uuid.UUID, now time.Time) bool {
	e, ok := h.entries[id]
	if !ok {
		return false
	}
	e.accepted = true
	e.acceptedAt = now
	return true
}

func (h *handshakeTable) ready(id uuid.UUID) {
	delete(h.entries, id)
}

// sweep discards entries that have overstayed their clock and returns
// the slave UUIDs to reap, each tagged with the dead reason to apply.
func (h *handshakeTable) sweep(now time.Time, startupTimeout, heartbeatTimeout time.Duration) []struct {
	uuid   uuid.UUID
	reason model.DeadReason
} {
	var expired []struct {
		uuid   uuid.UUID
		reason model.DeadReason
	}
	for id, e := range h.entries {
		if !e.accepted {
			if now.Sub(e.spawnedAt) > startupTimeout {
				expired = append(expired, struct {
					uuid   uuid.UUID
					reason model.DeadReason
				}{id, model.DeadLaunchFailed})
				delete(h.entries, id)
			}
			continue
		}
		if now.Sub(e.acceptedAt) > heartbeatTimeout {
			expired = append(expired, struct {
				uuid   uuid.UUID
				reason model.DeadReason
			}{id, model.DeadHandshakeFailed})
			delete(h.entries, id)
		}
	}
	return expired
}
