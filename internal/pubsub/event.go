// Package pubsub exports engine lifecycle events to an external bus
// for cross-host observability (SPEC_FULL.md DOMAIN STACK), grounded on
// the teacher's internal/adapter/pubsub publisher/factory shape and
// built on ThreeDotsLabs/watermill with the AMQP binding.
package pubsub

import (
	"time"

	"github.com/outpostrun/enginehost/internal/domain/model"
)

// LifecycleEvent is the wire payload published for every slave
// spawn/death and session completion, JSON-encoded onto the bus.
type LifecycleEvent struct {
	App       string    `json:"app"`
	Kind      string    `json:"kind"`
	SlaveUUID string    `json:"slave_uuid,omitempty"`
	SessionID uint64    `json:"session_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

const (
	KindSlaveSpawned    = "slave_spawned"
	KindSlaveDied       = "slave_died"
	KindSessionComplete = "session_complete"
)

// SlaveDied builds the event published when a slave is reaped.
func SlaveDied(app string, id string, reason model.DeadReason, at time.Time) LifecycleEvent {
	return LifecycleEvent{App: app, Kind: KindSlaveDied, SlaveUUID: id, Reason: reason.String(), At: at}
}

// SlaveSpawned builds the event published when the pool spawns a slave.
func SlaveSpawned(app string, id string, at time.Time) LifecycleEvent {
	return LifecycleEvent{App: app, Kind: KindSlaveSpawned, SlaveUUID: id, At: at}
}

// SessionComplete builds the event published when a session terminates.
func SessionComplete(app string, sessionID uint64, at time.Time) LifecycleEvent {
	return LifecycleEvent{App: app, Kind: KindSessionComplete, SessionID: sessionID, At: at}
}
