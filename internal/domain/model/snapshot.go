package model

import "time"

// PoolSnapshot breaks slave counts down by state, per spec §6.
type PoolSnapshot struct {
	Active           int `json:"active"`
	Draining         int `json:"draining"`
	Spawning         int `json:"spawning"`
	DeadSinceStart   int `json:"dead_since_start"`
}

// SessionSnapshot reports session throughput counters, per spec §6.
type SessionSnapshot struct {
	Served   uint64 `json:"served"`
	Pending  int    `json:"pending"`
	InFlight int    `json:"in_flight"`
}

// Snapshot is the structured value returned by Engine.Info(), taken
// inside the reactor goroutine so its fields are mutually consistent
// (spec §4.7).
type Snapshot struct {
	App        string          `json:"app"`
	QueueDepth int             `json:"queue_depth"`
	Pool       PoolSnapshot    `json:"pool"`
	Sessions   SessionSnapshot `json:"sessions"`
	UptimeMS   int64           `json:"uptime_ms"`
	TakenAt    time.Time       `json:"taken_at"`
}
