// Package pool implements the slave pool (spec.md §4.4, component C4):
// the indexed set of slaves for one engine, responsible for spawning up
// to capacity, routing by identity, and reaping dead slaves. Grounded on
// the teacher's registry.Hub (a sync.Map-backed index keyed by identity,
// with a bounded background reclamation sweep) translated to a plain
// map because every mutation here happens on the single reactor
// goroutine (spec §5) — no concurrent writers, so no sync.Map is needed.
package pool

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/isolate"
)

// DeadDiagnostic is a compact record of a slave's death, kept in a
// bounded cache so a long-lived host doesn't accumulate unbounded
// diagnostic history — the same cache-aside memory discipline as
// internal/service/peer_enricher.go's LRU of resolved peers.
type DeadDiagnostic struct {
	UUID       uuid.UUID
	Reason     model.DeadReason
	DiedAt     time.Time
	HadInFlight int
}

// Pool is the indexed set of slaves for one engine. Cardinality of the
// non-dead slaves is bounded by limit (spec §3 "Pool", invariant 3):
// a slave record exists here from the moment it is spawned (state
// spawning) until it is reaped (state dead), so len(slaves) already
// accounts for spawning+handshaking+active+draining without needing a
// second additive "pending" term in the capacity check.
type Pool struct {
	limit   int
	gateway isolate.Gateway

	slaves map[uuid.UUID]*model.Slave

	deadTotal  uint64
	recentDead *lru.Cache[uuid.UUID, DeadDiagnostic]
}

// New returns an empty pool bounded at limit, spawning new slaves
// through gateway.
func New(limit int, gateway isolate.Gateway) *Pool {
	cache, _ := lru.New[uuid.UUID, DeadDiagnostic](256)
	return &Pool{
		limit:      limit,
		gateway:    gateway,
		slaves:     make(map[uuid.UUID]*model.Slave),
		recentDead: cache,
	}
}

// Len returns the number of non-dead slaves currently tracked.
func (p *Pool) Len() int {
	return len(p.slaves)
}

// ByUUID is an O(1) lookup used by the reactor when dispatching inbound
// frames (spec §4.4).
func (p *Pool) ByUUID(id uuid.UUID) (*model.Slave, bool) {
	s, ok := p.slaves[id]
	return s, ok
}

// Idle returns a snapshot of slaves eligible for new assignments: active
// state, spare concurrency window (spec §4.4 idle()). The slice is a
// point-in-time copy; mutating the pool afterwards does not affect it.
func (p *Pool) Idle() []*model.Slave {
	out := make([]*model.Slave, 0, len(p.slaves))
	for _, s := range p.slaves {
		if s.IdleCandidate() {
			out = append(out, s)
		}
	}
	return out
}

// SpawnIfUnderCapacity invokes the isolate gateway while
// len(pool) < min(limit, n), and returns the slaves it created in the
// spawning state. The caller (balancer/reactor) is responsible for
// registering each new slave's handshake-table entry.
func (p *Pool) SpawnIfUnderCapacity(ctx context.Context, manifest *isolate.Manifest, profile *isolate.Profile, n int) ([]*model.Slave, error) {
	target := n
	if target > p.limit {
		target = p.limit
	}

	var spawned []*model.Slave
	now := time.Now()
	for len(p.slaves) < target {
		id := uuid.New()
		handle, err := p.gateway.Spawn(ctx, id, manifest, profile)
		if err != nil {
			return spawned, fmt.Errorf("pool: spawn slave: %w", err)
		}
		slave := model.NewSlave(id, profile.Concurrency, now)
		slave.Channel = handle
		p.slaves[slave.UUID] = slave
		spawned = append(spawned, slave)
	}
	return spawned, nil
}

// MarkHandshaking transitions a spawning slave once its socket has been
// accepted and its handshake frame bound it to this UUID.
func (p *Pool) MarkHandshaking(id uuid.UUID) {
	if s, ok := p.slaves[id]; ok {
		s.State = model.SlaveHandshaking
	}
}

// MarkActive transitions a handshaking slave once it sends READY.
func (p *Pool) MarkActive(id uuid.UUID, now time.Time) {
	if s, ok := p.slaves[id]; ok {
		s.State = model.SlaveActive
		s.Touch(now)
	}
}

// MarkDraining transitions an active slave into draining (idle timeout
// or a requested stop).
func (p *Pool) MarkDraining(id uuid.UUID) {
	if s, ok := p.slaves[id]; ok && s.State == model.SlaveActive {
		s.State = model.SlaveDraining
	}
}

// Reap transitions a slave to dead, releases its channel via
// gateway.Reap (spec §4.3's terminal-state "close of channel"),
// removes it from the live set, and returns the session IDs that were
// in flight for the caller to requeue or error per spec §7.
func (p *Pool) Reap(id uuid.UUID, reason model.DeadReason) ([]uint64, bool) {
	s, ok := p.slaves[id]
	if !ok {
		return nil, false
	}
	inFlight := s.Kill(reason)
	delete(p.slaves, id)

	p.deadTotal++
	p.recentDead.Add(id, DeadDiagnostic{
		UUID:        id,
		Reason:      reason,
		DiedAt:      time.Now(),
		HadInFlight: len(inFlight),
	})

	if s.Channel != nil {
		_ = p.gateway.Reap(s.Channel)
	}
	return inFlight, true
}

// Snapshot summarises the pool by state for Engine.Info() (spec §6).
func (p *Pool) Snapshot() model.PoolSnapshot {
	var snap model.PoolSnapshot
	for _, s := range p.slaves {
		switch s.State {
		case model.SlaveActive:
			snap.Active++
		case model.SlaveDraining:
			snap.Draining++
		case model.SlaveSpawning, model.SlaveHandshaking:
			snap.Spawning++
		}
	}
	snap.DeadSinceStart = int(p.deadTotal)
	return snap
}

// All returns a snapshot slice of every live slave, for GC sweeps.
func (p *Pool) All() []*model.Slave {
	out := make([]*model.Slave, 0, len(p.slaves))
	for _, s := range p.slaves {
		out = append(out, s)
	}
	return out
}

// RecentDeath returns the diagnostic record for a recently reaped
// slave, if it is still present in the bounded cache.
func (p *Pool) RecentDeath(id uuid.UUID) (DeadDiagnostic, bool) {
	return p.recentDead.Get(id)
}
