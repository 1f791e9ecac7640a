package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/domain/pool"
	"github.com/outpostrun/enginehost/internal/domain/queue"
	"github.com/outpostrun/enginehost/internal/isolate"
)

// dispatchFunc sends the Invoke/Chunk/Choke sequence to an assigned
// slave. Supplied by the reactor, which owns the transport.
type dispatchFunc func(slave *model.Slave, session *model.Session)

// balancer implements the matching algorithm of spec §4.5: drain ready
// sessions onto idle slaves, then grow the pool if work remains. It
// runs exclusively on the reactor goroutine; the queue lock it takes
// is held only for the duration of one pop_ready call at a time, never
// across slave I/O (spec §4.1's locking discipline).
type balancer struct {
	queue    *queue.Queue
	pool     *pool.Pool
	manifest *isolate.Manifest
	profile  *isolate.Profile
	dispatch dispatchFunc
	onSpawn  func([]*model.Slave)
	log      *slog.Logger
}

func newBalancer(q *queue.Queue, p *pool.Pool, manifest *isolate.Manifest, profile *isolate.Profile, dispatch dispatchFunc, onSpawn func([]*model.Slave), log *slog.Logger) *balancer {
	return &balancer{
		queue:    q,
		pool:     p,
		manifest: manifest,
		profile:  profile,
		dispatch: dispatch,
		onSpawn:  onSpawn,
		log:      log,
	}
}

// tick runs one balancing pass. It is invoked after any of: new session
// enqueued, slave became idle, slave died, periodic gc tick (spec §4.5).
func (b *balancer) tick(ctx context.Context, now time.Time) {
	if b.queue.Len() == 0 {
		return
	}

	for _, slave := range b.pool.Idle() {
		for len(slave.InFlight) < slave.Concurrency {
			session, ok := b.queue.PopReady(now)
			if !ok {
				break
			}
			session.Assign(slave.UUID)
			slave.Assign(session.ID)
			b.dispatch(slave, session)
		}
	}

	if b.queue.Len() == 0 {
		return
	}
	if b.pool.Len() >= b.profile.PoolLimit {
		return
	}

	spawned, err := b.pool.SpawnIfUnderCapacity(ctx, b.manifest, b.profile, b.queue.Len())
	if err != nil {
		b.log.Warn("spawn_if_under_capacity failed", "app", b.manifest.Name, "error", err)
	}
	if len(spawned) > 0 {
		b.onSpawn(spawned)
	}
}
