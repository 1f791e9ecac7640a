// Package engine implements the scheduler/supervisor core of
// spec.md: the balancer (C5), the reactor loop (C6), and the control
// plane (C7), composed around the domain model's queue and pool.
// Grounded on the teacher's registry.Hub/Cell actor-loop idiom — a
// single goroutine owning all mutable state, woken by channels rather
// than by an OS-level event loop.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/domain/pool"
	"github.com/outpostrun/enginehost/internal/domain/queue"
	"github.com/outpostrun/enginehost/internal/isolate"
	"github.com/outpostrun/enginehost/internal/pubsub"
	"github.com/outpostrun/enginehost/internal/transport"
)

// inboundFrame pairs a wire frame with the slave it arrived from, for
// the reactor's single fan-in channel.
type inboundFrame struct {
	slave uuid.UUID
	frame transport.Frame
}

// Engine hosts one app: the session queue, slave pool, balancer and
// reactor loop described in spec §2-§5. All mutable state below
// nextSessionID, except the runMu-guarded fields, is touched
// exclusively by the reactor goroutine once Start has returned;
// Enqueue, Start, Stop and Info are safe to call from other goroutines.
type Engine struct {
	log       *slog.Logger
	manifest  *isolate.Manifest
	profile   isolate.Profile
	gateway   isolate.Gateway
	publisher Publisher

	queue      *queue.Queue
	pool       *pool.Pool
	balancer   *balancer
	handshakes *handshakeTable
	sessions   map[uint64]*model.Session

	nextSessionID uint64

	wakeCh    chan struct{}
	controlCh chan controlCmd
	acceptCh  chan *model.Slave
	framesCh  chan inboundFrame

	startedAt    time.Time
	served       uint64
	shuttingDown bool

	runMu   sync.Mutex
	running bool
	done    chan struct{}
}

// New constructs an Engine for one app. The profile is filled in with
// spec §6 defaults for any zero-valued field.
func New(manifest *isolate.Manifest, profile isolate.Profile, opts ...Option) *Engine {
	profile = mergeProfile(profile)

	e := &Engine{
		log:        slog.Default().With("app", manifest.Name),
		manifest:   manifest,
		profile:    profile,
		queue:      queue.New(),
		handshakes: newHandshakeTable(),
		sessions:   make(map[uint64]*model.Session),
		wakeCh:     make(chan struct{}, 1),
		controlCh:  make(chan controlCmd),
		acceptCh:   make(chan *model.Slave, 8),
		framesCh:   make(chan inboundFrame, 64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gateway == nil {
		e.gateway = isolate.NewProcessGateway(e.log)
	}
	e.pool = pool.New(profile.PoolLimit, e.gateway)
	e.balancer = newBalancer(e.queue, e.pool, manifest, &e.profile, e.dispatch, e.onSpawn, e.log)
	return e
}

// Enqueue implements spec §6's public API: it appends a session to the
// queue and wakes the reactor. Safe for concurrent callers; it takes
// the engine's run mutex and the queue's internal mutex and performs a
// single non-blocking channel send.
func (e *Engine) Enqueue(event model.Event, upstream model.Upstream, tag string) (model.Downstream, error) {
	e.runMu.Lock()
	running := e.running && !e.shuttingDown
	e.runMu.Unlock()
	if !running {
		return nil, ErrEngineNotRunning
	}

	if e.queue.Len() >= e.profile.QueueLimit {
		return nil, newError(model.ErrQueueFull, "queue depth %d at limit %d", e.queue.Len(), e.profile.QueueLimit)
	}

	id := atomic.AddUint64(&e.nextSessionID, 1)
	session := model.NewSession(id, event, upstream, tag, time.Now())
	e.queue.Push(session)
	e.wake()
	return session.Sink, nil
}

// wake performs the async-notification edge signal (spec §4.6): a
// non-blocking send on a capacity-1 channel. If the reactor hasn't
// drained the previous wake yet, this is a no-op — it will still see
// the new session on its next pass.
func (e *Engine) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// completeSession finalises a session's upstream exactly once (spec
// invariant 6) and bumps the served counter. Must be called from the
// reactor goroutine.
func (e *Engine) completeSession(session *model.Session, errKind model.ErrorKind, errMsg string) {
	delete(e.sessions, session.ID)
	if errKind != 0 {
		session.Sink.Error(errKind, errMsg)
	} else {
		session.Sink.Close()
	}
	atomic.AddUint64(&e.served, 1)
	e.publish(pubsub.SessionComplete(e.manifest.Name, session.ID, time.Now()))
}

// publish forwards a lifecycle event to the attached exporter, if any.
// A nil publisher makes this a no-op.
func (e *Engine) publish(ev pubsub.LifecycleEvent) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(context.Background(), ev)
}
