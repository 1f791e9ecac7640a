package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/isolate"
	"github.com/outpostrun/enginehost/internal/pubsub"
)

// controlKind enumerates the typed command frames of spec §4.7's
// duplex control channel.
type controlKind int

const (
	cmdInfo controlKind = iota
	cmdStop
)

type controlCmd struct {
	kind   controlKind
	result chan controlResult
}

type controlResult struct {
	snapshot model.Snapshot
	err      error
}

// Start launches the reactor goroutine (spec §4.7). Calling Start
// twice returns ErrAlreadyRunning.
func (e *Engine) Start() error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.startedAt = time.Now()
	e.done = make(chan struct{})
	e.runMu.Unlock()

	go e.run()
	return nil
}

// Stop posts a graceful stop command and blocks until the reactor has
// drained or force-killed every slave (spec §4.7). Idempotent: the
// second call is a no-op after the first has joined (spec invariant
// 7), matching the teacher's closeOnce discipline at the connection
// level but applied to the whole engine.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return nil
	}
	e.runMu.Unlock()

	result := make(chan controlResult, 1)
	select {
	case e.controlCh <- controlCmd{kind: cmdStop, result: result}:
	case <-e.done:
		return nil
	}

	select {
	case r := <-result:
		return r.err
	case <-e.done:
		return nil
	}
}

// Info returns a structured snapshot taken inside the reactor
// goroutine, so its fields are mutually consistent (spec §4.7).
func (e *Engine) Info() (model.Snapshot, error) {
	e.runMu.Lock()
	running := e.running
	e.runMu.Unlock()
	if !running {
		return model.Snapshot{}, ErrEngineNotRunning
	}

	result := make(chan controlResult, 1)
	select {
	case e.controlCh <- controlCmd{kind: cmdInfo, result: result}:
	case <-e.done:
		return model.Snapshot{}, ErrEngineNotRunning
	}
	r := <-result
	return r.snapshot, r.err
}

// snapshot builds the structured value of spec §6, called on the
// reactor goroutine where pool/queue/sessions are consistent.
func (e *Engine) snapshot() model.Snapshot {
	inFlight := 0
	for range e.sessions {
		inFlight++
	}
	return model.Snapshot{
		App:        e.manifest.Name,
		QueueDepth: e.queue.Len(),
		Pool:       e.pool.Snapshot(),
		Sessions: model.SessionSnapshot{
			Served:   e.served,
			Pending:  e.queue.Len(),
			InFlight: inFlight,
		},
		UptimeMS: time.Since(e.startedAt).Milliseconds(),
		TakenAt:  time.Now(),
	}
}

// shutdown implements spec §4.7's stop(): error every pending and
// in-flight session with engine_shutdown, signal every slave to
// terminate, and wait up to termination_timeout for them to exit
// before force-killing the rest in parallel.
func (e *Engine) shutdown() {
	e.runMu.Lock()
	e.shuttingDown = true
	e.runMu.Unlock()

	e.drainQueue()

	deadline := time.Now().Add(e.profile.TerminationTimeout)
	for _, slave := range e.pool.All() {
		_ = e.gateway.Signal(slave.Channel, isolate.SignalTerminate)
	}

	for time.Now().Before(deadline) && e.pool.Len() > 0 {
		select {
		case frame := <-e.framesCh:
			e.handleFrame(frame)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if e.pool.Len() > 0 {
		e.forceKillRemaining()
	}

	// A session can be Enqueued concurrently with the runMu flip above,
	// landing in the queue after the first drain. Sweep it again now
	// that shuttingDown is visible to every caller, so no straggler is
	// left without its upstream ever being terminated (spec invariant 6).
	e.drainQueue()
}

// drainQueue errors every currently queued session with
// engine_shutdown. Called once up front and once more after the wait
// loop below, since Enqueue's running/shuttingDown check and the first
// drain are not atomic with each other.
func (e *Engine) drainQueue() {
	for _, session := range e.queue.Drain() {
		session.Sink.Error(model.ErrEngineShutdown, "engine stopped while session was queued")
	}
}

// forceKillRemaining kills every slave still present after the grace
// period, in parallel using errgroup (spec §4.7 "if the
// grace period expires, remaining slaves are force-killed").
func (e *Engine) forceKillRemaining() {
	remaining := e.pool.All()
	group, _ := errgroup.WithContext(context.Background())
	for _, slave := range remaining {
		slave := slave
		group.Go(func() error {
			return e.gateway.Signal(slave.Channel, isolate.SignalKill)
		})
	}
	if err := group.Wait(); err != nil {
		e.log.Warn("force-kill encountered errors", "error", err)
	}

	for _, slave := range remaining {
		inFlight, _ := e.pool.Reap(slave.UUID, model.DeadForceKilled)
		e.publish(pubsub.SlaveDied(e.manifest.Name, slave.UUID.String(), model.DeadForceKilled, time.Now()))
		for _, sid := range inFlight {
			if session, ok := e.sessions[sid]; ok {
				e.completeSession(session, model.ErrEngineShutdown, "engine stopped: slave force-killed")
			}
		}
	}
}
