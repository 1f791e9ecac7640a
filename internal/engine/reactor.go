package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/pubsub"
	"github.com/outpostrun/enginehost/internal/transport"
)

// run is the reactor loop (spec §4.6): a single goroutine multiplexing
// the wake channel, the control channel, the inbound frame fan-in, and
// a periodic gc tick. It owns the pool, queue mutation boundary,
// handshake table, and in-flight session map exclusively — nothing
// outside this goroutine touches them once Start returns.
func (e *Engine) run() {
	defer close(e.done)

	gcInterval := e.profile.IdleTimeout / 2
	if gcInterval <= 0 {
		gcInterval = time.Second
	}
	gcTicker := time.NewTicker(gcInterval)
	defer gcTicker.Stop()

	ctx := context.Background()

	for {
		select {
		case <-e.wakeCh:
			e.balancer.tick(ctx, time.Now())

		case frame := <-e.framesCh:
			e.drainFrames(frame)
			e.balancer.tick(ctx, time.Now())

		case now := <-gcTicker.C:
			e.gcSweep(now)
			e.balancer.tick(ctx, now)

		case cmd := <-e.controlCh:
			switch cmd.kind {
			case cmdInfo:
				cmd.result <- controlResult{snapshot: e.snapshot()}
			case cmdStop:
				e.shutdown()
				cmd.result <- controlResult{}
				e.runMu.Lock()
				e.running = false
				e.runMu.Unlock()
				return
			}
		}
	}
}

// drainFrames processes one frame and then drains up to io_bulk_size
// additional queued frames before yielding back to select, bounding
// how long one wake can starve the control and gc watchers (spec
// §4.6's io_bulk_size). Grounded on the teacher's Cell.loop batch
// drain of its mailbox channel.
func (e *Engine) drainFrames(first inboundFrame) {
	e.handleFrame(first)
	for i := 0; i < e.profile.IOBulkSize; i++ {
		select {
		case f := <-e.framesCh:
			e.handleFrame(f)
		default:
			return
		}
	}
}

// handleFrame dispatches one inbound wire frame to the relevant slave
// and session state transition.
func (e *Engine) handleFrame(in inboundFrame) {
	slave, ok := e.pool.ByUUID(in.slave)
	if !ok {
		return
	}

	switch in.frame.Type {
	case transport.FrameHandshake:
		e.handleHandshake(slave, in.frame)

	case transport.FrameHeartbeat:
		slave.Touch(time.Now())
		if slave.State == model.SlaveHandshaking {
			e.handshakes.ready(slave.UUID)
			e.pool.MarkActive(slave.UUID, time.Now())
		}

	case transport.FrameChunk:
		slave.Touch(time.Now())
		if session, ok := e.sessions[in.frame.SessionID]; ok {
			session.Sink.Write(in.frame.Payload)
		}

	case transport.FrameError:
		slave.Touch(time.Now())
		if session, ok := e.sessions[in.frame.SessionID]; ok {
			e.completeSession(session, model.ErrInvocationFailed, string(in.frame.Payload))
			slave.Release(in.frame.SessionID)
		}

	case transport.FrameChoke:
		slave.Touch(time.Now())
		if session, ok := e.sessions[in.frame.SessionID]; ok {
			e.completeSession(session, 0, "")
			slave.Release(in.frame.SessionID)
		}
		e.maybeDrain(slave)

	case transport.FrameTerminate:
		if e.shuttingDown {
			e.failSlave(slave, model.DeadNormal, model.ErrEngineShutdown)
		} else {
			e.failSlave(slave, model.DeadCrashed, model.ErrWorkerCrashed)
		}
	}
}

// handleHandshake verifies the slave's self-reported UUID matches the
// one it was spawned with (spec §4.3 "handshake frame received, uuid
// matches"), then transitions spawning -> handshaking.
func (e *Engine) handleHandshake(slave *model.Slave, frame transport.Frame) {
	claimed, err := uuid.FromBytes(frame.Payload)
	if err != nil || claimed != slave.UUID {
		e.failSlave(slave, model.DeadHandshakeFailed, 0)
		return
	}
	e.handshakes.accept(slave.UUID, time.Now())
	e.pool.MarkHandshaking(slave.UUID)
}

// maybeDrain reaps a draining slave (dead, reason normal) once it has
// no remaining in-flight sessions and leaves any other slave as it is;
// the gc sweep is what actually requests draining, this just lets an
// already-draining slave complete.
func (e *Engine) maybeDrain(slave *model.Slave) {
	if slave.State == model.SlaveDraining && len(slave.InFlight) == 0 {
		id := slave.UUID
		inFlight, _ := e.pool.Reap(id, model.DeadNormal)
		e.publish(pubsub.SlaveDied(e.manifest.Name, id.String(), model.DeadNormal, time.Now()))
		for _, sid := range inFlight {
			if session, ok := e.sessions[sid]; ok {
				e.completeSession(session, model.ErrEngineShutdown, "slave drained with session still assigned")
			}
		}
	}
}

// failSlave reaps a slave and errors every session that was in flight
// on it with the given kind (spec §7), never retrying automatically.
// Handshake/launch failures never carry sessions (spec §7: "do not
// touch any session... only record a diagnostic"), so kind is unused
// for those reasons.
func (e *Engine) failSlave(slave *model.Slave, reason model.DeadReason, kind model.ErrorKind) {
	id := slave.UUID
	inFlight, ok := e.pool.Reap(id, reason)
	if !ok {
		return
	}
	e.publish(pubsub.SlaveDied(e.manifest.Name, id.String(), reason, time.Now()))
	if reason == model.DeadHandshakeFailed || reason == model.DeadLaunchFailed {
		return
	}
	for _, sid := range inFlight {
		if session, ok := e.sessions[sid]; ok {
			e.completeSession(session, kind, "slave connection lost")
		}
	}
}

// gcSweep runs the periodic housekeeping pass (spec §4.6 gc timer):
// expire stale handshake-table entries, move idle slaves into
// draining, and kill slaves silent past heartbeat_timeout while they
// still hold sessions.
func (e *Engine) gcSweep(now time.Time) {
	for _, expired := range e.handshakes.sweep(now, e.profile.StartupTimeout, e.profile.HeartbeatTimeout) {
		if slave, ok := e.pool.ByUUID(expired.uuid); ok {
			e.failSlave(slave, expired.reason, 0)
		}
	}

	for _, slave := range e.pool.All() {
		switch slave.State {
		case model.SlaveActive:
			if len(slave.InFlight) == 0 && now.Sub(slave.LastActive) >= e.profile.IdleTimeout {
				// draining with zero in-flight sessions satisfies
				// "all in-flight sessions complete" immediately.
				e.pool.MarkDraining(slave.UUID)
				e.pool.Reap(slave.UUID, model.DeadNormal)
				e.publish(pubsub.SlaveDied(e.manifest.Name, slave.UUID.String(), model.DeadNormal, now))
			} else if len(slave.InFlight) > 0 && now.Sub(slave.LastActive) >= e.profile.HeartbeatTimeout {
				e.failSlave(slave, model.DeadCrashed, model.ErrWorkerUnresponsive)
			}
		}
	}
}

