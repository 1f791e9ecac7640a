package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/pubsub"
	"github.com/outpostrun/enginehost/internal/transport"
)

// onSpawn registers newly spawned slaves in the handshake table and
// starts a read pump per connection. Runs on the reactor goroutine,
// called from balancer.tick.
func (e *Engine) onSpawn(slaves []*model.Slave) {
	now := time.Now()
	for _, s := range slaves {
		e.handshakes.add(s.UUID, now)
		e.publish(pubsub.SlaveSpawned(e.manifest.Name, s.UUID.String(), now))
		conn, ok := s.Channel.(*transport.Conn)
		if !ok {
			continue
		}
		go e.pumpFrames(s.UUID, conn)
	}
}

// pumpFrames blocks reading frames off one slave's connection and
// forwards them to the reactor's fan-in channel. This is the one
// unavoidable extra goroutine in the translation from the C++
// original's single-threaded epoll reactor: transport.Conn.ReadFrame
// is a blocking syscall-backed read, and Go has no portable
// non-blocking multiplexed read analogous to a libev io watcher. All
// state mutation driven by what it reads still happens exclusively on
// the goroutine that consumes framesCh.
func (e *Engine) pumpFrames(id uuid.UUID, conn *transport.Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			e.framesCh <- inboundFrame{slave: id, frame: transport.Frame{Type: transport.FrameTerminate}}
			return
		}
		e.framesCh <- inboundFrame{slave: id, frame: frame}
	}
}

// dispatch writes the Invoke/Chunk/Choke sequence to an assigned slave
// (spec §4.5 step 2) and registers the session as in flight for
// correlation with inbound frames.
func (e *Engine) dispatch(slave *model.Slave, session *model.Session) {
	e.sessions[session.ID] = session

	if err := slave.Channel.Send(int(transport.FrameInvoke), session.ID, []byte(session.Event.Type)); err != nil {
		e.failSlave(slave, model.DeadCrashed, model.ErrWorkerCrashed)
		return
	}
	if len(session.Event.Payload) > 0 {
		if err := slave.Channel.Send(int(transport.FrameChunk), session.ID, session.Event.Payload); err != nil {
			e.failSlave(slave, model.DeadCrashed, model.ErrWorkerCrashed)
			return
		}
	}
	if err := slave.Channel.Send(int(transport.FrameChoke), session.ID, nil); err != nil {
		e.failSlave(slave, model.DeadCrashed, model.ErrWorkerCrashed)
	}
}
