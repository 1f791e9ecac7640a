package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/domain/pool"
	"github.com/outpostrun/enginehost/internal/domain/queue"
	"github.com/outpostrun/enginehost/internal/isolate"
)

type noopChannel struct{ sent []int }

func (c *noopChannel) Send(frameType int, sessionID uint64, payload []byte) error {
	c.sent = append(c.sent, frameType)
	return nil
}
func (c *noopChannel) Close() error { return nil }

type noopGateway struct{}

func (noopGateway) Spawn(ctx context.Context, id uuid.UUID, manifest *isolate.Manifest, profile *isolate.Profile) (model.Channel, error) {
	return &noopChannel{}, nil
}
func (noopGateway) Signal(ch model.Channel, sig isolate.Signal) error { return nil }
func (noopGateway) Reap(ch model.Channel) error                      { return nil }

type recordingUpstream struct {
	chunks [][]byte
	kind   model.ErrorKind
	closed bool
}

func (r *recordingUpstream) Write(chunk []byte) error {
	r.chunks = append(r.chunks, chunk)
	return nil
}
func (r *recordingUpstream) Error(kind model.ErrorKind, message string) error {
	r.kind = kind
	return nil
}
func (r *recordingUpstream) Close() error { r.closed = true; return nil }

func TestBalancerDispatchesOneIdleSlaveBeforeSpawning(t *testing.T) {
	q := queue.New()
	p := pool.New(2, noopGateway{})
	profile := &isolate.Profile{PoolLimit: 2, Concurrency: 1, IOBulkSize: 8}

	spawned, err := p.SpawnIfUnderCapacity(context.Background(), &isolate.Manifest{}, profile, 1)
	if err != nil || len(spawned) != 1 {
		t.Fatalf("setup: expected 1 slave spawned, got %d err=%v", len(spawned), err)
	}
	p.MarkHandshaking(spawned[0].UUID)
	p.MarkActive(spawned[0].UUID, time.Now())

	var dispatched []*model.Session
	b := newBalancer(q, p, &isolate.Manifest{}, profile, func(slave *model.Slave, session *model.Session) {
		dispatched = append(dispatched, session)
	}, func([]*model.Slave) {}, slog.Default())

	up := &recordingUpstream{}
	session := model.NewSession(1, model.NewEvent("handler", model.Policy{}), up, "", time.Now())
	q.Push(session)

	b.tick(context.Background(), time.Now())

	if len(dispatched) != 1 || dispatched[0].ID != 1 {
		t.Fatalf("expected session 1 dispatched to the idle slave, got %+v", dispatched)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue drained, got len=%d", q.Len())
	}
}

func TestBalancerGrowsPoolWhenNoIdleSlaves(t *testing.T) {
	q := queue.New()
	p := pool.New(2, noopGateway{})
	profile := &isolate.Profile{PoolLimit: 2, Concurrency: 1, IOBulkSize: 8}

	b := newBalancer(q, p, &isolate.Manifest{}, profile, func(*model.Slave, *model.Session) {}, func([]*model.Slave) {}, slog.Default())

	up := &recordingUpstream{}
	q.Push(model.NewSession(1, model.NewEvent("handler", model.Policy{}), up, "", time.Now()))

	b.tick(context.Background(), time.Now())

	if p.Len() != 1 {
		t.Fatalf("expected balancer to spawn a slave for the queued session, got pool len %d", p.Len())
	}
}

func TestBalancerDoesNothingOnEmptyQueue(t *testing.T) {
	q := queue.New()
	p := pool.New(2, noopGateway{})
	profile := &isolate.Profile{PoolLimit: 2, Concurrency: 1, IOBulkSize: 8}
	b := newBalancer(q, p, &isolate.Manifest{}, profile, func(*model.Slave, *model.Session) {
		t.Fatal("dispatch should not be called on an empty queue")
	}, func([]*model.Slave) {
		t.Fatal("spawn should not be requested on an empty queue")
	}, slog.Default())

	b.tick(context.Background(), time.Now())
}
