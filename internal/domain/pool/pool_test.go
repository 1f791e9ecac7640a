package pool

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/isolate"
)

type fakeChannel struct{ closed bool }

func (f *fakeChannel) Send(frameType int, sessionID uint64, payload []byte) error { return nil }
func (f *fakeChannel) Close() error                                              { f.closed = true; return nil }

type fakeGateway struct {
	spawnCalls int
	failAfter  int
}

func (g *fakeGateway) Spawn(ctx context.Context, id uuid.UUID, manifest *isolate.Manifest, profile *isolate.Profile) (model.Channel, error) {
	g.spawnCalls++
	if g.failAfter > 0 && g.spawnCalls > g.failAfter {
		return nil, context.DeadlineExceeded
	}
	return &fakeChannel{}, nil
}

func (g *fakeGateway) Signal(ch model.Channel, sig isolate.Signal) error { return nil }
func (g *fakeGateway) Reap(ch model.Channel) error                      { return ch.Close() }

func testProfile() *isolate.Profile {
	return &isolate.Profile{Concurrency: 2, IOBulkSize: 16}
}

func TestSpawnIfUnderCapacityRespectsLimit(t *testing.T) {
	gw := &fakeGateway{}
	p := New(3, gw)

	spawned, err := p.SpawnIfUnderCapacity(context.Background(), &isolate.Manifest{}, testProfile(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spawned) != 3 {
		t.Fatalf("expected 3 spawned (capped by pool limit), got %d", len(spawned))
	}
	if p.Len() != 3 {
		t.Fatalf("expected pool len 3, got %d", p.Len())
	}
}

func TestSpawnIfUnderCapacityIsIdempotentWhenFull(t *testing.T) {
	gw := &fakeGateway{}
	p := New(2, gw)

	if _, err := p.SpawnIfUnderCapacity(context.Background(), &isolate.Manifest{}, testProfile(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spawned, err := p.SpawnIfUnderCapacity(context.Background(), &isolate.Manifest{}, testProfile(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spawned) != 0 {
		t.Fatalf("expected no additional spawns once at capacity, got %d", len(spawned))
	}
}

func TestReapRemovesFromLiveSetAndRecordsDiagnostic(t *testing.T) {
	gw := &fakeGateway{}
	p := New(2, gw)
	spawned, _ := p.SpawnIfUnderCapacity(context.Background(), &isolate.Manifest{}, testProfile(), 1)
	id := spawned[0].UUID
	channel := spawned[0].Channel.(*fakeChannel)
	p.MarkHandshaking(id)
	p.MarkActive(id, spawned[0].SpawnedAt)
	spawned[0].Assign(42)

	inFlight, ok := p.Reap(id, model.DeadCrashed)
	if !ok {
		t.Fatal("expected reap to find the slave")
	}
	if !channel.closed {
		t.Fatal("expected reap to close the slave's channel via gateway.Reap")
	}
	if len(inFlight) != 1 || inFlight[0] != 42 {
		t.Fatalf("expected in-flight session 42 returned, got %v", inFlight)
	}
	if _, ok := p.ByUUID(id); ok {
		t.Fatal("expected slave removed from live set after reap")
	}
	diag, ok := p.RecentDeath(id)
	if !ok {
		t.Fatal("expected a recorded diagnostic for the dead slave")
	}
	if diag.Reason != model.DeadCrashed || diag.HadInFlight != 1 {
		t.Fatalf("unexpected diagnostic: %+v", diag)
	}
}

func TestIdleOnlyReturnsActiveSlavesWithSpareConcurrency(t *testing.T) {
	gw := &fakeGateway{}
	p := New(2, gw)
	spawned, _ := p.SpawnIfUnderCapacity(context.Background(), &isolate.Manifest{}, testProfile(), 2)

	if len(p.Idle()) != 0 {
		t.Fatal("expected no idle slaves before any reach active state")
	}

	for _, s := range spawned {
		p.MarkHandshaking(s.UUID)
		p.MarkActive(s.UUID, s.SpawnedAt)
	}
	if len(p.Idle()) != 2 {
		t.Fatalf("expected 2 idle slaves, got %d", len(p.Idle()))
	}

	spawned[0].Assign(1)
	spawned[0].Assign(2)
	idle := p.Idle()
	if len(idle) != 1 || idle[0].UUID != spawned[1].UUID {
		t.Fatalf("expected only the slave with spare concurrency to be idle, got %+v", idle)
	}
}

func TestSnapshotCountsByState(t *testing.T) {
	gw := &fakeGateway{}
	p := New(3, gw)
	spawned, _ := p.SpawnIfUnderCapacity(context.Background(), &isolate.Manifest{}, testProfile(), 3)

	p.MarkHandshaking(spawned[0].UUID)
	p.MarkActive(spawned[0].UUID, spawned[0].SpawnedAt)
	p.MarkDraining(spawned[0].UUID)

	p.MarkHandshaking(spawned[1].UUID)
	p.MarkActive(spawned[1].UUID, spawned[1].SpawnedAt)

	p.Reap(spawned[2].UUID, model.DeadLaunchFailed)

	snap := p.Snapshot()
	if snap.Draining != 1 || snap.Active != 1 || snap.DeadSinceStart != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
