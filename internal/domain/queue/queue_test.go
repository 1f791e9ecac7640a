package queue

import (
	"testing"
	"time"

	"github.com/outpostrun/enginehost/internal/domain/model"
)

type recordingUpstream struct {
	chunks [][]byte
	kind   model.ErrorKind
	errMsg string
	closed bool
}

func (r *recordingUpstream) Write(chunk []byte) error {
	r.chunks = append(r.chunks, chunk)
	return nil
}

func (r *recordingUpstream) Error(kind model.ErrorKind, message string) error {
	r.kind = kind
	r.errMsg = message
	return nil
}

func (r *recordingUpstream) Close() error {
	r.closed = true
	return nil
}

func session(id uint64, urgent bool, deadline time.Time) (*model.Session, *recordingUpstream) {
	up := &recordingUpstream{}
	ev := model.NewEvent("handler", model.Policy{Urgent: urgent, Deadline: deadline})
	return model.NewSession(id, ev, up, "", time.Now()), up
}

func TestPushPreservesFIFOAmongNonUrgent(t *testing.T) {
	q := New()
	s1, _ := session(1, false, time.Time{})
	s2, _ := session(2, false, time.Time{})
	s3, _ := session(3, false, time.Time{})
	q.Push(s1)
	q.Push(s2)
	q.Push(s3)

	for _, want := range []uint64{1, 2, 3} {
		got, ok := q.PopReady(time.Now())
		if !ok || got.ID != want {
			t.Fatalf("want session %d, got %+v (ok=%v)", want, got, ok)
		}
	}
	if _, ok := q.PopReady(time.Now()); ok {
		t.Fatal("expected empty queue")
	}
}

func TestUrgentSessionsFormStrictPrefix(t *testing.T) {
	q := New()
	e1, _ := session(1, false, time.Time{})
	e2, _ := session(2, true, time.Time{})
	e3, _ := session(3, true, time.Time{})
	q.Push(e1)
	q.Push(e2)
	q.Push(e3)

	order := []uint64{2, 3, 1}
	for _, want := range order {
		got, ok := q.PopReady(time.Now())
		if !ok || got.ID != want {
			t.Fatalf("want session %d, got %+v (ok=%v)", want, got, ok)
		}
	}
}

func TestPopReadyPrunesExpiredFront(t *testing.T) {
	q := New()
	now := time.Now()
	expired, up := session(1, false, now.Add(-time.Millisecond))
	fresh, _ := session(2, false, time.Time{})
	q.Push(expired)
	q.Push(fresh)

	got, ok := q.PopReady(now)
	if !ok || got.ID != 2 {
		t.Fatalf("expected session 2 after pruning expired front, got %+v (ok=%v)", got, ok)
	}
	if up.kind != model.ErrDeadlineExceeded {
		t.Fatalf("expected deadline_exceeded on expired session, got %v", up.kind)
	}
}

func TestDrainReturnsAllAndEmpties(t *testing.T) {
	q := New()
	s1, _ := session(1, false, time.Time{})
	s2, _ := session(2, true, time.Time{})
	q.Push(s1)
	q.Push(s2)

	drained := q.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained sessions, got %d", len(drained))
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after drain, got len=%d", q.Len())
	}
}

func TestLenTracksPushAndPop(t *testing.T) {
	q := New()
	if q.Len() != 0 {
		t.Fatal("expected zero length queue")
	}
	s, _ := session(1, false, time.Time{})
	q.Push(s)
	if q.Len() != 1 {
		t.Fatalf("expected length 1, got %d", q.Len())
	}
	if _, ok := q.PopReady(time.Now()); !ok {
		t.Fatal("expected a ready session")
	}
	if q.Len() != 0 {
		t.Fatalf("expected length 0 after pop, got %d", q.Len())
	}
}
