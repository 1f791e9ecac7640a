// Package queue implements the session queue (spec.md §4.1, component
// C2): a thread-safe FIFO with an urgent-front insertion and deadline
// pruning, grounded on the teacher's connect.go backpressure idiom for
// the locking discipline and on the cocaine session_queue_t (a deque
// guarded by a single mutex) for the shape of the data structure.
package queue

import (
	"container/list"
	"sync"
	"time"

	"github.com/outpostrun/enginehost/internal/domain/model"
)

// Queue is a thread-safe FIFO with a strict urgent prefix (spec §3
// "Queue invariants" (i)) and deadline pruning on pop (invariant (ii)).
// Every exported method takes the internal mutex for the duration of
// its own critical section and never holds it across session I/O — the
// balancer's batch pop is just a tight loop of individual Pop calls, so
// the lock is never held across a slave write.
type Queue struct {
	mu         sync.Mutex
	items      *list.List
	lastUrgent *list.Element
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{items: list.New()}
}

// Push inserts a session. Urgent sessions are inserted immediately
// after the last urgent session (maintaining the urgent prefix);
// non-urgent sessions are appended. O(1) amortised, infallible.
func (q *Queue) Push(s *model.Session) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if s.Event.Policy.Urgent {
		if q.lastUrgent == nil {
			q.lastUrgent = q.items.PushFront(s)
		} else {
			q.lastUrgent = q.items.InsertAfter(s, q.lastUrgent)
		}
		return
	}
	q.items.PushBack(s)
}

// PopReady removes and returns the front session whose deadline has not
// expired. Sessions at the front whose deadline has passed are popped
// and errored with deadline_exceeded as it goes; it returns (nil, false)
// once the queue drains without finding a ready session.
func (q *Queue) PopReady(now time.Time) (*model.Session, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		front := q.items.Front()
		if front == nil {
			return nil, false
		}
		sess := front.Value.(*model.Session)
		q.remove(front)

		if sess.Expired(now) {
			sess.Sink.Error(model.ErrDeadlineExceeded, "session deadline exceeded before dispatch")
			continue
		}
		return sess, true
	}
}

// remove detaches the front element from the list. Since removal always
// happens at the front and urgent sessions form a strict prefix,
// removing the last urgent session always clears lastUrgent (the
// element being removed has no predecessor).
func (q *Queue) remove(e *list.Element) {
	if e == q.lastUrgent {
		q.lastUrgent = nil
	}
	q.items.Remove(e)
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Drain removes and returns every queued session, for use during
// shutdown (spec §4.1). The queue is empty after this call.
func (q *Queue) Drain() []*model.Session {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*model.Session, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*model.Session))
	}
	q.items.Init()
	q.lastUrgent = nil
	return out
}
