package worker

import (
	"sync"

	"github.com/eapache/queue"
)

// boundedQueue is the bounded MPSC channel the concurrency model calls for:
// many caller goroutines push queued operations, the worker's single
// drain-loop goroutine pops them. It backs onto github.com/eapache/queue,
// the ring-buffer-backed queue the rest of the pack uses for its own
// worker-pool dispatch, wrapped with a mutex/condvar to make it bounded and
// safe for concurrent producers.
type boundedQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	q        *queue.Queue
	capacity int
	closed   bool
}

func newBoundedQueue(capacity int) *boundedQueue {
	b := &boundedQueue{q: queue.New(), capacity: capacity}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// push blocks until there is room, providing the backpressure the
// concurrency model relies on instead of an unbounded lock-protected queue.
func (b *boundedQueue) push(op *operation) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.q.Length() >= b.capacity && !b.closed {
		b.notFull.Wait()
	}
	if b.closed {
		return false
	}
	b.q.Add(op)
	b.notEmpty.Signal()
	return true
}

// tryPop is the producer fiber's non-blocking poll: an empty queue is one
// of the three legal suspension points, so the caller falls through to
// waiting on CQE readiness instead of blocking here.
func (b *boundedQueue) tryPop() (*operation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.q.Length() == 0 {
		return nil, false
	}
	op := b.q.Remove().(*operation)
	b.notFull.Signal()
	return op, true
}

func (b *boundedQueue) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}
