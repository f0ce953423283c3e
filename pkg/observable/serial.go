package observable

import "sync"

// Serial runs queued functions one at a time in the order they were pushed. Drain is re-entrant:
// a Drain called while another drain is in progress (from the same call chain or from another
// goroutine) returns immediately and the running drain picks up the new work.
type Serial struct {
	queue    []func()
	draining bool
	mu       sync.Mutex
}

// Push enqueues a function without running it.
func (q *Serial) Push(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
}

// Drain runs queued functions until the queue is empty.
func (q *Serial) Drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true

	for len(q.queue) > 0 {
		fn := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.mu.Unlock()

		fn()

		q.mu.Lock()
	}

	q.draining = false
	q.mu.Unlock()
}

// Do pushes a function and drains the queue.
func (q *Serial) Do(fn func()) {
	q.Push(fn)
	q.Drain()
}

// Idle returns true if no drain is in progress and the queue is empty.
func (q *Serial) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.draining && len(q.queue) == 0
}
