package channel

import (
	"sync"

	"github.com/GriffinCanCode/webbridge/internal/protocol"
)

// Queue is an unbounded FIFO of envelopes. Producers Push from any goroutine;
// a consumer takes everything at once with Drain, typically once per tick.
// The lock is held only to append or to swap the backing slice.
type Queue struct {
	mu    sync.Mutex
	items []protocol.Envelope
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends an envelope and signals Ready.
func (q *Queue) Push(env protocol.Envelope) {
	q.mu.Lock()
	q.items = append(q.items, env)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain swaps out and returns everything queued so far, in push order.
func (q *Queue) Drain() []protocol.Envelope {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len returns the number of queued envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready receives a value after a Push. Several pushes may collapse into one signal.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
