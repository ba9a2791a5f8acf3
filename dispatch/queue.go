// Package dispatch hands forwarded invocation arguments to a single worker
// that runs the trigger action for each, strictly in arrival order.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/zhubert/eagleray-sideband/metrics"
)

var (
	// ErrQueueClosed is returned by Send once the consumer has closed the queue.
	ErrQueueClosed = errors.New("command queue closed")

	// ErrNoSenders is returned by Receive once every Sender has been closed
	// and the queue is drained. Nothing can ever arrive again.
	ErrNoSenders = errors.New("command queue has no senders")
)

// Queue is an unbounded, ordered, multi-producer single-consumer queue of
// arguments. Send never blocks.
type Queue struct {
	mu      sync.Mutex
	items   []string
	senders int
	opened  bool // at least one Sender was handed out
	closed  bool
	ready   chan struct{}
	metrics *metrics.Metrics
}

// NewQueue creates an empty queue. m may be nil.
func NewQueue(m *metrics.Metrics) *Queue {
	return &Queue{
		ready:   make(chan struct{}, 1),
		metrics: m,
	}
}

// Sender is one producer end of a Queue. Safe for concurrent use.
type Sender struct {
	q    *Queue
	once sync.Once
}

// Sender returns a new producer end. The queue reports ErrNoSenders to the
// consumer only after every Sender handed out has been closed.
func (q *Queue) Sender() *Sender {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.senders++
	q.opened = true
	return &Sender{q: q}
}

// Send appends arg to the queue.
func (s *Sender) Send(arg string) error {
	return s.q.push(arg)
}

// Close releases this producer end. Further Sends still succeed while the
// queue is open; Close only affects the consumer's view of live senders.
func (s *Sender) Close() {
	s.once.Do(func() {
		s.q.mu.Lock()
		s.q.senders--
		s.q.mu.Unlock()
		s.q.wake()
	})
}

func (q *Queue) push(arg string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, arg)
	n := len(q.items)
	q.mu.Unlock()

	q.metrics.QueueDepth(n)
	q.wake()
	return nil
}

func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Receive blocks until an argument is available and returns it. Queued items
// are always returned before ErrQueueClosed or ErrNoSenders.
func (q *Queue) Receive(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			arg := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			n := len(q.items)
			q.mu.Unlock()
			q.metrics.QueueDepth(n)
			return arg, nil
		}
		closed := q.closed
		gone := q.opened && q.senders == 0
		q.mu.Unlock()

		switch {
		case closed:
			return "", ErrQueueClosed
		case gone:
			return "", ErrNoSenders
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close stops accepting new arguments. Items already queued can still be
// received.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of queued arguments.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
