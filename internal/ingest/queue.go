// Package ingest implements the asynchronous ingestion pipeline: a bounded
// FIFO queue decoupling request handlers from storage, the worker pool that
// drains it, and the lifecycle controller tying both to process shutdown.
package ingest

import (
	"context"
	"sync"

	"github.com/histdb/histdb/pkg/types"
)

// DefaultQueueCapacity bounds the queue when no capacity is configured.
const DefaultQueueCapacity = 1000

// Queue is a bounded in-memory FIFO of pending events shared between
// producers (request handlers) and consumers (workers). It is not a
// durability layer: events still queued when the process exits are lost.
//
// Accounting follows the enqueue/acknowledge protocol: TryEnqueue adds one
// unfinished item, Done acknowledges one, and Join blocks until the
// unfinished count reaches zero.
type Queue struct {
	capacity int
	items    chan types.Event

	mu         sync.Mutex
	unfinished int
	waiters    []chan struct{}
}

// NewQueue creates a queue holding at most capacity unacknowledged events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		capacity: capacity,
		items:    make(chan types.Event, capacity),
	}
}

// TryEnqueue offers an event without blocking. It returns false when the
// queue already holds capacity unacknowledged events; the caller must treat
// that as a rejection, not retry internally.
func (q *Queue) TryEnqueue(ev types.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished >= q.capacity {
		return false
	}

	// The buffer never holds more than unfinished items, so this send
	// cannot block while unfinished < capacity.
	q.items <- ev
	q.unfinished++
	return true
}

// Dequeue blocks until an event is available or ctx is cancelled. The second
// return value is false only on cancellation.
func (q *Queue) Dequeue(ctx context.Context) (types.Event, bool) {
	select {
	case ev := <-q.items:
		return ev, true
	case <-ctx.Done():
		return nil, false
	}
}

// Done acknowledges one previously dequeued event, successful or not. Every
// dequeued event must be acknowledged exactly once for Join to terminate.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		return
	}
	q.unfinished--
	if q.unfinished == 0 {
		for _, w := range q.waiters {
			close(w)
		}
		q.waiters = nil
	}
}

// Join blocks until every enqueued event has been acknowledged, or until
// ctx expires, whichever comes first.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of unacknowledged events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Capacity returns the configured bound.
func (q *Queue) Capacity() int {
	return q.capacity
}
