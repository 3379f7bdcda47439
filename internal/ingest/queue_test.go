package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/histdb/histdb/pkg/types"
)

func testEvent(url string) types.Event {
	return types.BrowsingEvent{Type: "navigate", URL: url}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(10)
	ctx := context.Background()

	urls := []string{"a", "b", "c", "d"}
	for _, u := range urls {
		if !q.TryEnqueue(testEvent(u)) {
			t.Fatalf("TryEnqueue(%s) rejected below capacity", u)
		}
	}

	for _, want := range urls {
		ev, ok := q.Dequeue(ctx)
		if !ok {
			t.Fatal("Dequeue returned false with items queued")
		}
		got := ev.(types.BrowsingEvent).URL
		if got != want {
			t.Errorf("Dequeue order: got %s, want %s", got, want)
		}
		q.Done()
	}
}

func TestQueue_RejectsAtCapacity(t *testing.T) {
	q := NewQueue(2)

	if !q.TryEnqueue(testEvent("a")) || !q.TryEnqueue(testEvent("b")) {
		t.Fatal("enqueues below capacity rejected")
	}
	if q.TryEnqueue(testEvent("c")) {
		t.Error("TryEnqueue should reject at capacity")
	}

	// Dequeue alone does not free capacity; acknowledgement does.
	if _, ok := q.Dequeue(context.Background()); !ok {
		t.Fatal("Dequeue failed")
	}
	if q.TryEnqueue(testEvent("c")) {
		t.Error("capacity freed before Done")
	}
	q.Done()
	if !q.TryEnqueue(testEvent("c")) {
		t.Error("TryEnqueue rejected after Done freed capacity")
	}
}

func TestQueue_DequeueBlocksUntilCancel(t *testing.T) {
	q := NewQueue(2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("Dequeue returned on empty queue without cancellation")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Error("Dequeue should report false on cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after cancellation")
	}
}

func TestQueue_JoinWaitsForAcks(t *testing.T) {
	q := NewQueue(10)
	ctx := context.Background()

	q.TryEnqueue(testEvent("a"))
	q.TryEnqueue(testEvent("b"))

	joined := make(chan error, 1)
	go func() { joined <- q.Join(ctx) }()

	q.Dequeue(ctx)
	q.Done()
	select {
	case <-joined:
		t.Fatal("Join returned with one event unacknowledged")
	case <-time.After(20 * time.Millisecond):
	}

	q.Dequeue(ctx)
	q.Done()
	select {
	case err := <-joined:
		if err != nil {
			t.Errorf("Join returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Join did not return after all acks")
	}
}

func TestQueue_JoinTimesOut(t *testing.T) {
	q := NewQueue(10)
	q.TryEnqueue(testEvent("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := q.Join(ctx); err == nil {
		t.Error("Join should fail when events stay unacknowledged")
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
}

func TestQueue_JoinEmptyReturnsImmediately(t *testing.T) {
	q := NewQueue(10)
	if err := q.Join(context.Background()); err != nil {
		t.Errorf("Join on empty queue: %v", err)
	}
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := NewQueue(0)
	if q.Capacity() != DefaultQueueCapacity {
		t.Errorf("Capacity = %d, want %d", q.Capacity(), DefaultQueueCapacity)
	}
}
