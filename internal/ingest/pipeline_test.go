package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/histdb/histdb/internal/errors"
	"github.com/histdb/histdb/internal/metrics"
	"github.com/histdb/histdb/internal/store"
	"github.com/histdb/histdb/pkg/types"
)

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "histdb.db"), store.Options{
		MaxSessions: cfg.Workers + 1,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewPipeline(st, metrics.New(), cfg), st
}

func countFacts(t *testing.T, st *store.Store) int {
	t.Helper()
	var n int
	if err := st.DB().QueryRow("SELECT COUNT(*) FROM browsing_events").Scan(&n); err != nil {
		t.Fatalf("failed to count facts: %v", err)
	}
	return n
}

func browsing(url string) types.BrowsingEvent {
	ts, _ := types.ParseTimestamp("2024-01-01T00:00:00Z")
	return types.BrowsingEvent{Type: "navigate", URL: url, Timestamp: ts}
}

func TestPipeline_Lifecycle(t *testing.T) {
	p, _ := newTestPipeline(t, Config{QueueCapacity: 10, Workers: 1, DrainTimeout: time.Second})

	if p.State() != StateStopped {
		t.Fatalf("initial state = %s, want stopped", p.State())
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if p.State() != StateRunning {
		t.Fatalf("state after Start = %s, want running", p.State())
	}

	// A second Start must be rejected while running.
	if err := p.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if p.State() != StateStopped {
		t.Fatalf("state after Shutdown = %s, want stopped", p.State())
	}

	// Shutdown when already stopped is a no-op.
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("repeated Shutdown: %v", err)
	}
}

func TestPipeline_EnqueueBeforeStart(t *testing.T) {
	p, _ := newTestPipeline(t, Config{QueueCapacity: 10, Workers: 1, DrainTimeout: time.Second})

	err := p.TryEnqueue(browsing("https://example.com"))
	if err == nil {
		t.Fatal("TryEnqueue should fail before Start")
	}
	if errors.GetCode(err) != errors.CodeQueueClosed {
		t.Errorf("code = %q, want %q", errors.GetCode(err), errors.CodeQueueClosed)
	}
}

func TestPipeline_DrainsOnShutdown(t *testing.T) {
	p, st := newTestPipeline(t, Config{QueueCapacity: 100, Workers: 1, DrainTimeout: 5 * time.Second})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const total = 20
	for i := 0; i < total; i++ {
		if err := p.TryEnqueue(browsing("https://example.com")); err != nil {
			t.Fatalf("TryEnqueue %d failed: %v", i, err)
		}
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if n := countFacts(t, st); n != total {
		t.Errorf("persisted %d events, want %d", n, total)
	}

	// Intake is closed after shutdown.
	if err := p.TryEnqueue(browsing("https://example.com")); err == nil {
		t.Error("TryEnqueue should fail after Shutdown")
	}
}

func TestPipeline_QueueFull(t *testing.T) {
	// No worker sessions drain instantly enough to matter here: a capacity
	// of 1 with a single slow-to-schedule worker can still race, so pile
	// events in faster than one worker can possibly clear a full queue.
	p, _ := newTestPipeline(t, Config{QueueCapacity: 1, Workers: 1, DrainTimeout: time.Second})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Shutdown(context.Background())

	var sawFull bool
	for i := 0; i < 1000 && !sawFull; i++ {
		if err := p.TryEnqueue(browsing("https://example.com")); err != nil {
			if !errors.IsQueueFull(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			sawFull = true
		}
	}
	if !sawFull {
		t.Error("never observed a queue-full rejection")
	}
}

func TestPipeline_ShutdownWithExpiredContext(t *testing.T) {
	p, _ := newTestPipeline(t, Config{QueueCapacity: 10, Workers: 1, DrainTimeout: time.Second})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A failed drain is a warning, not a shutdown error.
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error on expired context: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("state = %s, want stopped", p.State())
	}
}

func TestState_String(t *testing.T) {
	for state, want := range map[State]string{
		StateStopped:  "stopped",
		StateStarting: "starting",
		StateRunning:  "running",
		StateDraining: "draining",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
