package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/histdb/histdb/internal/errors"
	"github.com/histdb/histdb/internal/logging"
	"github.com/histdb/histdb/internal/metrics"
	"github.com/histdb/histdb/internal/store"
	"github.com/histdb/histdb/pkg/types"
)

// State is the pipeline lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds the pipeline's static configuration.
type Config struct {
	// QueueCapacity bounds the number of unacknowledged events (default 1000).
	QueueCapacity int

	// Workers is the number of consumer goroutines (default 1).
	Workers int

	// DrainTimeout bounds the shutdown drain (default 5s).
	DrainTimeout time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		QueueCapacity: DefaultQueueCapacity,
		Workers:       1,
		DrainTimeout:  5 * time.Second,
	}
}

// Pipeline owns the queue and worker pool and drives them through the
// stopped → starting → running → draining → stopped lifecycle. Handlers
// receive the pipeline explicitly; there is no ambient global queue.
type Pipeline struct {
	cfg     Config
	store   *store.Store
	metrics *metrics.Metrics

	mu       sync.Mutex
	state    State
	queue    *Queue
	pool     *Pool
	sessions []*store.Session
	cancel   context.CancelFunc
}

// NewPipeline creates a pipeline over the given store.
func NewPipeline(st *store.Store, m *metrics.Metrics, cfg Config) *Pipeline {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		metrics: m,
		state:   StateStopped,
	}
}

// Start allocates the queue, opens one store session per worker, and
// launches the pool. After Start returns the pipeline accepts TryEnqueue.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateStopped {
		return fmt.Errorf("pipeline already %s", p.state)
	}
	p.state = StateStarting

	p.queue = NewQueue(p.cfg.QueueCapacity)

	writers := make([]EventWriter, 0, p.cfg.Workers)
	sessions := make([]*store.Session, 0, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		sess, err := p.store.NewSession(ctx)
		if err != nil {
			for _, s := range sessions {
				s.Close()
			}
			p.state = StateStopped
			return fmt.Errorf("failed to open worker session %d: %w", i, err)
		}
		sessions = append(sessions, sess)
		writers = append(writers, sess)
	}
	p.sessions = sessions

	// Workers run on their own context so cancelling the Start caller
	// does not tear down the pipeline.
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.pool = NewPool(p.queue, writers, p.metrics)
	p.pool.Start(runCtx)
	p.state = StateRunning

	logging.Info().
		Int("workers", p.cfg.Workers).
		Int("queue_capacity", p.cfg.QueueCapacity).
		Dur("drain_timeout", p.cfg.DrainTimeout).
		Msg("ingestion pipeline running")
	return nil
}

// TryEnqueue offers an event to the queue without blocking. It returns the
// backpressure signal when the queue is full, and a queue-closed error once
// draining has begun; both map to an overload response at the HTTP boundary.
func (p *Pipeline) TryEnqueue(ev types.Event) error {
	p.mu.Lock()
	state, q := p.state, p.queue
	p.mu.Unlock()

	if state != StateRunning {
		return errors.New(errors.ErrCategoryQueue, errors.CodeQueueClosed,
			fmt.Sprintf("pipeline is %s", state))
	}

	if !q.TryEnqueue(ev) {
		p.metrics.EventsRejected.Inc()
		return errors.NewQueueFullError(q.Capacity())
	}

	p.metrics.EventsEnqueued.WithLabelValues(kindLabel(ev)).Inc()
	p.metrics.QueueDepth.Set(float64(q.Len()))
	return nil
}

// Shutdown drains accepted events within the configured timeout, then
// cancels the workers and waits for them to unwind. A drain timeout is
// reported as a warning; Shutdown itself never fails because of one.
// Events still queued after cancellation are abandoned.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return nil
	}
	p.state = StateDraining
	queue, pool, cancel, sessions := p.queue, p.pool, p.cancel, p.sessions
	p.mu.Unlock()

	logging.Info().Int("pending", queue.Len()).Msg("draining ingestion queue")

	drainCtx, cancelDrain := context.WithTimeout(ctx, p.cfg.DrainTimeout)
	defer cancelDrain()

	if err := queue.Join(drainCtx); err != nil {
		logging.Warn().
			Int("abandoned", queue.Len()).
			Dur("timeout", p.cfg.DrainTimeout).
			Msg("drain timed out; abandoning queued events")
	}

	cancel()
	pool.Wait()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			logging.Warn().Err(err).Msg("failed to close worker session")
		}
	}

	p.mu.Lock()
	p.state = StateStopped
	p.sessions = nil
	p.mu.Unlock()

	logging.Info().Msg("ingestion pipeline stopped")
	return nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// QueueLen returns the number of unacknowledged events, for introspection.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	q := p.queue
	p.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.Len()
}
