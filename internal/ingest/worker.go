package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/histdb/histdb/internal/errors"
	"github.com/histdb/histdb/internal/logging"
	"github.com/histdb/histdb/internal/metrics"
	"github.com/histdb/histdb/pkg/types"
)

// EventWriter persists one normalized event and returns its fact row id.
// Implemented by store.Session; each worker owns exactly one writer.
type EventWriter interface {
	Write(ctx context.Context, ev types.Event) (int64, error)
	Close() error
}

// Pool runs N consumer loops over one queue. A failure while processing one
// event is contained to that iteration: it is logged, counted, acknowledged,
// and the loop continues. The pool only stops on context cancellation.
type Pool struct {
	queue   *Queue
	writers []EventWriter
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewPool creates a pool with one worker per writer.
func NewPool(q *Queue, writers []EventWriter, m *metrics.Metrics) *Pool {
	return &Pool{
		queue:   q,
		writers: writers,
		metrics: m,
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i, w := range p.writers {
		p.wg.Add(1)
		go p.run(ctx, i, w)
	}
}

// Wait blocks until every worker loop has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.writers)
}

func (p *Pool) run(ctx context.Context, id int, w EventWriter) {
	defer p.wg.Done()

	log := logging.Logger().With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		ev, ok := p.queue.Dequeue(ctx)
		if !ok {
			log.Debug().Int("abandoned", p.queue.Len()).Msg("worker stopping")
			return
		}
		p.process(ctx, log, w, ev)
	}
}

// process handles one dequeued event. Acknowledgement is unconditional so
// the queue's drain accounting stays correct whatever the outcome.
func (p *Pool) process(ctx context.Context, log zerolog.Logger, w EventWriter, ev types.Event) {
	defer func() {
		p.queue.Done()
		p.metrics.QueueDepth.Set(float64(p.queue.Len()))
	}()

	kind := kindLabel(ev)
	start := time.Now()

	// An event past the dequeue point finishes its write even if shutdown
	// cancels the worker context mid-flight.
	factID, err := w.Write(context.WithoutCancel(ctx), ev)
	if err != nil {
		p.metrics.EventsFailed.WithLabelValues(kind).Inc()
		if errors.IsUnknownKind(err) {
			log.Error().Err(err).Msg("dropping event of unrecognized kind")
		} else {
			log.Error().Err(err).Str("kind", kind).Msg("event write failed")
		}
		return
	}

	p.metrics.EventsWritten.WithLabelValues(kind).Inc()
	p.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	log.Info().Str("kind", kind).Int64("fact_id", factID).Msg("stored event")
}

// kindLabel maps an event to its metric label.
func kindLabel(ev types.Event) string {
	switch ev.(type) {
	case types.BrowsingEvent:
		return string(types.KindBrowsing)
	case types.EditorEvent:
		return string(types.KindEditor)
	default:
		return "unknown"
	}
}
