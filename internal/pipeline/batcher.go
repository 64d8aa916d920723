package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/retailpulse/eventpipeline/internal/metrics"
)

// Pipeline owns the bounded producer channel and the single dispatcher
// goroutine that batches, sends, retries, and spools. One Pipeline serves
// an entire edge process; every camera worker publishes onto the same
// channel.
type Pipeline struct {
	queue      chan WirePayload
	dispatcher *Dispatcher
	maxBatch   int
	batchEvery time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics

	done chan struct{}
}

// Config configures batch sizing. New does not read Retry; the Dispatcher
// carries its own RetryPolicy.
type Config struct {
	MaxBatch     int
	BatchSeconds float64
	Retry        RetryPolicy
}

// New constructs a Pipeline. Call Run in its own goroutine to start the
// dispatcher loop, and Publish from camera workers. m may be nil, in which
// case instrumentation is skipped.
func New(cfg Config, dispatcher *Dispatcher, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	if cfg.BatchSeconds <= 0 {
		cfg.BatchSeconds = 2.0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		queue:      make(chan WirePayload, QueueCapacity),
		dispatcher: dispatcher,
		maxBatch:   cfg.MaxBatch,
		batchEvery: time.Duration(cfg.BatchSeconds * float64(time.Second)),
		logger:     logger,
		metrics:    m,
		done:       make(chan struct{}),
	}
}

// Publish enqueues one event, blocking when the channel is full. This is
// the cooperative backpressure point: a full queue throttles frame
// processing rather than dropping events.
func (p *Pipeline) Publish(ctx context.Context, w WirePayload) error {
	select {
	case p.queue <- w:
		if p.metrics != nil {
			p.metrics.QueueDepth.Set(float64(len(p.queue)))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the batch/flush loop until ctx is cancelled. On cancellation
// it drains whatever remains in the channel for a bounded grace period,
// flushes one final batch, and returns.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)

	batch := make([]WirePayload, 0, p.maxBatch)
	ticker := time.NewTicker(p.batchEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.dispatcher.Send(ctx, batch)
		batch = make([]WirePayload, 0, p.maxBatch)
	}

	for {
		select {
		case w := <-p.queue:
			batch = append(batch, w)
			if p.metrics != nil {
				p.metrics.QueueDepth.Set(float64(len(p.queue)))
			}
			if len(batch) >= p.maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			p.drainForShutdown(batch)
			return
		}
	}
}

// drainForShutdown drains any events still sitting in the channel (bounded
// by a short grace window), appends them to the final batch, flushes once
// more, and syncs the spool.
func (p *Pipeline) drainForShutdown(batch []WirePayload) {
	grace := time.NewTimer(2 * time.Second)
	defer grace.Stop()

drainLoop:
	for {
		select {
		case w := <-p.queue:
			batch = append(batch, w)
		case <-grace.C:
			break drainLoop
		default:
			break drainLoop
		}
	}

	if len(batch) > 0 {
		// Best-effort final send with a short-lived context; on failure this
		// spills to the spool exactly like an in-flight failure would.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p.dispatcher.Send(ctx, batch)
	}
	if err := p.dispatcher.spool.Sync(); err != nil {
		p.logger.Error("spool sync on shutdown failed", "error", err)
	}
}

// Wait blocks until Run has returned.
func (p *Pipeline) Wait() {
	<-p.done
}
