package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/retailpulse/eventpipeline/internal/metrics"
)

// drainRowsPerAttempt bounds how many spooled rows get opportunistically
// replayed after a successful live send.
const drainRowsPerAttempt = 2000

// Dispatcher sends batches to the cloud bulk-ingest endpoint, retrying
// in-process with exponential backoff before spilling to disk.
type Dispatcher struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
	retry      RetryPolicy
	spool      *Spool
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewDispatcher constructs a Dispatcher posting to apiBase with a 10s HTTP
// timeout, matching the edge/cloud timeout budget. m may be nil, in which
// case instrumentation is skipped.
func NewDispatcher(apiBase, apiKey string, retry RetryPolicy, spool *Spool, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		apiBase: apiBase,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry:   retry,
		spool:   spool,
		logger:  logger,
		metrics: m,
	}
}

// Send attempts delivery with retry/backoff; on exhaustion it spills the
// batch to the spool. On a successful live send it opportunistically
// drains a slice of the spool too.
func (d *Dispatcher) Send(ctx context.Context, batch []WirePayload) {
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	if d.metrics != nil {
		d.metrics.BatchSize.Observe(float64(len(batch)))
		defer func() { d.metrics.BatchFlushLatency.Observe(time.Since(start).Seconds()) }()
	}

	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxRetries; attempt++ {
		if err := d.post(ctx, batch); err != nil {
			lastErr = err
			d.logger.Warn("bulk post failed, retrying", "attempt", attempt, "error", err, "batch_size", len(batch))
			select {
			case <-time.After(d.retry.delay(attempt)):
			case <-ctx.Done():
				lastErr = ctx.Err()
				goto spill
			}
			continue
		}
		d.logger.Info("bulk post succeeded", "batch_size", len(batch))
		if d.metrics != nil {
			d.metrics.DispatchRetries.WithLabelValues("success").Add(float64(attempt - 1))
		}
		d.drainSpool(ctx)
		return
	}

spill:
	d.logger.Error("bulk post exhausted retries, spooling", "batch_size", len(batch), "error", lastErr)
	if d.metrics != nil {
		d.metrics.DispatchRetries.WithLabelValues("spooled").Add(float64(d.retry.MaxRetries))
	}
	if err := d.spool.Append(batch); err != nil {
		d.logger.Error("spool append failed, events lost", "error", err, "batch_size", len(batch))
	}
	d.reportSpoolSize()
}

func (d *Dispatcher) reportSpoolSize() {
	if d.metrics == nil {
		return
	}
	n, err := d.spool.Count()
	if err != nil {
		d.logger.Warn("spool count failed", "error", err)
		return
	}
	d.metrics.SpoolSize.Set(float64(n))
}

func (d *Dispatcher) post(ctx context.Context, batch []WirePayload) error {
	body, err := json.Marshal(bulkRequest{Events: batch})
	if err != nil {
		return fmt.Errorf("marshal bulk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+"/v1/events/bulk", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// drainSpool replays up to drainRowsPerAttempt spooled rows after a live
// send succeeds, re-appending the taken rows to the spool on failure.
func (d *Dispatcher) drainSpool(ctx context.Context) {
	rows, err := d.spool.TakeSlice(drainRowsPerAttempt)
	if err != nil {
		d.logger.Error("spool read failed", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	if err := d.post(ctx, rows); err != nil {
		d.logger.Warn("spool drain post failed, re-appending", "error", err, "rows", len(rows))
		if reErr := d.spool.Append(rows); reErr != nil {
			d.logger.Error("spool re-append failed, rows lost", "error", reErr, "rows", len(rows))
		}
		d.reportSpoolSize()
		return
	}
	d.logger.Info("spool drain succeeded", "rows", len(rows))
	d.reportSpoolSize()
}
