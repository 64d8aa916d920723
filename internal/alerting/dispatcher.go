package alerting

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dispatcher is the interface satisfied by both the in-memory worker-pool
// dispatcher and the Cloud Tasks-backed one.
type Dispatcher interface {
	Fire(kind Kind, orgID, storeID, cameraID, message string, data map[string]any)
	Shutdown()
}

type deliveryJob struct {
	sub     *Subscription
	alert   *Alert
	attempt int
}

// WorkerPool delivers alerts over HTTP with a small fixed worker pool,
// making at most 3 attempts when the transport fails, waiting attempt²
// seconds (1s, then 4s) between them; an error status is not retried.
type WorkerPool struct {
	registry   *Registry
	httpClient *http.Client
	queue      chan *deliveryJob
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewWorkerPool starts workers background goroutines delivering queued alerts.
func NewWorkerPool(registry *Registry, workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &WorkerPool{
		registry:   registry,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan *deliveryJob, 1000),
		logger:     logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Fire builds an Alert and enqueues one delivery job per active subscriber
// of orgID. A full queue drops the delivery rather than blocking the
// ingestion/supervisor goroutine that raised the alert.
func (d *WorkerPool) Fire(kind Kind, orgID, storeID, cameraID, message string, data map[string]any) {
	subs := d.registry.SubscribersFor(orgID)
	if len(subs) == 0 {
		return
	}

	alert := &Alert{
		ID: uuid.NewString(), Kind: kind, OrgID: orgID, StoreID: storeID,
		CameraID: cameraID, Message: message, Data: data, Timestamp: time.Now().UTC(),
	}

	for _, sub := range subs {
		select {
		case d.queue <- &deliveryJob{sub: sub, alert: alert, attempt: 1}:
		default:
			d.logger.Warn("alerting: queue full, dropping delivery", "alert_id", alert.ID, "subscription_id", sub.ID)
		}
	}
}

func (d *WorkerPool) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *WorkerPool) deliver(job *deliveryJob) {
	payload, err := json.Marshal(job.alert)
	if err != nil {
		d.logger.Error("alerting: marshal alert failed", "error", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, job.sub.URL, bytes.NewReader(payload))
	if err != nil {
		d.logger.Error("alerting: build request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-Kind", string(job.alert.Kind))
	req.Header.Set("X-Alert-ID", job.alert.ID)
	if job.sub.Secret != "" {
		req.Header.Set("X-Alert-Signature", "sha256="+SignPayload(payload, job.sub.Secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.registry.MarkFailed(job.sub.ID)
		d.retry(job)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.registry.MarkFailed(job.sub.ID)
		d.logger.Warn("alerting: subscriber returned error status", "url", job.sub.URL, "status", resp.StatusCode)
	}
}

func (d *WorkerPool) retry(job *deliveryJob) {
	if job.attempt >= 3 {
		return
	}
	time.Sleep(time.Duration(job.attempt*job.attempt) * time.Second)
	job.attempt++
	select {
	case d.queue <- job:
	default:
	}
}

// Shutdown closes the queue and waits for in-flight deliveries to finish.
func (d *WorkerPool) Shutdown() {
	close(d.queue)
	d.wg.Wait()
}

var _ Dispatcher = (*WorkerPool)(nil)
