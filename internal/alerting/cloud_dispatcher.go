package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"

	"github.com/google/uuid"
)

// CloudDispatcher enqueues one Cloud Task per subscriber delivery instead
// of delivering inline, trading latency for Cloud Tasks' durable retry,
// rate limiting, and dead-letter handling. Falls back to an in-memory
// WorkerPool when the Cloud Tasks enqueue itself fails.
type CloudDispatcher struct {
	registry  *Registry
	client    *cloudtasks.Client
	queuePath string
	logger    *slog.Logger
	fallback  *WorkerPool
}

// NewCloudDispatcher connects to the named Cloud Tasks queue. fallbackWorkers,
// when > 0, also starts an in-memory WorkerPool used if enqueueing fails.
func NewCloudDispatcher(ctx context.Context, registry *Registry, projectID, locationID, queueID string, fallbackWorkers int, logger *slog.Logger) (*CloudDispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("alerting: cloudtasks.NewClient: %w", err)
	}

	cd := &CloudDispatcher{
		registry:  registry,
		client:    client,
		queuePath: fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
		logger:    logger,
	}
	if fallbackWorkers > 0 {
		cd.fallback = NewWorkerPool(registry, fallbackWorkers, logger)
	}
	return cd, nil
}

// Fire enqueues one Cloud Task per active subscriber of orgID.
func (cd *CloudDispatcher) Fire(kind Kind, orgID, storeID, cameraID, message string, data map[string]any) {
	subs := cd.registry.SubscribersFor(orgID)
	if len(subs) == 0 {
		return
	}

	alert := &Alert{
		ID: uuid.NewString(), Kind: kind, OrgID: orgID, StoreID: storeID,
		CameraID: cameraID, Message: message, Data: data, Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		cd.logger.Error("alerting: marshal alert failed", "error", err)
		return
	}

	for _, sub := range subs {
		cd.enqueueTask(sub, alert, payload)
	}
}

func (cd *CloudDispatcher) enqueueTask(sub *Subscription, alert *Alert, payload []byte) {
	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Alert-Kind": string(alert.Kind),
		"X-Alert-ID":   alert.ID,
	}
	if sub.Secret != "" {
		headers["X-Alert-Signature"] = "sha256=" + SignPayload(payload, sub.Secret)
	}

	req := &taskspb.CreateTaskRequest{
		Parent: cd.queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        sub.URL,
					Headers:    headers,
					Body:       payload,
				},
			},
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := cd.client.CreateTask(ctx, req); err != nil {
			cd.logger.Warn("alerting: cloud task enqueue failed", "error", err, "url", sub.URL)
			if cd.fallback != nil {
				cd.fallback.Fire(alert.Kind, alert.OrgID, alert.StoreID, alert.CameraID, alert.Message, alert.Data)
			}
		}
	}()
}

// Shutdown releases the Cloud Tasks client and stops the fallback pool.
func (cd *CloudDispatcher) Shutdown() {
	if cd.fallback != nil {
		cd.fallback.Shutdown()
	}
	cd.client.Close()
}

var _ Dispatcher = (*CloudDispatcher)(nil)
