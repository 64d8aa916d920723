package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/retailpulse/eventpipeline/internal/model"
)

// PubSub wraps an InMemory bus and additionally publishes every event to a
// Google Cloud Pub/Sub topic for durable, cross-service delivery (future
// LLM narration, data-warehouse export) without coupling this package to
// those consumers.
type PubSub struct {
	*InMemory

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPubSub creates the topic if it does not already exist and returns a
// bus that publishes to both Pub/Sub and its embedded in-memory fan-out.
func NewPubSub(ctx context.Context, projectID, topicID string, logger *slog.Logger) (*PubSub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("eventbus: pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("eventbus: topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("eventbus: CreateTopic: %w", err)
		}
	}
	topic.EnableMessageOrdering = true

	return &PubSub{InMemory: NewInMemory(), client: client, topic: topic, logger: logger}, nil
}

// Publish fans e out in-process and publishes it to Pub/Sub, ordered by
// store_id so consumers see one store's events in emission order.
func (p *PubSub) Publish(ctx context.Context, e model.Event) {
	p.InMemory.Publish(ctx, e)

	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("eventbus: marshal event for pubsub failed", "error", err, "event_id", e.EventID)
		return
	}
	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":     string(e.Type),
			"store_id": e.StoreID,
			"ts":       e.Ts.UTC().Format(time.RFC3339Nano),
		},
		OrderingKey: e.StoreID,
	}
	result := p.topic.Publish(ctx, msg)
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			p.logger.Warn("eventbus: pubsub publish failed", "error", err, "event_id", e.EventID)
		}
	}()
}

// Close releases the Pub/Sub client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
