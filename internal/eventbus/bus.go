// Package eventbus fans newly-ingested events out to in-process
// subscribers — today, the live dashboard websocket hub — with an
// optional Google Cloud Pub/Sub backing for durable cross-service
// delivery when a project is configured.
package eventbus

import (
	"context"
	"sync"

	"github.com/retailpulse/eventpipeline/internal/model"
)

// Bus publishes newly-persisted events for downstream fan-out.
type Bus interface {
	Publish(ctx context.Context, e model.Event)
	Subscribe(storeID string) (ch <-chan model.Event, unsubscribe func())
}

// InMemory is a process-local pub/sub bus, keyed by store_id so a
// dashboard subscriber only ever sees its own store's events.
type InMemory struct {
	mu          sync.RWMutex
	subscribers map[string][]chan model.Event
	bufferSize  int
}

// NewInMemory constructs an InMemory bus.
func NewInMemory() *InMemory {
	return &InMemory{
		subscribers: make(map[string][]chan model.Event),
		bufferSize:  64,
	}
}

// Publish fans e out to every subscriber of e.StoreID. A full subscriber
// channel drops the event rather than blocking ingestion — live push is
// best-effort, never a correctness path.
func (b *InMemory) Publish(ctx context.Context, e model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[e.StoreID] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new channel for storeID's events. The returned
// unsubscribe func must be called exactly once when the caller is done.
func (b *InMemory) Subscribe(storeID string) (<-chan model.Event, func()) {
	ch := make(chan model.Event, b.bufferSize)

	b.mu.Lock()
	b.subscribers[storeID] = append(b.subscribers[storeID], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[storeID]
		for i, s := range subs {
			if s == ch {
				b.subscribers[storeID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, unsubscribe
}
