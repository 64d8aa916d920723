package store

import (
	"context"
	"sync"

	"github.com/retailpulse/eventpipeline/internal/model"
)

// Mem is an in-memory Store used by ingestion and aggregation tests so
// they exercise real dedup and filter semantics without a database.
type Mem struct {
	mu     sync.Mutex
	byID   map[string]model.Event
	order  []string
}

// NewMem constructs an empty in-memory store.
func NewMem() *Mem {
	return &Mem{byID: make(map[string]model.Event)}
}

func (m *Mem) InsertBulk(ctx context.Context, events []model.Event) (inserted, duplicates int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range events {
		if _, exists := m.byID[e.EventID]; exists {
			duplicates++
			continue
		}
		m.byID[e.EventID] = e
		m.order = append(m.order, e.EventID)
		inserted++
	}
	return inserted, duplicates, nil
}

func (m *Mem) QueryEvents(ctx context.Context, filter Filter) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cameraSet := make(map[string]struct{}, len(filter.CameraIDs))
	for _, id := range filter.CameraIDs {
		cameraSet[id] = struct{}{}
	}

	var out []model.Event
	for _, id := range m.order {
		e := m.byID[id]
		if e.StoreID != filter.StoreID {
			continue
		}
		if e.Ts.Before(filter.From) || !e.Ts.Before(filter.To) {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if len(cameraSet) > 0 {
			if _, ok := cameraSet[e.CameraID]; !ok {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Len reports how many distinct events are stored, for test assertions.
func (m *Mem) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
