package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
)

// DefaultWindowSeconds is the live snapshot's default lookback window.
const DefaultWindowSeconds = 60

// LiveSnapshot reports current footfall, per-zone active visitor counts,
// and current queue length over the last windowSeconds.
func (e *Engine) LiveSnapshot(ctx context.Context, storeID string, windowSeconds int, now time.Time) (Snapshot, error) {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	from := now.Add(-time.Duration(windowSeconds) * time.Second)

	footfall, err := e.windowFootfall(ctx, storeID, from, now)
	if err != nil {
		return Snapshot{}, err
	}

	zoneActive, err := e.activeZoneVisitors(ctx, storeID, from, now)
	if err != nil {
		return Snapshot{}, err
	}

	queueLen, err := e.activeQueueLength(ctx, storeID, from, now)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		WindowSeconds: windowSeconds,
		Footfall:      footfall,
		ZoneActive:    zoneActive,
		QueueLength:   queueLen,
	}, nil
}

func (e *Engine) windowFootfall(ctx context.Context, storeID string, from, to time.Time) (int, error) {
	entranceCameras, err := e.meta.ListEntranceCameraIDs(ctx, storeID)
	if err != nil {
		return 0, fmt.Errorf("aggregation: list entrance cameras: %w", err)
	}
	if len(entranceCameras) == 0 {
		return 0, nil
	}
	events, err := e.events.QueryEvents(ctx, store.Filter{
		StoreID: storeID, CameraIDs: entranceCameras, Type: model.EventEntrance, From: from, To: to,
	})
	if err != nil {
		return 0, fmt.Errorf("aggregation: query live footfall: %w", err)
	}
	count := 0
	for _, ev := range events {
		if directionIn(ev) {
			count++
		}
	}
	return count, nil
}

func (e *Engine) activeZoneVisitors(ctx context.Context, storeID string, from, to time.Time) (map[string]int, error) {
	events, err := e.events.QueryEvents(ctx, store.Filter{StoreID: storeID, Type: model.EventZoneDwell, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("aggregation: query live zones: %w", err)
	}
	seen := make(map[string]map[string]struct{})
	for _, ev := range events {
		zone := stringField(ev, "logical_zone")
		if zone == "" {
			continue
		}
		if seen[zone] == nil {
			seen[zone] = make(map[string]struct{})
		}
		seen[zone][ev.PersonKey] = struct{}{}
	}
	out := make(map[string]int, len(seen))
	for zone, people := range seen {
		out[zone] = len(people)
	}
	return out, nil
}

func (e *Engine) activeQueueLength(ctx context.Context, storeID string, from, to time.Time) (int, error) {
	events, err := e.events.QueryEvents(ctx, store.Filter{StoreID: storeID, Type: model.EventQueuePresence, From: from, To: to})
	if err != nil {
		return 0, fmt.Errorf("aggregation: query live queue: %w", err)
	}
	distinct := make(map[string]struct{})
	for _, ev := range events {
		distinct[ev.PersonKey] = struct{}{}
	}
	return len(distinct), nil
}
