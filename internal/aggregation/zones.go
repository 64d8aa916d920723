package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
)

const minDwellSeconds = 4.0

// ZoneMetrics reports unique_visitors and avg_dwell_seconds per
// logical_zone over zone_dwell events in the window.
func (e *Engine) ZoneMetrics(ctx context.Context, storeID string, from, to time.Time) ([]ZoneMetric, error) {
	return e.dwellMetrics(ctx, storeID, model.EventZoneDwell, "logical_zone", from, to)
}

// ShelfMetrics reports interaction counts and avg_dwell_seconds per
// logical_shelf over shelf_interaction events in the window.
func (e *Engine) ShelfMetrics(ctx context.Context, storeID string, from, to time.Time) ([]ZoneMetric, error) {
	return e.dwellMetrics(ctx, storeID, model.EventShelfInteraction, "logical_shelf", from, to)
}

func (e *Engine) dwellMetrics(ctx context.Context, storeID string, eventType model.EventType, idField string, from, to time.Time) ([]ZoneMetric, error) {
	events, err := e.events.QueryEvents(ctx, store.Filter{StoreID: storeID, Type: eventType, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("aggregation: query %s events: %w", eventType, err)
	}

	type accum struct {
		count      int
		dwellSum   float64
		dwells     []float64
		uniqueSeen map[string]struct{}
	}
	byLogicalID := make(map[string]*accum)

	for _, ev := range events {
		dwell, ok := floatField(ev, "dwell_seconds")
		if !ok || dwell < minDwellSeconds {
			continue
		}
		logicalID := stringField(ev, idField)
		if logicalID == "" {
			continue
		}

		a, found := byLogicalID[logicalID]
		if !found {
			a = &accum{uniqueSeen: make(map[string]struct{})}
			byLogicalID[logicalID] = a
		}
		a.count++
		a.dwellSum += dwell
		a.dwells = append(a.dwells, dwell)
		a.uniqueSeen[uniqueVisitorKey(ev)] = struct{}{}
	}

	out := make([]ZoneMetric, 0, len(byLogicalID))
	for id, a := range byLogicalID {
		sort.Float64s(a.dwells)
		out = append(out, ZoneMetric{
			LogicalID:       id,
			UniqueVisitors:  len(a.uniqueSeen),
			EventCount:      a.count,
			AvgDwellSeconds: roundTo2(a.dwellSum / float64(a.count)),
			P95DwellSeconds: roundTo2(percentile(a.dwells, 0.95)),
		})
	}
	return out, nil
}

// uniqueVisitorKey collapses at (camera_id, person_id, minute) granularity,
// per spec.md §4.H: the same camera re-emitting close intervals must not
// inflate unique_visitors, while two cameras seeing the same person in the
// same minute are intentionally allowed to count once each (cross-camera
// Re-ID is out of scope).
func uniqueVisitorKey(ev model.Event) string {
	minuteTrunc := ev.Ts.UTC().Truncate(time.Minute)
	return fmt.Sprintf("%s|%s|%s", ev.CameraID, ev.PersonKey, minuteTrunc.Format(time.RFC3339))
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
