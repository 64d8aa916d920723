package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
)

// Footfall counts entrance/in events bucketed by hour or day, filtered to
// cameras flagged is_entrance in storeID. This filter is mandatory: a
// non-entrance camera's own crossing-line events must never contribute.
func (e *Engine) Footfall(ctx context.Context, storeID string, from, to time.Time, bucket Bucket, loc *time.Location) ([]BucketCount, error) {
	entranceCameras, err := e.meta.ListEntranceCameraIDs(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("aggregation: list entrance cameras: %w", err)
	}
	if len(entranceCameras) == 0 {
		return nil, nil
	}

	events, err := e.events.QueryEvents(ctx, store.Filter{
		StoreID:   storeID,
		CameraIDs: entranceCameras,
		Type:      model.EventEntrance,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregation: query footfall events: %w", err)
	}

	counts := make(map[time.Time]int)
	for _, ev := range events {
		if !directionIn(ev) {
			continue
		}
		counts[bucket.truncate(ev.Ts, loc)]++
	}

	return sortedBucketCounts(counts), nil
}

func sortedBucketCounts(counts map[time.Time]int) []BucketCount {
	out := make([]BucketCount, 0, len(counts))
	for ts, n := range counts {
		out = append(out, BucketCount{Bucket: ts, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out
}

// PeakHour returns the hour bucket with the highest footfall in the window,
// tie-breaking on the earliest hour. Returns ok=false when there is no
// footfall at all in the window.
func (e *Engine) PeakHour(ctx context.Context, storeID string, from, to time.Time, loc *time.Location) (bucket BucketCount, ok bool, err error) {
	hourly, err := e.Footfall(ctx, storeID, from, to, BucketHour, loc)
	if err != nil {
		return BucketCount{}, false, err
	}
	if len(hourly) == 0 {
		return BucketCount{}, false, nil
	}

	best := hourly[0]
	for _, bc := range hourly[1:] {
		if bc.Count > best.Count {
			best = bc
		}
	}
	return best, true, nil
}
