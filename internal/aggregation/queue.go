package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
)

// QueueMetrics reports avg_wait_seconds and p90_wait_seconds over
// queue_presence events in the window. p90 uses linear interpolation
// between closest ranks (the "R-7"/Excel convention), not nearest-rank —
// picked because it degrades gracefully on small samples, which queue
// windows tend to be.
func (e *Engine) QueueMetrics(ctx context.Context, storeID string, from, to time.Time) (QueueMetric, error) {
	events, err := e.events.QueryEvents(ctx, store.Filter{StoreID: storeID, Type: model.EventQueuePresence, From: from, To: to})
	if err != nil {
		return QueueMetric{}, fmt.Errorf("aggregation: query queue events: %w", err)
	}

	waits := make([]float64, 0, len(events))
	for _, ev := range events {
		if wait, ok := floatField(ev, "wait_seconds"); ok {
			waits = append(waits, wait)
		}
	}
	if len(waits) == 0 {
		return QueueMetric{}, nil
	}

	sort.Float64s(waits)
	sum := 0.0
	for _, w := range waits {
		sum += w
	}

	return QueueMetric{
		AvgWaitSeconds: roundTo2(sum / float64(len(waits))),
		P90WaitSeconds: roundTo2(percentile(waits, 0.90)),
		SampleCount:    len(waits),
	}, nil
}

// percentile computes the p-th percentile of sorted (ascending) using
// linear interpolation between the two closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
