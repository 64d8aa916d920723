package aggregation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
)

// DefaultSpikeThresholdZ is the z-score magnitude that marks a bucket as
// anomalous when the caller does not specify one.
const DefaultSpikeThresholdZ = 2.0

// SpikeMetric enumerates the metrics spike detection can bucket.
type SpikeMetric string

const (
	SpikeFootfall     SpikeMetric = "footfall"
	SpikeInteractions SpikeMetric = "interactions"
)

// DetectSpikes buckets metric by bucket (hour or day) over [from, to),
// computes the sample mean and standard deviation across buckets, and
// flags any bucket whose |z-score| meets thresholdZ. Returns no spikes when
// there are fewer than 3 buckets or the sample has zero variance — both
// cases where a z-score is not a meaningful signal.
func (e *Engine) DetectSpikes(ctx context.Context, storeID string, metric SpikeMetric, from, to time.Time, bucket Bucket, thresholdZ float64, loc *time.Location) ([]Spike, error) {
	if thresholdZ <= 0 {
		thresholdZ = DefaultSpikeThresholdZ
	}

	buckets, err := e.metricBuckets(ctx, storeID, metric, from, to, bucket, loc)
	if err != nil {
		return nil, err
	}
	if len(buckets) < 3 {
		return nil, nil
	}

	mean, stddev := sampleStats(buckets)
	if stddev == 0 {
		return nil, nil
	}

	var spikes []Spike
	for _, bc := range buckets {
		z := (bc.Count - mean) / stddev
		if math.Abs(z) >= thresholdZ {
			spikes = append(spikes, Spike{
				Bucket: bc.Bucket,
				Value:  bc.Count,
				Z:      roundTo2(z),
				Mean:   roundTo2(mean),
				StdDev: roundTo2(stddev),
			})
		}
	}
	return spikes, nil
}

type valueBucket struct {
	Bucket time.Time
	Count  float64
}

func (e *Engine) metricBuckets(ctx context.Context, storeID string, metric SpikeMetric, from, to time.Time, bucket Bucket, loc *time.Location) ([]valueBucket, error) {
	switch metric {
	case SpikeFootfall:
		counts, err := e.Footfall(ctx, storeID, from, to, bucket, loc)
		if err != nil {
			return nil, err
		}
		out := make([]valueBucket, len(counts))
		for i, bc := range counts {
			out[i] = valueBucket{Bucket: bc.Bucket, Count: float64(bc.Count)}
		}
		return out, nil

	case SpikeInteractions:
		counts, err := e.interactionsByBucket(ctx, storeID, from, to, bucket, loc)
		if err != nil {
			return nil, err
		}
		return counts, nil

	default:
		return nil, nil
	}
}

func (e *Engine) interactionsByBucket(ctx context.Context, storeID string, from, to time.Time, bucket Bucket, loc *time.Location) ([]valueBucket, error) {
	events, err := e.events.QueryEvents(ctx, store.Filter{StoreID: storeID, Type: model.EventShelfInteraction, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("aggregation: query interactions for spike detection: %w", err)
	}
	counts := make(map[time.Time]int)
	for _, ev := range events {
		counts[bucket.truncate(ev.Ts, loc)]++
	}
	sorted := sortedBucketCounts(counts)
	out := make([]valueBucket, len(sorted))
	for i, bc := range sorted {
		out[i] = valueBucket{Bucket: bc.Bucket, Count: float64(bc.Count)}
	}
	return out, nil
}

// sampleStats returns the mean and sample standard deviation (Bessel's
// correction, dividing by n-1) of buckets, matching Python's
// statistics.stdev — the function DetectSpikes' z-score is grounded on.
// Callers guarantee len(buckets) >= 3, so n-1 is always >= 2.
func sampleStats(buckets []valueBucket) (mean, stddev float64) {
	n := float64(len(buckets))
	sum := 0.0
	for _, b := range buckets {
		sum += b.Count
	}
	mean = sum / n

	variance := 0.0
	for _, b := range buckets {
		d := b.Count - mean
		variance += d * d
	}
	variance /= n - 1
	return mean, math.Sqrt(variance)
}
