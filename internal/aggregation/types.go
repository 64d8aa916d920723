// Package aggregation answers the analytics questions the query API
// surfaces: footfall, zone/shelf/queue metrics, a live snapshot, peak hour,
// promo uplift, and z-score spike detection. Every function is scoped to a
// single store and a time window; none of them trust a caller-supplied
// org_id — that check happens one layer up, in internal/tenancy.
package aggregation

import (
	"context"
	"log/slog"
	"time"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
)

// Bucket is the granularity footfall, peak-hour, and spike-detection
// queries truncate timestamps to.
type Bucket string

const (
	BucketHour Bucket = "hour"
	BucketDay  Bucket = "day"
)

func (b Bucket) truncate(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	if b == BucketDay {
		y, m, d := local.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	y, m, d := local.Date()
	return time.Date(y, m, d, local.Hour(), 0, 0, 0, loc)
}

// EntranceLister is the slice of tenancy.MetaStore the aggregation engine
// depends on: which cameras in a store count toward footfall. Narrowed to
// an interface so tests can supply a fixed camera set without a Supabase
// project.
type EntranceLister interface {
	ListEntranceCameraIDs(ctx context.Context, storeID string) ([]string, error)
}

// Engine answers aggregation queries against an event store, honoring the
// is_entrance camera filter spec.md §4.H makes mandatory for footfall.
type Engine struct {
	events store.Store
	meta   EntranceLister
	logger *slog.Logger
}

// New constructs an Engine.
func New(events store.Store, meta EntranceLister, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{events: events, meta: meta, logger: logger}
}

// BucketCount is one time-bucketed count, returned by Footfall and consumed
// by PeakHour and spike detection.
type BucketCount struct {
	Bucket time.Time `json:"bucket"`
	Count  int       `json:"count"`
}

// ZoneMetric reports unique-visitor and dwell statistics for one logical
// zone or shelf over a window.
type ZoneMetric struct {
	LogicalID       string  `json:"logical_id"`
	UniqueVisitors  int     `json:"unique_visitors"`
	EventCount      int     `json:"event_count"`
	AvgDwellSeconds float64 `json:"avg_dwell_seconds"`
	P95DwellSeconds float64 `json:"p95_dwell_seconds"`
}

// QueueMetric reports wait-time statistics across all queue_presence events
// in the window.
type QueueMetric struct {
	AvgWaitSeconds float64 `json:"avg_wait_seconds"`
	P90WaitSeconds float64 `json:"p90_wait_seconds"`
	SampleCount    int     `json:"sample_count"`
}

// Snapshot is the live (last-N-seconds) view of a store.
type Snapshot struct {
	WindowSeconds int            `json:"window_sec"`
	Footfall      int            `json:"footfall"`
	ZoneActive    map[string]int `json:"zone_active"`
	QueueLength   int            `json:"queue_length"`
}

// UpliftResult is the outcome of a promo-vs-baseline comparison.
type UpliftResult struct {
	Metric        string  `json:"metric"`
	PromoRate     float64 `json:"promo_rate_per_day"`
	BaselineRate  float64 `json:"baseline_rate_per_day"`
	UpliftPercent float64 `json:"uplift_percent"`
	BaselineZero  bool    `json:"baseline_zero"`
}

// Spike is one bucket whose metric value deviated from the window's
// population mean by at least the configured threshold.
type Spike struct {
	Bucket time.Time `json:"bucket"`
	Value  float64   `json:"value"`
	Z      float64   `json:"z"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"stddev"`
}

func directionIn(e model.Event) bool {
	dir, _ := e.Payload["direction"].(string)
	return dir == "in"
}

func floatField(e model.Event, key string) (float64, bool) {
	v, ok := e.Payload[key].(float64)
	return v, ok
}

func stringField(e model.Event, key string) string {
	s, _ := e.Payload[key].(string)
	return s
}
