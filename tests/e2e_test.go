// Package tests exercises the ingestion-to-aggregation round trip end to
// end against an in-memory store, covering the scenarios this pipeline is
// expected to get right: idempotent inserts, entrance-only footfall,
// unique-visitor dedup, queue percentiles, spike detection, and promo
// uplift.
package tests

import (
	"context"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpulse/eventpipeline/internal/aggregation"
	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
)

type fixedEntranceLister struct {
	cameraIDs []string
}

func (f fixedEntranceLister) ListEntranceCameraIDs(ctx context.Context, storeID string) ([]string, error) {
	return f.cameraIDs, nil
}

func newEngine(t *testing.T, mem *store.Mem, entranceCameraIDs ...string) *aggregation.Engine {
	t.Helper()
	return aggregation.New(mem, fixedEntranceLister{cameraIDs: entranceCameraIDs}, nil)
}

func entranceEvent(id, storeID, cameraID, direction string, ts time.Time) model.Event {
	return model.Event{
		EventID: id, OrgID: "org-1", StoreID: storeID, CameraID: cameraID,
		Type: model.EventEntrance, Ts: ts,
		Payload: map[string]any{"direction": direction, "person_id": "p-" + id},
	}
}

func TestS1IdempotentBulkInsert(t *testing.T) {
	mem := store.NewMem()
	ev := entranceEvent("abc", "store-1", "cam-1", "in", time.Now().UTC())

	inserted, duplicates, err := mem.InsertBulk(context.Background(), []model.Event{ev})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 0, duplicates)

	inserted, duplicates, err = mem.InsertBulk(context.Background(), []model.Event{ev})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 1, duplicates)
	assert.Equal(t, 1, mem.Len())
}

func TestS2FootfallEntranceOnlyFilter(t *testing.T) {
	mem := store.NewMem()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	var events []model.Event
	for i := 0; i < 5; i++ {
		events = append(events,
			entranceEvent(idFor("camA", i), "store-X", "camA", "in", base.Add(time.Duration(i)*time.Minute)),
			entranceEvent(idFor("camB", i), "store-X", "camB", "in", base.Add(time.Duration(i)*time.Minute)),
		)
	}
	_, _, err := mem.InsertBulk(context.Background(), events)
	require.NoError(t, err)

	engine := newEngine(t, mem, "camA") // camB is not an entrance camera
	counts, err := engine.Footfall(context.Background(), "store-X", base.Add(-time.Hour), base.Add(24*time.Hour), aggregation.BucketDay, time.UTC)
	require.NoError(t, err)

	require.Len(t, counts, 1)
	assert.Equal(t, 5, counts[0].Count)
}

func idFor(prefix string, i int) string {
	return prefix + "-" + strconv.Itoa(i)
}

func zoneDwellEvent(id, storeID, cameraID, personKey, zone string, dwellSeconds float64, ts time.Time) model.Event {
	return model.Event{
		EventID: id, OrgID: "org-1", StoreID: storeID, CameraID: cameraID, PersonKey: personKey,
		Type: model.EventZoneDwell, Ts: ts,
		Payload: map[string]any{"logical_zone": zone, "dwell_seconds": dwellSeconds, "person_id": personKey},
	}
}

func TestS3ZoneUniqueVisitorDedup(t *testing.T) {
	mem := store.NewMem()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	var events []model.Event
	for i := 0; i < 5; i++ {
		events = append(events, zoneDwellEvent("p1-"+string(rune('a'+i)), "store-1", "cam-z", "person-1", "zone_electronics", 10, base.Add(time.Duration(i)*time.Second)))
	}
	for i := 0; i < 3; i++ {
		events = append(events, zoneDwellEvent("p2-"+string(rune('a'+i)), "store-1", "cam-z", "person-2", "zone_electronics", 10, base.Add(time.Duration(i)*time.Second)))
	}
	_, _, err := mem.InsertBulk(context.Background(), events)
	require.NoError(t, err)

	engine := newEngine(t, mem)
	metrics, err := engine.ZoneMetrics(context.Background(), "store-1", base.Add(-time.Minute), base.Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, metrics, 1)
	assert.Equal(t, "zone_electronics", metrics[0].LogicalID)
	assert.Equal(t, 2, metrics[0].UniqueVisitors)
	assert.Equal(t, 8, metrics[0].EventCount)
}

func queuePresenceEvent(id, storeID, cameraID string, waitSeconds float64, ts time.Time) model.Event {
	return model.Event{
		EventID: id, OrgID: "org-1", StoreID: storeID, CameraID: cameraID,
		Type: model.EventQueuePresence, Ts: ts,
		Payload: map[string]any{"queue": "checkout-1", "wait_seconds": waitSeconds},
	}
}

func TestS4QueuePercentiles(t *testing.T) {
	mem := store.NewMem()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	waits := []float64{5, 8, 10, 12, 15, 18, 20, 22, 25, 28, 30, 35, 40, 45, 50, 55, 60, 70, 80, 90}

	var events []model.Event
	var sum float64
	for i, w := range waits {
		events = append(events, queuePresenceEvent(idFor("q", i), "store-1", "cam-q", w, base.Add(time.Duration(i)*time.Second)))
		sum += w
	}
	_, _, err := mem.InsertBulk(context.Background(), events)
	require.NoError(t, err)

	engine := newEngine(t, mem)
	metric, err := engine.QueueMetrics(context.Background(), "store-1", base.Add(-time.Minute), base.Add(time.Hour))
	require.NoError(t, err)

	// Linear-interpolation p90 over this exact 20-sample series lands at
	// 71, not the nearest-rank 90th value (70) — the distinction
	// matters most on small samples like a single queue window.
	assert.InDelta(t, sum/float64(len(waits)), metric.AvgWaitSeconds, 0.01)
	assert.InDelta(t, 71.0, metric.P90WaitSeconds, 0.01)
	assert.Equal(t, len(waits), metric.SampleCount)
}

func shelfInteractionEvent(id, storeID, cameraID string, ts time.Time) model.Event {
	return model.Event{
		EventID: id, OrgID: "org-1", StoreID: storeID, CameraID: cameraID,
		Type: model.EventShelfInteraction, Ts: ts,
		Payload: map[string]any{"logical_shelf": "shelf_snacks", "action": "touch", "dwell_seconds": 6.0},
	}
}

func TestS5SpikeDetection(t *testing.T) {
	mem := store.NewMem()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	var events []model.Event
	for day := 0; day < 14; day++ {
		dayStart := base.Add(time.Duration(day) * 24 * time.Hour)
		for i := 0; i < 100; i++ {
			events = append(events, entranceEvent(idFor("d", day*1000+i), "store-1", "cam-1", "in", dayStart.Add(time.Duration(i)*time.Minute)))
		}
	}
	anomalousDay := base.Add(14 * 24 * time.Hour)
	for i := 0; i < 200; i++ {
		events = append(events, entranceEvent(idFor("spike", i), "store-1", "cam-1", "in", anomalousDay.Add(time.Duration(i)*time.Minute)))
	}
	_, _, err := mem.InsertBulk(context.Background(), events)
	require.NoError(t, err)

	engine := newEngine(t, mem, "cam-1")
	spikes, err := engine.DetectSpikes(context.Background(), "store-1", aggregation.SpikeFootfall,
		base, anomalousDay.Add(24*time.Hour), aggregation.BucketDay, 2.0, time.UTC)
	require.NoError(t, err)

	require.Len(t, spikes, 1)
	assert.True(t, spikes[0].Bucket.Equal(anomalousDay))
	assert.Equal(t, 200.0, spikes[0].Value)
}

func TestS5SpikeDetectionConstantSeriesReturnsEmpty(t *testing.T) {
	mem := store.NewMem()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	var events []model.Event
	for day := 0; day < 10; day++ {
		dayStart := base.Add(time.Duration(day) * 24 * time.Hour)
		for i := 0; i < 50; i++ {
			events = append(events, entranceEvent(idFor("c", day*1000+i), "store-1", "cam-1", "in", dayStart.Add(time.Duration(i)*time.Minute)))
		}
	}
	_, _, err := mem.InsertBulk(context.Background(), events)
	require.NoError(t, err)

	engine := newEngine(t, mem, "cam-1")
	spikes, err := engine.DetectSpikes(context.Background(), "store-1", aggregation.SpikeFootfall,
		base, base.Add(10*24*time.Hour), aggregation.BucketDay, 2.0, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, spikes)
}

func TestS6PromoUplift(t *testing.T) {
	mem := store.NewMem()
	promoFrom := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	promoTo := promoFrom.Add(7 * 24 * time.Hour)
	baselineFrom := promoFrom.Add(-7 * 24 * time.Hour)

	var events []model.Event
	for i := 0; i < 20; i++ {
		events = append(events, shelfInteractionEvent(idFor("base", i), "store-1", "cam-shelf", baselineFrom.Add(time.Duration(i)*time.Hour)))
	}
	for i := 0; i < 35; i++ {
		events = append(events, shelfInteractionEvent(idFor("promo", i), "store-1", "cam-shelf", promoFrom.Add(time.Duration(i)*time.Hour)))
	}
	_, _, err := mem.InsertBulk(context.Background(), events)
	require.NoError(t, err)

	engine := newEngine(t, mem)
	result, err := engine.PromoUplift(context.Background(), "store-1", aggregation.UpliftInteractions, promoFrom, promoTo, 7)
	require.NoError(t, err)

	assert.False(t, result.BaselineZero)
	assert.True(t, math.Abs(result.UpliftPercent-75.0) < 0.5, "expected uplift near 75%%, got %v", result.UpliftPercent)
}
