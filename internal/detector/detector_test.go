package detector

import (
	"testing"
	"time"

	"github.com/retailpulse/eventpipeline/internal/geometry"
	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(cx, cy int) Detection {
	// bbox whose Centroid() lands exactly on (cx, cy): centroid.y = y2 - (y2-y1)/4
	// pick a 40px-tall box so the quarter-height math is exact.
	return Detection{
		TrackID: "t1",
		BBox:    BBox{X1: cx - 10, Y1: cy - 30, X2: cx + 10, Y2: cy + 10},
	}
}

func entranceCamera() Camera {
	return Camera{
		CameraID:     "cam-1",
		OrgID:        "org-1",
		StoreID:      "store-1",
		Capabilities: []model.Capability{model.CapabilityEntrance},
		HasEntrance:  true,
		EntranceLine: [2]geometry.Point{{X: 0, Y: 50}, {X: 100, Y: 50}},
	}
}

func TestEntranceCrossingEmitsOnce(t *testing.T) {
	d := New(entranceCamera())
	now := time.Now()

	// First observation establishes position above the line; no prev, no event.
	events := d.Process([]Detection{box(50, 20)}, now)
	assert.Empty(t, events)

	// Cross below the line.
	events = d.Process([]Detection{box(50, 80)}, now.Add(time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEntrance, events[0].Type)
	assert.Equal(t, "in", events[0].Payload["direction"])

	// Crossing back does not re-trigger: entranceCrossed is one-shot.
	events = d.Process([]Detection{box(50, 20)}, now.Add(2*time.Second))
	assert.Empty(t, events)
}

func zoneCamera() Camera {
	return Camera{
		CameraID:     "cam-2",
		OrgID:        "org-1",
		StoreID:      "store-1",
		Capabilities: []model.Capability{model.CapabilityZones},
		Zones: map[string]Polygon{
			"electronics": {{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}},
		},
	}
}

func TestZoneDwellEmitsOnlyAboveThreshold(t *testing.T) {
	d := New(zoneCamera())
	now := time.Now()

	d.Process([]Detection{box(50, 50)}, now)

	// Exit after 2s: below minDwellSeconds, should not emit.
	events := d.Process([]Detection{box(500, 500)}, now.Add(2*time.Second))
	assert.Empty(t, events)

	// Re-enter and leave after 5s: should emit.
	d.Process([]Detection{box(50, 50)}, now.Add(3*time.Second))
	events = d.Process([]Detection{box(500, 500)}, now.Add(8*time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventZoneDwell, events[0].Type)
	assert.Equal(t, "electronics", events[0].Payload["logical_zone"])
	assert.InDelta(t, 5.0, events[0].Payload["dwell_seconds"], 0.01)
}

func queueCamera() Camera {
	return Camera{
		CameraID:     "cam-3",
		OrgID:        "org-1",
		StoreID:      "store-1",
		Capabilities: []model.Capability{model.CapabilityQueue},
		Queues: map[string]Polygon{
			"checkout-1": {{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}},
		},
	}
}

func TestQueueEmitsOnlyOnExit(t *testing.T) {
	d := New(queueCamera())
	now := time.Now()

	events := d.Process([]Detection{box(50, 50)}, now)
	assert.Empty(t, events)

	events = d.Process([]Detection{box(500, 500)}, now.Add(10*time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventQueuePresence, events[0].Type)
	assert.Equal(t, "checkout-1", events[0].Payload["queue"])
	assert.InDelta(t, 10.0, events[0].Payload["wait_seconds"], 0.01)
}

func TestTrackGCDropsOpenIntervalsWithoutEmission(t *testing.T) {
	d := New(zoneCamera())
	now := time.Now()

	d.Process([]Detection{box(50, 50)}, now)

	// Track goes silent; a later frame with no detections at all should GC it
	// once trackGCAge has elapsed, without ever emitting the open interval.
	events := d.Process(nil, now.Add(20*time.Second))
	assert.Empty(t, events)
	assert.Empty(t, d.tracks)
}

func TestEventIDDeterministicAcrossIdenticalFrames(t *testing.T) {
	cam := entranceCamera()
	d1 := New(cam)
	d2 := New(cam)
	now := time.Now()

	d1.Process([]Detection{box(50, 20)}, now)
	d2.Process([]Detection{box(50, 20)}, now)

	e1 := d1.Process([]Detection{box(50, 80)}, now.Add(time.Second))
	e2 := d2.Process([]Detection{box(50, 80)}, now.Add(time.Second))

	require.Len(t, e1, 1)
	require.Len(t, e2, 1)
	assert.Equal(t, e1[0].EventID, e2[0].EventID)
}
