// Package detector turns per-frame tracker output into typed semantic
// events by running the capability state machines a camera's
// configuration enables: entrance line crossing, zone dwell, shelf
// interaction, and queue presence.
package detector

import (
	"time"

	"github.com/retailpulse/eventpipeline/internal/eventid"
	"github.com/retailpulse/eventpipeline/internal/geometry"
	"github.com/retailpulse/eventpipeline/internal/model"
)

// Emitted is one event the detector produced for a frame, already carrying
// its deterministic event_id and ready to hand to the outbound pipeline.
type Emitted struct {
	model.Event
}

// Camera is the subset of camera configuration the detector needs, with
// geometry already scaled to the live frame's coordinate system.
type Camera struct {
	CameraID     string
	OrgID        string
	StoreID      string
	Capabilities []model.Capability
	EntranceLine [2]geometry.Point
	HasEntrance  bool
	Zones        map[string]Polygon
	Shelves      map[string]Polygon
	Queues       map[string]Polygon
}

// Polygon is a scaled polygon ready for point-in-polygon tests.
type Polygon []geometry.Point

func (c Camera) has(cap model.Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// Detector maintains per-track state for one camera and converts tracker
// frames into typed events. It is not safe for concurrent use — one
// Detector instance belongs to exactly one camera worker goroutine.
type Detector struct {
	camera Camera
	tracks map[string]*personTrack
}

// New constructs a Detector for the given camera.
func New(camera Camera) *Detector {
	return &Detector{
		camera: camera,
		tracks: make(map[string]*personTrack),
	}
}

// Process runs one frame's detections through every enabled state machine
// and returns the events produced. now is the edge-assigned event time —
// the single source of truth for all downstream aggregation.
func (d *Detector) Process(detections []Detection, now time.Time) []Emitted {
	seen := make(map[string]struct{}, len(detections))
	var out []Emitted

	for _, det := range detections {
		seen[det.TrackID] = struct{}{}
		track, ok := d.tracks[det.TrackID]
		if !ok {
			track = newPersonTrack(det.TrackID)
			d.tracks[det.TrackID] = track
		}
		track.observe(det.BBox.Centroid(), now)

		if d.camera.HasEntrance && d.camera.has(model.CapabilityEntrance) {
			if e, ok := d.detectEntrance(track, now); ok {
				out = append(out, e)
			}
		}
		if d.camera.has(model.CapabilityZones) {
			out = append(out, d.detectIntervals(track, d.camera.Zones, track.currentZones, track.zoneEnterTs, model.EventZoneDwell, now)...)
		}
		if d.camera.has(model.CapabilityShelves) {
			out = append(out, d.detectIntervals(track, d.camera.Shelves, track.currentShelves, track.shelfEnterTs, model.EventShelfInteraction, now)...)
		}
		if d.camera.has(model.CapabilityQueue) {
			if e, ok := d.detectQueue(track, now); ok {
				out = append(out, e)
			}
		}
	}

	d.gc(seen, now)
	return out
}

// detectEntrance runs the one-shot entrance line-crossing state machine.
func (d *Detector) detectEntrance(track *personTrack, now time.Time) (Emitted, bool) {
	if track.entranceCrossed || !track.hasPrev {
		return Emitted{}, false
	}
	p1, p2 := d.camera.EntranceLine[0], d.camera.EntranceLine[1]
	if !geometry.LineCrossing(track.prevCentroid, track.centroid, p1, p2) {
		return Emitted{}, false
	}
	direction := geometry.CrossingDirection(track.prevCentroid, track.centroid, p1, p2)
	track.entranceCrossed = true

	payload := model.EntrancePayload{Direction: string(direction), PersonID: track.trackID}
	return d.build(track.trackID, model.EventEntrance, string(direction), now, map[string]any{
		"direction": payload.Direction,
		"person_id": payload.PersonID,
	}), true
}

// detectIntervals is shared by the zone and shelf state machines: both
// track membership in a set of polygons, opening an interval on entry and
// emitting on exit if the dwell cleared the anti-noise threshold.
func (d *Detector) detectIntervals(
	track *personTrack,
	polygons map[string]Polygon,
	current map[string]struct{},
	enterTs map[string]time.Time,
	eventType model.EventType,
	now time.Time,
) []Emitted {
	var out []Emitted

	next := make(map[string]struct{})
	for id, poly := range polygons {
		if geometry.PointInPolygon(track.centroid, []geometry.Point(poly)) {
			next[id] = struct{}{}
		}
	}

	// Entered: open new intervals.
	for id := range next {
		if _, already := current[id]; !already {
			enterTs[id] = now
		}
	}

	// Exited: close intervals, emit if dwell clears the threshold.
	for id := range current {
		if _, stillIn := next[id]; stillIn {
			continue
		}
		started, ok := enterTs[id]
		delete(enterTs, id)
		if !ok {
			continue
		}
		dwell := now.Sub(started).Seconds()
		if dwell < minDwellSeconds {
			continue
		}
		out = append(out, d.buildDwellEvent(track.trackID, eventType, id, dwell, now))
	}

	for id := range current {
		delete(current, id)
	}
	for id := range next {
		current[id] = struct{}{}
	}

	return out
}

func (d *Detector) buildDwellEvent(trackID string, eventType model.EventType, logicalID string, dwellSeconds float64, now time.Time) Emitted {
	rounded := roundTo(dwellSeconds, 2)
	var payload map[string]any
	switch eventType {
	case model.EventZoneDwell:
		payload = map[string]any{
			"logical_zone":  logicalID,
			"dwell_seconds": rounded,
			"person_id":     trackID,
		}
	case model.EventShelfInteraction:
		payload = map[string]any{
			"logical_shelf": logicalID,
			"action":        "touch",
			"dwell_seconds": rounded,
			"person_id":     trackID,
		}
	}
	return d.build(trackID, eventType, logicalID, now, payload)
}

// detectQueue runs the single-membership queue state machine: entry opens
// an interval silently, exit emits wait_seconds.
func (d *Detector) detectQueue(track *personTrack, now time.Time) (Emitted, bool) {
	matchedID := ""
	for id, poly := range d.camera.Queues {
		if geometry.PointInPolygon(track.centroid, []geometry.Point(poly)) {
			matchedID = id
			break // first match wins; map iteration order is the tie-break
		}
	}

	if matchedID != "" {
		if !track.inQueue {
			track.inQueue = true
			track.queueID = matchedID
			track.queueEnterTs = now
		}
		return Emitted{}, false
	}

	if !track.inQueue {
		return Emitted{}, false
	}

	wait := now.Sub(track.queueEnterTs).Seconds()
	queueID := track.queueID
	track.inQueue = false
	track.queueID = ""

	payload := map[string]any{
		"queue":        queueID,
		"wait_seconds": roundTo(wait, 2),
		"person_id":    track.trackID,
	}
	return d.build(track.trackID, model.EventQueuePresence, queueID, now, payload), true
}

func (d *Detector) build(trackID string, eventType model.EventType, logicalKey string, ts time.Time, payload map[string]any) Emitted {
	id := eventid.Compute(d.camera.CameraID, trackID, ts, string(eventType), logicalKey)
	return Emitted{model.Event{
		EventID:  id,
		OrgID:    d.camera.OrgID,
		StoreID:  d.camera.StoreID,
		CameraID: d.camera.CameraID,
		Type:     eventType,
		Ts:       ts,
		Payload:  payload,
	}}
}

// gc drops any track unseen for longer than trackGCAge. Open intervals it
// held are discarded without emission, per spec: only completed intervals
// are ever reported.
func (d *Detector) gc(seen map[string]struct{}, now time.Time) {
	for id, track := range d.tracks {
		if _, stillActive := seen[id]; stillActive {
			continue
		}
		if track.expired(now) {
			delete(d.tracks, id)
		}
	}
}

func roundTo(v float64, decimals int) float64 {
	mult := 1.0
	for i := 0; i < decimals; i++ {
		mult *= 10
	}
	return float64(int(v*mult+0.5)) / mult
}
