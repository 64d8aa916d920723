package detector

import (
	"time"

	"github.com/retailpulse/eventpipeline/internal/geometry"
)

// trackGCAge is how long a track may go unseen before it is dropped. Any
// open zone/shelf/queue interval it held is discarded without emission —
// only completed intervals are reported.
const trackGCAge = 10 * time.Second

// minDwellSeconds is the anti-noise threshold below which a completed zone
// or shelf interval is discarded rather than emitted.
const minDwellSeconds = 4.0

// Detection is one tracker output for a single frame: a track's current
// bounding box.
type Detection struct {
	TrackID string
	BBox    BBox
}

// BBox is a pixel-space bounding box, (x1,y1) top-left to (x2,y2) bottom-right.
type BBox struct {
	X1, Y1, X2, Y2 int
}

// Centroid computes the "knee-height" reference point the spec defines:
// bottom-center of the box, shifted up by a quarter of its height. This is
// closer to where a person's feet are than the box center, which makes
// line-crossing and polygon membership track floor position rather than
// torso position.
func (b BBox) Centroid() geometry.Point {
	cx := (b.X1 + b.X2) / 2
	bottom := b.Y2
	quarterHeight := (b.Y2 - b.Y1) / 4
	return geometry.Point{X: cx, Y: bottom - quarterHeight}
}

// personTrack is the ephemeral per-track state the detector maintains for
// one camera across frames.
type personTrack struct {
	trackID       string
	centroid      geometry.Point
	prevCentroid  geometry.Point
	lastSeen      time.Time
	hasPrev       bool
	entranceCrossed bool

	currentZones map[string]struct{}
	zoneEnterTs  map[string]time.Time

	currentShelves map[string]struct{}
	shelfEnterTs   map[string]time.Time

	inQueue      bool
	queueID      string
	queueEnterTs time.Time
}

func newPersonTrack(trackID string) *personTrack {
	return &personTrack{
		trackID:        trackID,
		currentZones:   make(map[string]struct{}),
		zoneEnterTs:    make(map[string]time.Time),
		currentShelves: make(map[string]struct{}),
		shelfEnterTs:   make(map[string]time.Time),
	}
}

func (t *personTrack) observe(centroid geometry.Point, now time.Time) {
	if t.hasPrev {
		t.prevCentroid = t.centroid
	} else {
		t.prevCentroid = centroid
		t.hasPrev = true
	}
	t.centroid = centroid
	t.lastSeen = now
}

func (t *personTrack) expired(now time.Time) bool {
	return now.Sub(t.lastSeen) > trackGCAge
}
