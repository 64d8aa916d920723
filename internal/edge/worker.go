// Package edge supervises per-camera detection workers, loads and scales
// geometry at startup, and runs the heartbeat loop, wiring the capability
// detector to the outbound pipeline.
package edge

import (
	"context"
	"log/slog"
	"time"

	"github.com/retailpulse/eventpipeline/internal/detector"
	"github.com/retailpulse/eventpipeline/internal/eventid"
	"github.com/retailpulse/eventpipeline/internal/geometry"
	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/pipeline"
)

// Tracker is the black-box per-frame person tracker. The edge collector
// never inspects how detections were produced — only the (track_id, bbox)
// tuples it yields for the current frame.
type Tracker interface {
	// NextFrame blocks until a frame has been processed and returns the
	// detections visible in it, or an error if the camera/tracker stream
	// failed. Returning context.Canceled signals a clean stop.
	NextFrame(ctx context.Context) ([]detector.Detection, error)
}

// Worker runs one camera's capture→detect→publish loop.
type Worker struct {
	cameraID   string
	tracker    Tracker
	detector   *detector.Detector
	publisher  *pipeline.Pipeline
	orgID      string
	storeID    string
	logger     *slog.Logger
	restartMin time.Duration
	restartMax time.Duration
}

// NewWorker constructs a Worker. Geometry on cam must already be scaled to
// the tracker's live frame coordinate system (see ScaleCameraGeometry).
func NewWorker(orgID, storeID string, cam CameraRuntime, tracker Tracker, publisher *pipeline.Pipeline, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cameraID:   cam.CameraID,
		tracker:    tracker,
		detector:   detector.New(cam.ToDetectorCamera(orgID, storeID)),
		publisher:  publisher,
		orgID:      orgID,
		storeID:    storeID,
		logger:     logger.With("camera_id", cam.CameraID),
		restartMin: time.Second,
		restartMax: 30 * time.Second,
	}
}

// Run reads frames until ctx is cancelled. A tracker error restarts the
// read loop with exponential backoff rather than killing the process;
// detector errors (none currently possible, since Process never returns
// one) would only skip the affected frame.
func (w *Worker) Run(ctx context.Context) {
	backoff := w.restartMin
	for {
		if ctx.Err() != nil {
			return
		}
		detections, err := w.tracker.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("tracker frame failed, backing off", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > w.restartMax {
				backoff = w.restartMax
			}
			continue
		}
		backoff = w.restartMin

		events := w.detector.Process(detections, time.Now())
		for _, e := range events {
			wire := pipeline.WirePayload{
				EventID:  e.EventID,
				OrgID:    e.OrgID,
				StoreID:  e.StoreID,
				CameraID: e.CameraID,
				Type:     string(e.Type),
				Ts:       eventid.FormatTimestamp(e.Ts),
				Payload:  e.Payload,
			}
			if err := w.publisher.Publish(ctx, wire); err != nil {
				return
			}
		}
	}
}

// CameraRuntime is a camera's configuration after geometry has been
// scaled from its reference screenshot size to the live frame size.
type CameraRuntime struct {
	CameraID     string
	Capabilities []model.Capability
	EntranceLine [2]geometry.Point
	HasEntrance  bool
	Zones        map[string]detector.Polygon
	Shelves      map[string]detector.Polygon
	Queues       map[string]detector.Polygon
}

func (c CameraRuntime) ToDetectorCamera(orgID, storeID string) detector.Camera {
	return detector.Camera{
		CameraID:     c.CameraID,
		OrgID:        orgID,
		StoreID:      storeID,
		Capabilities: c.Capabilities,
		HasEntrance:  c.HasEntrance,
		EntranceLine: c.EntranceLine,
		Zones:        c.Zones,
		Shelves:      c.Shelves,
		Queues:       c.Queues,
	}
}
