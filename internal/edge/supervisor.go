package edge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/retailpulse/eventpipeline/internal/detector"
	"github.com/retailpulse/eventpipeline/internal/edgeconfig"
	"github.com/retailpulse/eventpipeline/internal/geometry"
	"github.com/retailpulse/eventpipeline/internal/pipeline"
)

// TrackerFactory builds the black-box tracker for one camera. Supplied by
// the binary wiring code so this package never depends on a concrete
// detection/inference implementation.
type TrackerFactory func(cam edgeconfig.CameraConfig) (Tracker, error)

// Supervisor owns the full set of camera workers and the heartbeat loop
// for one edge process.
type Supervisor struct {
	cfg       *edgeconfig.Config
	pipeline  *pipeline.Pipeline
	trackerOf TrackerFactory
	logger    *slog.Logger

	wg sync.WaitGroup
}

// New constructs a Supervisor from the loaded edge config. Run takes the
// live frame size (nativeSize), shared by every camera, used to scale
// operator-drawn geometry from its reference screenshot size.
func New(cfg *edgeconfig.Config, pl *pipeline.Pipeline, trackerOf TrackerFactory, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, pipeline: pl, trackerOf: trackerOf, logger: logger}
}

// Run launches one worker goroutine per configured camera plus the
// heartbeat loop, and blocks until ctx is cancelled and every goroutine
// has returned.
func (s *Supervisor) Run(ctx context.Context, nativeSize geometry.Size) {
	for _, camCfg := range s.cfg.Cameras {
		runtime := ScaleCameraGeometry(camCfg, nativeSize)
		tracker, err := s.trackerOf(camCfg)
		if err != nil {
			s.logger.Error("tracker init failed, camera disabled", "camera_id", camCfg.CameraID, "error", err)
			continue
		}
		worker := NewWorker(s.cfg.OrgID, s.cfg.StoreID, runtime, tracker, s.pipeline, s.logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			worker.Run(ctx)
		}()
	}

	cameraIDs := make([]string, 0, len(s.cfg.Cameras))
	for _, c := range s.cfg.Cameras {
		cameraIDs = append(cameraIDs, c.CameraID)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		RunHeartbeat(ctx, s.cfg, cameraIDs, s.logger)
	}()

	<-ctx.Done()
	s.wg.Wait()
}

// ScaleCameraGeometry converts a camera's operator-drawn, screenshot-
// relative polygons and entrance line into the live frame's coordinate
// system. Performed once at worker startup, never per-frame.
func ScaleCameraGeometry(cfg edgeconfig.CameraConfig, nativeSize geometry.Size) CameraRuntime {
	from := geometry.Size{Width: cfg.Geometry.ScreenshotSize[0], Height: cfg.Geometry.ScreenshotSize[1]}

	runtime := CameraRuntime{
		CameraID:     cfg.CameraID,
		Capabilities: cfg.Capabilities,
		Zones:        make(map[string]detector.Polygon, len(cfg.Geometry.Zones)),
		Shelves:      make(map[string]detector.Polygon, len(cfg.Geometry.Shelves)),
		Queues:       make(map[string]detector.Polygon, len(cfg.Geometry.Queue)),
	}

	if len(cfg.Geometry.Entrance) == 2 {
		scaled := geometry.ScalePolygon(toPoints(cfg.Geometry.Entrance), from, nativeSize)
		runtime.HasEntrance = true
		runtime.EntranceLine = [2]geometry.Point{scaled[0], scaled[1]}
	}
	for id, poly := range cfg.Geometry.Zones {
		runtime.Zones[id] = geometry.ScalePolygon(toPoints(poly), from, nativeSize)
	}
	for id, poly := range cfg.Geometry.Shelves {
		runtime.Shelves[id] = geometry.ScalePolygon(toPoints(poly), from, nativeSize)
	}
	for id, poly := range cfg.Geometry.Queue {
		runtime.Queues[id] = geometry.ScalePolygon(toPoints(poly), from, nativeSize)
	}
	return runtime
}

func toPoints(raw []edgeconfig.Point) []geometry.Point {
	out := make([]geometry.Point, len(raw))
	for i, p := range raw {
		out[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return out
}
