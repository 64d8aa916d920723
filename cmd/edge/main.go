// Command edge runs the on-premise collector process: one worker per
// configured camera, a batching/dispatch pipeline to the cloud ingestion
// endpoint, a disk-backed spool for offline buffering, and a heartbeat
// loop. The per-camera tracker is a black box — this binary wires in a
// no-op placeholder until a real detector is plugged in via
// edge.TrackerFactory.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retailpulse/eventpipeline/internal/detector"
	"github.com/retailpulse/eventpipeline/internal/edge"
	"github.com/retailpulse/eventpipeline/internal/edgeconfig"
	"github.com/retailpulse/eventpipeline/internal/geometry"
	"github.com/retailpulse/eventpipeline/internal/metrics"
	"github.com/retailpulse/eventpipeline/internal/pipeline"
)

func main() {
	cfg := edgeconfig.Get()

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	m := metrics.New()

	spool, err := pipeline.NewSpool(cfg.BufferDir)
	if err != nil {
		log.Fatalf("edge: spool init failed: %v", err)
	}

	retry := pipeline.RetryPolicy{
		MaxRetries: 6,
		Base:       time.Duration(cfg.BackoffBase * float64(time.Second)),
		Backoff:    1.5,
		Max:        time.Duration(cfg.BackoffMax * float64(time.Second)),
	}
	dispatcher := pipeline.NewDispatcher(cfg.APIBase, cfg.APIKey, retry, spool, logger, m)
	pl := pipeline.New(pipeline.Config{MaxBatch: cfg.MaxBatch, BatchSeconds: cfg.BatchSeconds, Retry: retry}, dispatcher, logger, m)

	supervisor := edge.New(cfg, pl, noopTrackerFactory, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debugMux := http.NewServeMux()
	debugMux.Handle("/metrics", promhttp.Handler())
	debugSrv := &http.Server{Addr: ":" + strconv.Itoa(cfg.DebugPort), Handler: debugMux}
	go func() {
		if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("edge: debug listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = debugSrv.Shutdown(shutdownCtx)
	}()

	go pl.Run(ctx)

	nativeSize := geometry.Size{Width: getEnvInt("FRAME_WIDTH", 1920), Height: getEnvInt("FRAME_HEIGHT", 1080)}
	logger.Info("edge collector starting", "org_id", cfg.OrgID, "store_id", cfg.StoreID, "cameras", len(cfg.Cameras))
	supervisor.Run(ctx, nativeSize)

	pl.Wait()
	logger.Info("edge collector stopped")
}

// noopTrackerFactory is the default placeholder tracker: it blocks until
// the worker's context is cancelled and never yields a detection. The
// real tracker is an external black box; swapping this factory for one
// backed by an actual model is the only change needed to go live.
func noopTrackerFactory(cam edgeconfig.CameraConfig) (edge.Tracker, error) {
	return noopTracker{}, nil
}

type noopTracker struct{}

func (noopTracker) NextFrame(ctx context.Context) ([]detector.Detection, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
