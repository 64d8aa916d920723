// Command server runs the cloud side of the pipeline: authenticated bulk
// event ingestion, the analytics query API, and the live dashboard
// WebSocket stream, backed by Postgres and a Supabase-held tenancy
// control plane. Redis caching and Cloud Tasks alert delivery are
// optional — both fall back gracefully when unconfigured, matching how
// this codebase treats every non-essential external dependency.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retailpulse/eventpipeline/internal/aggregation"
	"github.com/retailpulse/eventpipeline/internal/alerting"
	"github.com/retailpulse/eventpipeline/internal/cache"
	"github.com/retailpulse/eventpipeline/internal/eventbus"
	"github.com/retailpulse/eventpipeline/internal/ingestion"
	"github.com/retailpulse/eventpipeline/internal/live"
	"github.com/retailpulse/eventpipeline/internal/metrics"
	"github.com/retailpulse/eventpipeline/internal/queryapi"
	"github.com/retailpulse/eventpipeline/internal/serverconfig"
	"github.com/retailpulse/eventpipeline/internal/store"
	"github.com/retailpulse/eventpipeline/internal/tenancy"
)

func main() {
	cfg, err := serverconfig.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("server: config load failed: %v", err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		log.Fatalf("server: supabase_url and supabase_service_key are required")
	}
	meta, err := tenancy.NewMetaStore(cfg.SupabaseURL, cfg.SupabaseKey)
	if err != nil {
		log.Fatalf("server: tenancy store init failed: %v", err)
	}

	if cfg.DatabaseURL == "" {
		log.Fatalf("server: database_url is required")
	}
	events, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("server: postgres connection failed: %v", err)
	}
	defer events.Close()

	m := metrics.New()

	var bus eventbus.Bus
	if cfg.GCPProjectID != "" {
		pb, err := eventbus.NewPubSub(context.Background(), cfg.GCPProjectID, cfg.PubSubTopic, logger)
		if err != nil {
			logger.Warn("durable event bus disabled, pubsub init failed", "error", err)
			bus = eventbus.NewInMemory()
		} else {
			bus = pb
			defer pb.Close()
		}
	} else {
		bus = eventbus.NewInMemory()
	}

	var memo *cache.Cache
	if cfg.RedisAddr != "" {
		c, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, 0, cfg.CacheTTL)
		if err != nil {
			logger.Warn("cache disabled, redis connection failed", "addr", cfg.RedisAddr, "error", err)
		} else {
			memo = c
			defer c.Close()
		}
	}

	alertRegistry := alerting.NewRegistry()
	var dispatcher alerting.Dispatcher
	if cfg.GCPProjectID != "" {
		cd, err := alerting.NewCloudDispatcher(context.Background(), alertRegistry, cfg.GCPProjectID,
			cfg.CloudTasksRegion, cfg.CloudTasksQueue, cfg.AlertWorkers, logger)
		if err != nil {
			logger.Warn("cloud task alert dispatcher init failed, using in-memory worker pool", "error", err)
			dispatcher = alerting.NewWorkerPool(alertRegistry, cfg.AlertWorkers, logger)
		} else {
			dispatcher = cd
		}
	} else {
		dispatcher = alerting.NewWorkerPool(alertRegistry, cfg.AlertWorkers, logger)
	}
	defer dispatcher.Shutdown()

	ingestionSvc := ingestion.New(meta, events, bus, logger, m)
	engine := aggregation.New(events, meta, logger)
	querySvc := queryapi.New(meta, engine, memo, logger, m)
	hub := live.New(meta, bus, logger)

	router := mux.NewRouter()
	router.PathPrefix("/v1").Handler(ingestionSvc.Router())
	router.HandleFunc("/api/analytics/live/stream", hub.ServeWS).Methods(http.MethodGet)
	router.PathPrefix("/api/analytics").Handler(querySvc.Router())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		logger.Info("server: shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server: graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: listen failed: %v", err)
	}
	logger.Info("server stopped")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
