// Package queryapi exposes the read-only analytics endpoints dashboards
// and reporting tools poll: footfall, zone metrics, queue waits, the
// live snapshot, peak hour, promo uplift, and spike detection. Every
// handler is a thin adapter — parameter parsing and response shaping only
// — over internal/aggregation, with an optional internal/cache layer in
// front of the expensive ones.
package queryapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/retailpulse/eventpipeline/internal/aggregation"
	"github.com/retailpulse/eventpipeline/internal/cache"
	"github.com/retailpulse/eventpipeline/internal/httpkit"
	"github.com/retailpulse/eventpipeline/internal/metrics"
	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
	"github.com/retailpulse/eventpipeline/internal/tenancy"
)

// authenticator is the slice of *tenancy.MetaStore the query API depends
// on, narrowed so tests can substitute a fake session store.
type authenticator interface {
	AuthenticateCredential(ctx context.Context, token string) (model.Scope, error)
}

// memoizer is the slice of *cache.Cache the query API depends on. A nil
// memoizer disables caching without any caller-side branching.
type memoizer interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, v any)
}

// Service wires the analytics read endpoints to the aggregation engine.
type Service struct {
	meta    authenticator
	engine  *aggregation.Engine
	cache   memoizer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a query API Service. cache and m may both be nil.
func New(meta *tenancy.MetaStore, engine *aggregation.Engine, c *cache.Cache, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	var memo memoizer
	if c != nil {
		memo = c
	}
	return &Service{meta: meta, engine: engine, cache: memo, logger: logger, metrics: m}
}

// Router returns the mux.Router exposing the seven /api/analytics/* routes.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	sub := r.PathPrefix("/api/analytics").Subrouter()
	sub.HandleFunc("/footfall", s.handleFootfall).Methods(http.MethodGet)
	sub.HandleFunc("/zones", s.handleZones).Methods(http.MethodGet)
	sub.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
	sub.HandleFunc("/peak_hour", s.handlePeakHour).Methods(http.MethodGet)
	sub.HandleFunc("/live", s.handleLive).Methods(http.MethodGet)
	sub.HandleFunc("/promo", s.handlePromo).Methods(http.MethodGet)
	sub.HandleFunc("/spikes", s.handleSpikes).Methods(http.MethodGet)
	return r
}

// scopedRequest holds the authenticated + scope-checked parameters common
// to every analytics endpoint.
type scopedRequest struct {
	storeID string
	from    time.Time
	to      time.Time
}

// authenticate extracts the bearer token, authenticates it, reads store_id
// from the query string, and enforces that it falls within the
// credential's scope. from/to are parsed and validated only when
// requireRange is true; otherwise they are left zero.
func (s *Service) authenticate(w http.ResponseWriter, r *http.Request, requireRange bool) (scopedRequest, bool) {
	token, ok := bearerToken(r)
	if !ok {
		httpkit.WriteError(w, tenancy.ErrInvalidCredential)
		return scopedRequest{}, false
	}
	cred, err := s.meta.AuthenticateCredential(r.Context(), token)
	if err != nil {
		httpkit.WriteError(w, err)
		return scopedRequest{}, false
	}

	storeID := r.URL.Query().Get("store_id")
	if storeID == "" {
		httpkit.WriteError(w, validationErr("store_id", "", "required"))
		return scopedRequest{}, false
	}
	requested := model.Scope{OrgID: cred.OrgID, StoreID: storeID}
	if err := tenancy.Enforce(cred, requested); err != nil {
		httpkit.WriteError(w, err)
		return scopedRequest{}, false
	}

	out := scopedRequest{storeID: storeID}
	if !requireRange {
		return out, true
	}

	from, err := parseTime(r, "from")
	if err != nil {
		httpkit.WriteError(w, err)
		return scopedRequest{}, false
	}
	to, err := parseTime(r, "to")
	if err != nil {
		httpkit.WriteError(w, err)
		return scopedRequest{}, false
	}
	if !to.After(from) {
		httpkit.WriteError(w, validationErr("to", r.URL.Query().Get("to"), "must be after from"))
		return scopedRequest{}, false
	}
	out.from, out.to = from, to
	return out, true
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return "", false
	}
	return auth[len(prefix):], true
}

func parseTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, validationErr(key, raw, "required")
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, validationErr(key, raw, "not a valid ISO-8601 timestamp")
	}
	return ts, nil
}

func parseBucket(r *http.Request) (aggregation.Bucket, error) {
	raw := r.URL.Query().Get("bucket")
	switch raw {
	case "", string(aggregation.BucketHour):
		return aggregation.BucketHour, nil
	case string(aggregation.BucketDay):
		return aggregation.BucketDay, nil
	default:
		return "", validationErr("bucket", raw, `must be "hour" or "day"`)
	}
}

func validationErr(field, value, reason string) error {
	return &store.ValidationError{
		Error: store.Error{Op: "queryapi", Err: errString(reason)},
		Field: field,
		Value: value,
	}
}

type errString string

func (e errString) Error() string { return string(e) }

// instrument times fn under the named query and records the latency
// against metrics.AggregationQueryDuration when metrics are configured.
func (s *Service) instrument(query string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.AggregationQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}
	return err
}

// cached first checks the memoizer (a no-op when caching is disabled),
// else computes compute, stores it, and returns it.
func cached[T any](s *Service, ctx context.Context, key string, compute func() (T, error)) (T, error) {
	var result T
	if s.cache != nil && s.cache.Get(ctx, key, &result) {
		return result, nil
	}
	result, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, result)
	}
	return result, nil
}

func (s *Service) handleFootfall(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.authenticate(w, r, true)
	if !ok {
		return
	}
	bucket, err := parseBucket(r)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	key := cache.Key(sr.storeID, "footfall", sr.from, sr.to, string(bucket))
	var result []aggregation.BucketCount
	err = s.instrument("footfall", func() error {
		result, err = cached(s, r.Context(), key, func() ([]aggregation.BucketCount, error) {
			return s.engine.Footfall(r.Context(), sr.storeID, sr.from, sr.to, bucket, time.UTC)
		})
		return err
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, result)
}

func (s *Service) handleZones(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.authenticate(w, r, true)
	if !ok {
		return
	}
	key := cache.Key(sr.storeID, "zones", sr.from, sr.to, "")
	var result []aggregation.ZoneMetric
	var err error
	err = s.instrument("zones", func() error {
		result, err = cached(s, r.Context(), key, func() ([]aggregation.ZoneMetric, error) {
			return s.engine.ZoneMetrics(r.Context(), sr.storeID, sr.from, sr.to)
		})
		return err
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, result)
}

func (s *Service) handleQueue(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.authenticate(w, r, true)
	if !ok {
		return
	}
	key := cache.Key(sr.storeID, "queue", sr.from, sr.to, "")
	var result aggregation.QueueMetric
	var err error
	err = s.instrument("queue", func() error {
		result, err = cached(s, r.Context(), key, func() (aggregation.QueueMetric, error) {
			return s.engine.QueueMetrics(r.Context(), sr.storeID, sr.from, sr.to)
		})
		return err
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, result)
}

func (s *Service) handlePeakHour(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.authenticate(w, r, true)
	if !ok {
		return
	}
	var result aggregation.BucketCount
	var found bool
	var err error
	err = s.instrument("peak_hour", func() error {
		result, found, err = s.engine.PeakHour(r.Context(), sr.storeID, sr.from, sr.to, time.UTC)
		return err
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	if !found {
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{"found": false})
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"found": true, "bucket": result.Bucket, "count": result.Count})
}

func (s *Service) handleLive(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.authenticate(w, r, false)
	if !ok {
		return
	}
	windowSeconds := aggregation.DefaultWindowSeconds
	if raw := r.URL.Query().Get("window_sec"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpkit.WriteError(w, validationErr("window_sec", raw, "must be a positive integer"))
			return
		}
		windowSeconds = n
	}

	var result aggregation.Snapshot
	var err error
	err = s.instrument("live", func() error {
		result, err = s.engine.LiveSnapshot(r.Context(), sr.storeID, windowSeconds, time.Now().UTC())
		return err
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, result)
}

func (s *Service) handlePromo(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.authenticate(w, r, true)
	if !ok {
		return
	}
	metric, err := parseUpliftMetric(r)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	baselineDays := aggregation.DefaultBaselineDays
	if raw := r.URL.Query().Get("baseline_days"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			httpkit.WriteError(w, validationErr("baseline_days", raw, "must be a positive integer"))
			return
		}
		baselineDays = n
	}

	var result aggregation.UpliftResult
	err = s.instrument("promo", func() error {
		result, err = s.engine.PromoUplift(r.Context(), sr.storeID, metric, sr.from, sr.to, baselineDays)
		return err
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, result)
}

func (s *Service) handleSpikes(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.authenticate(w, r, true)
	if !ok {
		return
	}
	metric, err := parseSpikeMetric(r)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	bucket, err := parseBucket(r)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	thresholdZ := aggregation.DefaultSpikeThresholdZ
	if raw := r.URL.Query().Get("threshold_z"); raw != "" {
		v, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil || v <= 0 {
			httpkit.WriteError(w, validationErr("threshold_z", raw, "must be a positive number"))
			return
		}
		thresholdZ = v
	}

	var result []aggregation.Spike
	err = s.instrument("spikes", func() error {
		result, err = s.engine.DetectSpikes(r.Context(), sr.storeID, metric, sr.from, sr.to, bucket, thresholdZ, time.UTC)
		return err
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, result)
}

func parseUpliftMetric(r *http.Request) (aggregation.UpliftMetric, error) {
	raw := r.URL.Query().Get("metric")
	switch aggregation.UpliftMetric(raw) {
	case aggregation.UpliftFootfall, aggregation.UpliftInteractions, aggregation.UpliftZoneDwellAvg:
		return aggregation.UpliftMetric(raw), nil
	default:
		return "", validationErr("metric", raw, `must be "footfall", "interactions", or "zone_dwell_avg"`)
	}
}

func parseSpikeMetric(r *http.Request) (aggregation.SpikeMetric, error) {
	raw := r.URL.Query().Get("metric")
	switch aggregation.SpikeMetric(raw) {
	case aggregation.SpikeFootfall, aggregation.SpikeInteractions:
		return aggregation.SpikeMetric(raw), nil
	default:
		return "", validationErr("metric", raw, `must be "footfall" or "interactions"`)
	}
}
