// Package ingestion implements the cloud-facing wire endpoints edge
// collectors post to: bulk event upload and heartbeats. Every request is
// authenticated against an edge credential and scope-checked before
// anything is persisted.
package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/retailpulse/eventpipeline/internal/eventbus"
	"github.com/retailpulse/eventpipeline/internal/httpkit"
	"github.com/retailpulse/eventpipeline/internal/metrics"
	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
	"github.com/retailpulse/eventpipeline/internal/tenancy"
)

// authenticator is the slice of *tenancy.MetaStore the ingestion handlers
// depend on, narrowed so tests can substitute a fake credential store.
type authenticator interface {
	AuthenticateCredential(ctx context.Context, token string) (model.Scope, error)
}

// Service wires the ingestion handlers to their dependencies.
type Service struct {
	meta    authenticator
	events  store.Store
	bus     eventbus.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs an ingestion Service. m may be nil, in which case request
// and row-level instrumentation is skipped.
func New(meta *tenancy.MetaStore, events store.Store, bus eventbus.Bus, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meta: meta, events: events, bus: bus, logger: logger, metrics: m}
}

func (s *Service) countRequest(status string) {
	if s.metrics != nil {
		s.metrics.IngestRequests.WithLabelValues(status).Inc()
	}
}

// Router returns the mux.Router exposing /v1/events/bulk and
// /v1/ingest/heartbeat.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/events/bulk", s.handleBulk).Methods(http.MethodPost)
	r.HandleFunc("/v1/ingest/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	return r
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimPrefix(auth, prefix), true
}

type bulkRequestBody struct {
	Events []wireEvent `json:"events"`
}

type bulkResponseBody struct {
	Status     string `json:"status"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Total      int    `json:"total"`
}

// handleBulk implements POST /v1/events/bulk. Per-event insert errors
// (aside from scope violations, which reject the whole request) never
// abort the loop — a malformed event is dropped and counted separately
// from duplicates, which are expected and benign.
func (s *Service) handleBulk(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.countRequest("invalid_credential")
		httpkit.WriteError(w, tenancy.ErrInvalidCredential)
		return
	}
	cred, err := s.meta.AuthenticateCredential(r.Context(), token)
	if err != nil {
		s.countRequest("invalid_credential")
		httpkit.WriteError(w, err)
		return
	}

	var body bulkRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.countRequest("error")
		httpkit.WriteError(w, validationErr("handleBulk", "body", "", "malformed JSON: "+err.Error()))
		return
	}

	var toInsert []model.Event
	skipped := 0
	for _, raw := range body.Events {
		requested := model.Scope{OrgID: raw.OrgID, StoreID: raw.StoreID, CameraID: raw.CameraID}
		if err := tenancy.Enforce(cred, requested); err != nil {
			// A single out-of-scope event in the batch rejects the whole
			// request without partial ingest, per the authorization algebra.
			s.countRequest("scope_violation")
			httpkit.WriteError(w, err)
			return
		}
		event, err := toDomainEvent(raw)
		if err != nil {
			s.logger.Warn("dropping invalid event", "error", err, "event_id", raw.EventID)
			skipped++
			continue
		}
		toInsert = append(toInsert, event)
	}

	inserted, duplicates, err := s.events.InsertBulk(r.Context(), toInsert)
	if err != nil {
		s.countRequest("error")
		httpkit.WriteError(w, err)
		return
	}

	if s.bus != nil {
		for _, e := range toInsert {
			s.bus.Publish(r.Context(), e)
		}
	}

	if s.metrics != nil {
		s.metrics.IngestInserted.Add(float64(inserted))
		s.metrics.IngestDuplicates.Add(float64(duplicates))
		s.metrics.IngestSkipped.Add(float64(skipped))
	}
	s.countRequest("ok")

	httpkit.WriteJSON(w, http.StatusOK, bulkResponseBody{
		Status:     "ok",
		Inserted:   inserted,
		Duplicates: duplicates,
		Total:      len(body.Events),
	})
}

type heartbeatRequestBody struct {
	OrgID     string   `json:"org_id"`
	StoreID   string   `json:"store_id"`
	CameraIDs []string `json:"camera_ids"`
	Ts        string   `json:"ts"`
}

type heartbeatResponseBody struct {
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	CamerasCount int    `json:"cameras_count"`
}

// handleHeartbeat implements POST /v1/ingest/heartbeat.
func (s *Service) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.countRequest("invalid_credential")
		httpkit.WriteError(w, tenancy.ErrInvalidCredential)
		return
	}
	cred, err := s.meta.AuthenticateCredential(r.Context(), token)
	if err != nil {
		s.countRequest("invalid_credential")
		httpkit.WriteError(w, err)
		return
	}

	var body heartbeatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.countRequest("error")
		httpkit.WriteError(w, validationErr("handleHeartbeat", "body", "", "malformed JSON: "+err.Error()))
		return
	}

	if err := tenancy.Enforce(cred, model.Scope{OrgID: body.OrgID, StoreID: body.StoreID}); err != nil {
		s.countRequest("scope_violation")
		httpkit.WriteError(w, err)
		return
	}

	s.countRequest("ok")
	httpkit.WriteJSON(w, http.StatusOK, heartbeatResponseBody{
		Status:       "ok",
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		CamerasCount: len(body.CameraIDs),
	})
}
