package queryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/retailpulse/eventpipeline/internal/aggregation"
	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
	"github.com/retailpulse/eventpipeline/internal/tenancy"
)

type fakeAuthenticator struct {
	scopes map[string]model.Scope
}

func (f *fakeAuthenticator) AuthenticateCredential(ctx context.Context, token string) (model.Scope, error) {
	scope, ok := f.scopes[token]
	if !ok {
		return model.Scope{}, tenancy.ErrInvalidCredential
	}
	return scope, nil
}

type fixedEntranceLister struct {
	cameraIDs []string
}

func (f fixedEntranceLister) ListEntranceCameraIDs(ctx context.Context, storeID string) ([]string, error) {
	return f.cameraIDs, nil
}

func newTestService(t *testing.T, scope model.Scope, events []model.Event) *Service {
	t.Helper()
	mem := store.NewMem()
	_, _, err := mem.InsertBulk(context.Background(), events)
	require.NoError(t, err)

	engine := aggregation.New(mem, fixedEntranceLister{cameraIDs: []string{"cam-1"}}, nil)
	auth := &fakeAuthenticator{scopes: map[string]model.Scope{"valid-token": scope}}
	return &Service{meta: auth, engine: engine, logger: nil}
}

func getQuery(svc *Service, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

func entranceEvt(id, storeID, cameraID string, ts time.Time) model.Event {
	return model.Event{
		EventID: id, OrgID: "org-1", StoreID: storeID, CameraID: cameraID,
		Type: model.EventEntrance, Ts: ts,
		Payload: map[string]any{"direction": "in", "person_id": "p-" + id},
	}
}

func TestHandleFootfallReturnsScopedCounts(t *testing.T) {
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	events := []model.Event{
		entranceEvt("evt-1", "store-1", "cam-1", base),
		entranceEvt("evt-2", "store-1", "cam-1", base.Add(time.Minute)),
	}
	svc := newTestService(t, model.Scope{OrgID: "org-1", StoreID: "store-1"}, events)

	path := "/api/analytics/footfall?store_id=store-1&bucket=day&from=" +
		base.Add(-time.Hour).Format(time.RFC3339) + "&to=" + base.Add(time.Hour).Format(time.RFC3339)
	rec := getQuery(svc, path, "valid-token")
	require.Equal(t, http.StatusOK, rec.Code)

	var counts []aggregation.BucketCount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	require.Len(t, counts, 1)
	require.Equal(t, 2, counts[0].Count)
}

func TestHandleFootfallRejectsOutOfScopeStore(t *testing.T) {
	svc := newTestService(t, model.Scope{OrgID: "org-1", StoreID: "store-1"}, nil)

	path := "/api/analytics/footfall?store_id=store-OTHER&from=2026-06-01T00:00:00Z&to=2026-06-02T00:00:00Z"
	rec := getQuery(svc, path, "valid-token")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleFootfallRejectsMissingCredential(t *testing.T) {
	svc := newTestService(t, model.Scope{OrgID: "org-1", StoreID: "store-1"}, nil)

	path := "/api/analytics/footfall?store_id=store-1&from=2026-06-01T00:00:00Z&to=2026-06-02T00:00:00Z"
	rec := getQuery(svc, path, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleFootfallRejectsInvalidBucket(t *testing.T) {
	svc := newTestService(t, model.Scope{OrgID: "org-1", StoreID: "store-1"}, nil)

	path := "/api/analytics/footfall?store_id=store-1&bucket=week&from=2026-06-01T00:00:00Z&to=2026-06-02T00:00:00Z"
	rec := getQuery(svc, path, "valid-token")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFootfallRejectsMalformedTimestamp(t *testing.T) {
	svc := newTestService(t, model.Scope{OrgID: "org-1", StoreID: "store-1"}, nil)

	path := "/api/analytics/footfall?store_id=store-1&from=not-a-time&to=2026-06-02T00:00:00Z"
	rec := getQuery(svc, path, "valid-token")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLiveDefaultsWindowAndSkipsRangeValidation(t *testing.T) {
	base := time.Now().UTC()
	events := []model.Event{entranceEvt("evt-1", "store-1", "cam-1", base)}
	svc := newTestService(t, model.Scope{OrgID: "org-1", StoreID: "store-1"}, events)

	rec := getQuery(svc, "/api/analytics/live?store_id=store-1", "valid-token")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap aggregation.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, aggregation.DefaultWindowSeconds, snap.WindowSeconds)
	require.Equal(t, 1, snap.Footfall)
}

func TestHandleSpikesRejectsUnknownMetric(t *testing.T) {
	svc := newTestService(t, model.Scope{OrgID: "org-1", StoreID: "store-1"}, nil)

	path := "/api/analytics/spikes?store_id=store-1&metric=bogus&from=2026-06-01T00:00:00Z&to=2026-06-02T00:00:00Z"
	rec := getQuery(svc, path, "valid-token")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePromoRejectsUnknownMetric(t *testing.T) {
	svc := newTestService(t, model.Scope{OrgID: "org-1", StoreID: "store-1"}, nil)

	path := "/api/analytics/promo?store_id=store-1&metric=bogus&from=2026-06-01T00:00:00Z&to=2026-06-02T00:00:00Z"
	rec := getQuery(svc, path, "valid-token")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
