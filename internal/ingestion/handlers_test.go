package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/retailpulse/eventpipeline/internal/eventbus"
	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
	"github.com/retailpulse/eventpipeline/internal/tenancy"
)

// fakeAuthenticator is a test double for tenancy.MetaStore.AuthenticateCredential,
// keyed by bearer token so handler tests never touch Supabase.
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

func newTestService(scope model.Scope) (*Service, *store.Mem) {
	auth := &fakeAuthenticator{scopes: map[string]model.Scope{"valid-token": scope}}
	mem := store.NewMem()
	bus := eventbus.NewInMemory()
	return &Service{meta: auth, events: mem, bus: bus}, mem
}

func postJSON(svc *Service, path string, body any, token string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

func entranceWireEvent(eventID, orgID, storeID, cameraID string) wireEvent {
	return wireEvent{
		EventID:  eventID,
		OrgID:    orgID,
		StoreID:  storeID,
		CameraID: cameraID,
		Type:     string(model.EventEntrance),
		Ts:       time.Now().UTC().Format(time.RFC3339Nano),
		Payload:  map[string]any{"direction": "in"},
	}
}

func TestHandleBulkInsertsAndDedupesIdempotently(t *testing.T) {
	scope := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	svc, mem := newTestService(scope)

	body := bulkRequestBody{Events: []wireEvent{
		entranceWireEvent("evt-1", "org-1", "store-1", "cam-1"),
	}}

	rec := postJSON(svc, "/v1/events/bulk", body, "valid-token")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp bulkResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Inserted)
	require.Equal(t, 0, resp.Duplicates)
	require.Equal(t, 1, mem.Len())

	// Re-post the identical event: the second attempt must be a no-op dedup,
	// not a second row.
	rec2 := postJSON(svc, "/v1/events/bulk", body, "valid-token")
	require.Equal(t, http.StatusOK, rec2.Code)
	var resp2 bulkResponseBody
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp2))
	require.Equal(t, 0, resp2.Inserted)
	require.Equal(t, 1, resp2.Duplicates)
	require.Equal(t, 1, mem.Len())
}

func TestHandleBulkRejectsOutOfScopeEventWithoutPartialInsert(t *testing.T) {
	scope := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	svc, mem := newTestService(scope)

	body := bulkRequestBody{Events: []wireEvent{
		entranceWireEvent("evt-1", "org-1", "store-1", "cam-1"),
		entranceWireEvent("evt-2", "org-1", "store-OTHER", "cam-1"),
	}}

	rec := postJSON(svc, "/v1/events/bulk", body, "valid-token")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 0, mem.Len(), "no event should be inserted when any event in the batch is out of scope")
}

func TestHandleBulkSkipsInvalidEventWithoutAbortingBatch(t *testing.T) {
	scope := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	svc, mem := newTestService(scope)

	invalid := entranceWireEvent("evt-bad", "org-1", "store-1", "cam-1")
	invalid.Payload = map[string]any{"direction": "sideways"}

	body := bulkRequestBody{Events: []wireEvent{
		entranceWireEvent("evt-good", "org-1", "store-1", "cam-1"),
		invalid,
	}}

	rec := postJSON(svc, "/v1/events/bulk", body, "valid-token")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp bulkResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Inserted)
	require.Equal(t, 2, resp.Total)
	require.Equal(t, 1, mem.Len())
}

func TestHandleBulkRejectsInvalidCredential(t *testing.T) {
	scope := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	svc, _ := newTestService(scope)

	body := bulkRequestBody{Events: []wireEvent{entranceWireEvent("evt-1", "org-1", "store-1", "cam-1")}}
	rec := postJSON(svc, "/v1/events/bulk", body, "not-a-real-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleHeartbeatReturnsCameraCount(t *testing.T) {
	scope := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	svc, _ := newTestService(scope)

	body := heartbeatRequestBody{OrgID: "org-1", StoreID: "store-1", CameraIDs: []string{"cam-1", "cam-2"}}
	rec := postJSON(svc, "/v1/ingest/heartbeat", body, "valid-token")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp heartbeatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.CamerasCount)
}
