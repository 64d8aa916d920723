package store

import (
	"context"
	"testing"
	"time"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entranceEvent(id, cameraID string, ts time.Time) model.Event {
	return model.Event{
		EventID:  id,
		OrgID:    "org-1",
		StoreID:  "store-1",
		CameraID: cameraID,
		Type:     model.EventEntrance,
		Ts:       ts,
		Payload:  map[string]any{"direction": "in", "person_id": "p1"},
	}
}

func TestMemInsertBulkDedupsByEventID(t *testing.T) {
	m := NewMem()
	ts := time.Now().UTC()

	inserted, duplicates, err := m.InsertBulk(context.Background(), []model.Event{entranceEvent("abc", "cam-1", ts)})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 0, duplicates)

	inserted, duplicates, err = m.InsertBulk(context.Background(), []model.Event{entranceEvent("abc", "cam-1", ts)})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 1, duplicates)

	assert.Equal(t, 1, m.Len())
}

func TestMemQueryEventsFiltersByStoreTypeAndWindow(t *testing.T) {
	m := NewMem()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := m.InsertBulk(context.Background(), []model.Event{
		entranceEvent("e1", "camA", base),
		entranceEvent("e2", "camB", base.Add(time.Hour)),
		{EventID: "e3", StoreID: "store-2", Type: model.EventEntrance, Ts: base, Payload: map[string]any{}},
	})
	require.NoError(t, err)

	events, err := m.QueryEvents(context.Background(), Filter{
		StoreID: "store-1",
		Type:    model.EventEntrance,
		From:    base,
		To:      base.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	filtered, err := m.QueryEvents(context.Background(), Filter{
		StoreID:   "store-1",
		CameraIDs: []string{"camA"},
		Type:      model.EventEntrance,
		From:      base,
		To:        base.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "e1", filtered[0].EventID)
}

func TestMemQueryEventsExcludesOutOfWindow(t *testing.T) {
	m := NewMem()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := m.InsertBulk(context.Background(), []model.Event{entranceEvent("e1", "camA", base.Add(-time.Minute))})
	require.NoError(t, err)

	events, err := m.QueryEvents(context.Background(), Filter{StoreID: "store-1", From: base, To: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, events)
}
