// Package store persists the event log to Postgres: bulk inserts
// deduplicated on event_id, and reads filtered by store, type, camera and
// time window. Percentiles, z-scores and the entrance-camera filter are
// computed by internal/aggregation over those reads.
package store

// Schema is the DDL for the events table and its required indexes. It is
// not run automatically — migration tooling is out of scope — but is kept
// alongside the store it backs so the two never drift.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id          BIGSERIAL PRIMARY KEY,
	event_id    TEXT NOT NULL,
	org_id      TEXT NOT NULL,
	store_id    TEXT NOT NULL,
	camera_id   TEXT NOT NULL,
	person_key  TEXT,
	type        TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS events_event_id_uidx ON events (event_id);
CREATE INDEX IF NOT EXISTS events_store_ts_idx ON events (store_id, ts);
CREATE INDEX IF NOT EXISTS events_store_type_ts_idx ON events (store_id, type, ts);
CREATE INDEX IF NOT EXISTS events_store_camera_person_ts_idx ON events (store_id, camera_id, person_key, ts);
CREATE INDEX IF NOT EXISTS events_payload_gin_idx ON events USING GIN (payload);
`
