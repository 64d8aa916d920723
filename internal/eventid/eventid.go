// Package eventid computes the deterministic event identity used for
// idempotent dedup across retries, spool replay, and concurrent ingestion.
package eventid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// TimeFormat is the canonical UTC ISO-8601 representation used both in the
// event_id hash input and in the outgoing wire payload's "ts" field. Every
// producer of an event_id MUST format timestamps this way or IDs for
// logically identical events will not match across retries.
const TimeFormat = time.RFC3339Nano

// Compute derives the globally unique event_id from its identity
// components. It is a pure function: identical inputs always produce the
// identical hash, which is what makes retries and replayed spool entries
// safe to re-insert — the store's unique index collapses duplicates.
//
// logicalKey is the direction for entrance events, the zone/shelf/queue id
// for the others, or "" when not applicable.
func Compute(cameraID, trackID string, ts time.Time, eventType, logicalKey string) string {
	tsISO := ts.UTC().Format(TimeFormat)
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{cameraID, trackID, tsISO, eventType, logicalKey}, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// FormatTimestamp renders ts the same way Compute does, for callers that
// need the exact string used as hash input (e.g. populating the wire
// payload's "ts" field alongside a freshly computed event_id).
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimeFormat)
}
