// Package pipeline implements the edge outbound path: a bounded in-memory
// channel feeding a batching dispatcher that POSTs to the cloud ingestion
// endpoint, with exponential-backoff retry and an append-only disk spool
// for batches that exhaust their retries.
package pipeline

import (
	"encoding/json"
	"time"
)

// QueueCapacity is the minimum size of the bounded producer→dispatcher
// channel. Producers block on a full channel rather than drop events —
// dropping would silently under-count footfall.
const QueueCapacity = 10000

// WirePayload is exactly the JSON object the cloud ingestion endpoint
// expects inside events[], and exactly what one spool line contains.
type WirePayload struct {
	EventID  string         `json:"event_id"`
	OrgID    string         `json:"org_id"`
	StoreID  string         `json:"store_id"`
	CameraID string         `json:"camera_id"`
	Type     string         `json:"type"`
	Ts       string         `json:"ts"`
	Payload  map[string]any `json:"payload"`
}

// MarshalLine renders the payload as a single spool line (no trailing
// newline — callers append one).
func (w WirePayload) MarshalLine() ([]byte, error) {
	return json.Marshal(w)
}

// bulkRequest is the body of POST /v1/events/bulk.
type bulkRequest struct {
	Events []WirePayload `json:"events"`
}

// bulkResponse is the cloud's response to a bulk ingest.
type bulkResponse struct {
	Status     string `json:"status"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Total      int    `json:"total"`
}

// RetryPolicy bounds how the dispatcher retries a failed batch post before
// falling back to the spool.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Backoff    float64
	Max        time.Duration
}

// DefaultRetryPolicy matches the wire contract's documented defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 6,
		Base:       500 * time.Millisecond,
		Backoff:    1.5,
		Max:        60 * time.Second,
	}
}

// delay returns the backoff delay before retry attempt n (1-indexed).
func (p RetryPolicy) delay(n int) time.Duration {
	d := float64(p.Base)
	for i := 1; i < n; i++ {
		d *= p.Backoff
	}
	if time.Duration(d) > p.Max {
		return p.Max
	}
	return time.Duration(d)
}
