// Package alerting notifies operators of the persistent-error conditions
// spec.md §7 says must surface beyond logs: a camera missing its
// heartbeat, a revoked credential still being used, and a spool that has
// grown past a safe size. Delivery is an in-memory worker pool by default,
// with an optional Cloud Tasks backing for durable cross-instance delivery.
package alerting

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies why an alert fired.
type Kind string

const (
	KindHeartbeatMissed Kind = "camera.heartbeat_missed"
	KindCredentialAbuse Kind = "credential.revoked_but_used"
	KindSpoolOverflow   Kind = "edge.spool_overflow"
)

// Subscription is an operator's registered alert endpoint for one org.
type Subscription struct {
	ID        string
	OrgID     string
	URL       string
	Secret    string
	Active    bool
	CreatedAt time.Time
	FailCount int
}

// Alert is the payload delivered to a subscription's URL.
type Alert struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	OrgID     string         `json:"org_id"`
	StoreID   string         `json:"store_id"`
	CameraID  string         `json:"camera_id,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Registry tracks which operator endpoints want which orgs' alerts.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Subscription
	byOrg map[string][]*Subscription
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Subscription),
		byOrg: make(map[string][]*Subscription),
	}
}

// Register adds a subscription for orgID's alerts.
func (r *Registry) Register(orgID, url, secret string) (*Subscription, error) {
	if url == "" {
		return nil, fmt.Errorf("alerting: subscription url is required")
	}
	sub := &Subscription{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		URL:       url,
		Secret:    secret,
		Active:    true,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sub.ID] = sub
	r.byOrg[orgID] = append(r.byOrg[orgID], sub)
	return sub, nil
}

// Unregister removes a subscription.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	filtered := r.byOrg[sub.OrgID][:0]
	for _, s := range r.byOrg[sub.OrgID] {
		if s.ID != id {
			filtered = append(filtered, s)
		}
	}
	r.byOrg[sub.OrgID] = filtered
}

// SubscribersFor returns the active subscriptions for orgID.
func (r *Registry) SubscribersFor(orgID string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*Subscription
	for _, s := range r.byOrg[orgID] {
		if s.Active {
			active = append(active, s)
		}
	}
	return active
}

// MarkFailed increments a subscription's failure count and deactivates it
// once 10 failures have accumulated; the count is never reset.
func (r *Registry) MarkFailed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[id]
	if !ok {
		return
	}
	sub.FailCount++
	if sub.FailCount >= 10 {
		sub.Active = false
	}
}

// SignPayload returns the HMAC-SHA256 signature subscribers can use to
// verify an alert's authenticity.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
