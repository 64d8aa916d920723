// Package model holds the entity types shared across the edge collector,
// ingestion service, and aggregation engine: organizations, stores,
// cameras, edge credentials, and the event envelope itself.
package model

import "time"

// Capability is one of the per-camera state machines the capability
// detector may run.
type Capability string

const (
	CapabilityEntrance Capability = "entrance"
	CapabilityZones    Capability = "zones"
	CapabilityShelves  Capability = "shelves"
	CapabilityQueue    Capability = "queue"
)

// EventType identifies the tagged-sum variant of an Event's payload.
type EventType string

const (
	EventEntrance         EventType = "entrance"
	EventZoneDwell        EventType = "zone_dwell"
	EventShelfInteraction EventType = "shelf_interaction"
	EventQueuePresence    EventType = "queue_presence"
)

// Org is the tenancy root. Stores belong to exactly one Org.
type Org struct {
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
}

// Store belongs to exactly one Org and carries the timezone used to bucket
// aggregation results into local days/hours.
type Store struct {
	StoreID  string `json:"store_id"`
	OrgID    string `json:"org_id"`
	Timezone string `json:"timezone"`
}

// Polygon is a closed region in screenshot-reference pixel coordinates,
// keyed by its logical id (zone/shelf/queue) at the Geometry level.
type Polygon = []Point

// Point mirrors geometry.Point at the wire/storage boundary so this package
// does not need to import internal/geometry for simple JSON shapes.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Geometry carries a camera's reference screenshot size plus the polygons
// and entrance line an operator drew against it.
type Geometry struct {
	ScreenshotSize Size                `json:"screenshot_size"`
	Entrance       []Point             `json:"entrance,omitempty"` // exactly 2 points when present
	Zones          map[string]Polygon  `json:"zones,omitempty"`
	Shelves        map[string]Polygon  `json:"shelves,omitempty"`
	Queues         map[string]Polygon  `json:"queue,omitempty"`
}

// Size is a frame width/height in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Camera belongs to exactly one Store. IsEntrance is the only signal that
// this camera's entrance events count toward footfall.
type Camera struct {
	CameraID     string       `json:"camera_id"`
	StoreID      string       `json:"store_id"`
	IsEntrance   bool         `json:"is_entrance"`
	Capabilities []Capability `json:"capabilities"`
	Geometry     Geometry     `json:"geometry"`
}

// HasCapability reports whether cap is enabled for this camera.
func (c Camera) HasCapability(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// EdgeCredential scopes an incoming ingestion request to (org, store
// [, camera]). A zero-value CameraID means the credential is store-scoped.
type EdgeCredential struct {
	KeyID      string     `json:"key_id"`
	OrgID      string     `json:"org_id"`
	StoreID    string     `json:"store_id"`
	CameraID   string     `json:"camera_id,omitempty"`
	Active     bool       `json:"active"`
	SecretHash string     `json:"-"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Scope is the first-class authorization boundary every ingestion write
// and every aggregation read must be checked against. See
// internal/tenancy for the single enforcement function.
type Scope struct {
	OrgID    string
	StoreID  string
	CameraID string // empty when the credential is not camera-scoped
}

// EntrancePayload is the payload for EventEntrance.
type EntrancePayload struct {
	Direction string `json:"direction"` // "in" | "out"
	PersonID  string `json:"person_id"`
}

// ZoneDwellPayload is the payload for EventZoneDwell.
type ZoneDwellPayload struct {
	LogicalZone  string  `json:"logical_zone"`
	DwellSeconds float64 `json:"dwell_seconds"`
	PersonID     string  `json:"person_id"`
}

// ShelfInteractionPayload is the payload for EventShelfInteraction.
type ShelfInteractionPayload struct {
	LogicalShelf string  `json:"logical_shelf"`
	Action       string  `json:"action"` // always "touch" today
	DwellSeconds float64 `json:"dwell_seconds"`
	PersonID     string  `json:"person_id"`
}

// QueuePresencePayload is the payload for EventQueuePresence.
type QueuePresencePayload struct {
	Queue       string  `json:"queue"`
	WaitSeconds float64 `json:"wait_seconds"`
	PersonID    string  `json:"person_id"`
}

// Event is the wire and storage envelope for a single semantic observation.
// Payload is left as raw JSON on the wire so the ingestion boundary can
// validate it against the variant named by Type before persisting.
type Event struct {
	EventID   string          `json:"event_id"`
	OrgID     string          `json:"org_id"`
	StoreID   string          `json:"store_id"`
	CameraID  string          `json:"camera_id"`
	PersonKey string          `json:"person_key,omitempty"`
	Type      EventType       `json:"type"`
	Ts        time.Time       `json:"ts"`
	Payload   map[string]any  `json:"payload"`
	CreatedAt time.Time       `json:"-"`
}
