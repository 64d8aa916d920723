package ingestion

import (
	"fmt"
	"time"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/store"
)

// wireEvent is the JSON shape of one entry in events[] on the wire.
type wireEvent struct {
	EventID  string         `json:"event_id"`
	OrgID    string         `json:"org_id"`
	StoreID  string         `json:"store_id"`
	CameraID string         `json:"camera_id"`
	Type     string         `json:"type"`
	Ts       string         `json:"ts"`
	Payload  map[string]any `json:"payload"`
}

var validTypes = map[string]bool{
	string(model.EventEntrance):         true,
	string(model.EventZoneDwell):        true,
	string(model.EventShelfInteraction): true,
	string(model.EventQueuePresence):    true,
}

// toDomainEvent validates one wire event and converts it to model.Event.
// Validation failures are reported as *store.ValidationError so handlers
// can map them to 400 uniformly.
func toDomainEvent(w wireEvent) (model.Event, error) {
	const op = "toDomainEvent"

	if w.EventID == "" {
		return model.Event{}, validationErr(op, "event_id", w.EventID, "must not be empty")
	}
	if w.OrgID == "" {
		return model.Event{}, validationErr(op, "org_id", w.OrgID, "must not be empty")
	}
	if w.StoreID == "" {
		return model.Event{}, validationErr(op, "store_id", w.StoreID, "must not be empty")
	}
	if w.CameraID == "" {
		return model.Event{}, validationErr(op, "camera_id", w.CameraID, "must not be empty")
	}
	if !validTypes[w.Type] {
		return model.Event{}, validationErr(op, "type", w.Type, "unknown event type")
	}

	ts, err := time.Parse(time.RFC3339Nano, w.Ts)
	if err != nil {
		return model.Event{}, validationErr(op, "ts", w.Ts, "not a valid ISO-8601 timestamp: "+err.Error())
	}

	if err := validatePayload(model.EventType(w.Type), w.Payload); err != nil {
		return model.Event{}, err
	}

	personKey, _ := w.Payload["person_id"].(string)

	return model.Event{
		EventID:   w.EventID,
		OrgID:     w.OrgID,
		StoreID:   w.StoreID,
		CameraID:  w.CameraID,
		PersonKey: personKey,
		Type:      model.EventType(w.Type),
		Ts:        ts,
		Payload:   w.Payload,
	}, nil
}

// validatePayload checks the tagged-sum schema from spec.md §3 per type.
func validatePayload(eventType model.EventType, payload map[string]any) error {
	const op = "validatePayload"

	switch eventType {
	case model.EventEntrance:
		dir, _ := payload["direction"].(string)
		if dir != "in" && dir != "out" {
			return validationErr(op, "payload.direction", dir, `must be "in" or "out"`)
		}
	case model.EventZoneDwell:
		if _, ok := payload["logical_zone"].(string); !ok {
			return validationErr(op, "payload.logical_zone", "", "required string field")
		}
		if err := requirePositiveDwell(op, payload); err != nil {
			return err
		}
	case model.EventShelfInteraction:
		if _, ok := payload["logical_shelf"].(string); !ok {
			return validationErr(op, "payload.logical_shelf", "", "required string field")
		}
		if action, _ := payload["action"].(string); action != "touch" {
			return validationErr(op, "payload.action", action, `must be "touch"`)
		}
		if err := requirePositiveDwell(op, payload); err != nil {
			return err
		}
	case model.EventQueuePresence:
		if _, ok := payload["queue"].(string); !ok {
			return validationErr(op, "payload.queue", "", "required string field")
		}
		wait, ok := payload["wait_seconds"].(float64)
		if !ok || wait < 0 {
			return validationErr(op, "payload.wait_seconds", "", "required non-negative number")
		}
	}
	return nil
}

func requirePositiveDwell(op string, payload map[string]any) error {
	dwell, ok := payload["dwell_seconds"].(float64)
	if !ok || dwell < 4.0 {
		return validationErr(op, "payload.dwell_seconds", fmt.Sprintf("%v", payload["dwell_seconds"]), "must be >= 4.0")
	}
	return nil
}

func validationErr(op, field, value, reason string) error {
	return &store.ValidationError{
		Error: store.Error{Op: op, Err: fmt.Errorf("%s", reason)},
		Field: field,
		Value: value,
	}
}
