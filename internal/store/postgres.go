package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/retailpulse/eventpipeline/internal/model"
)

// uniqueViolationCode is Postgres's SQLSTATE for a unique-constraint
// violation; lib/pq surfaces it as this string on *pq.Error.Code.
const uniqueViolationCode = "23505"

// Filter scopes an event query. CameraIDs, when non-empty, restricts the
// scan to those cameras (used by footfall's mandatory is_entrance join).
type Filter struct {
	StoreID   string
	CameraIDs []string
	Type      model.EventType
	From      time.Time
	To        time.Time
}

// Store is the event log's read/write interface. Postgres is the
// production implementation; aggregation and ingestion tests use an
// in-memory fake (see memstore.go) implementing the same contract.
type Store interface {
	// InsertBulk attempts to insert every event, continuing past
	// unique-constraint violations rather than aborting the batch. Those
	// violations are counted as duplicates, never returned as errors.
	InsertBulk(ctx context.Context, events []model.Event) (inserted, duplicates int, err error)
	QueryEvents(ctx context.Context, filter Filter) ([]model.Event, error)
}

// Postgres is the lib/pq-backed Store implementation.
type Postgres struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection is live.
func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &Error{Op: "Open", Err: err}
	}
	if err := db.Ping(); err != nil {
		return nil, &Error{Op: "Open", Err: err}
	}
	return &Postgres{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// InsertBulk inserts events one at a time inside a single query each (not
// a transaction): per spec, batch-level atomicity is not required, only
// per-event durability, and a failed insert must never abort the rest of
// the batch. The first non-duplicate failure is returned after every event
// has been attempted.
func (p *Postgres) InsertBulk(ctx context.Context, events []model.Event) (inserted, duplicates int, err error) {
	const stmt = `
		INSERT INTO events (event_id, org_id, store_id, camera_id, person_key, type, ts, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`

	for _, e := range events {
		payload, mErr := json.Marshal(e.Payload)
		if mErr != nil {
			if err == nil {
				err = &Error{Op: "InsertBulk", Err: fmt.Errorf("marshal payload for %s: %w", e.EventID, mErr)}
			}
			continue
		}

		res, execErr := p.db.ExecContext(ctx, stmt,
			e.EventID, e.OrgID, e.StoreID, e.CameraID, nullableString(e.PersonKey), string(e.Type), e.Ts, payload)
		if execErr != nil {
			if isUniqueViolation(execErr) {
				duplicates++
				continue
			}
			if err == nil {
				err = &Error{Op: "InsertBulk", Err: fmt.Errorf("insert %s: %w", e.EventID, execErr)}
			}
			continue
		}

		rows, _ := res.RowsAffected()
		if rows == 0 {
			// ON CONFLICT DO NOTHING silently no-ops on a duplicate key
			// instead of raising a unique-violation error.
			duplicates++
		} else {
			inserted++
		}
	}
	return inserted, duplicates, err
}

// QueryEvents returns every event matching filter, ordered by ts.
func (p *Postgres) QueryEvents(ctx context.Context, filter Filter) ([]model.Event, error) {
	var b strings.Builder
	b.WriteString(`SELECT event_id, org_id, store_id, camera_id, COALESCE(person_key, ''), type, ts, payload, created_at
		FROM events WHERE store_id = $1 AND ts >= $2 AND ts < $3`)
	args := []any{filter.StoreID, filter.From, filter.To}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		fmt.Fprintf(&b, " AND type = $%d", len(args))
	}
	if len(filter.CameraIDs) > 0 {
		args = append(args, pq.Array(filter.CameraIDs))
		fmt.Fprintf(&b, " AND camera_id = ANY($%d)", len(args))
	}
	b.WriteString(" ORDER BY ts ASC")

	rows, err := p.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, &Error{Op: "QueryEvents", Err: err}
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var payloadRaw []byte
		var typeStr string
		if err := rows.Scan(&e.EventID, &e.OrgID, &e.StoreID, &e.CameraID, &e.PersonKey, &typeStr, &e.Ts, &payloadRaw, &e.CreatedAt); err != nil {
			return nil, &Error{Op: "QueryEvents", Err: err}
		}
		e.Type = model.EventType(typeStr)
		if err := json.Unmarshal(payloadRaw, &e.Payload); err != nil {
			return nil, &Error{Op: "QueryEvents", Err: fmt.Errorf("unmarshal payload for %s: %w", e.EventID, err)}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "QueryEvents", Err: err}
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}
