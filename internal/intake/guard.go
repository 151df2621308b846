package intake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// Statuses an inbound event moves through.
const (
	StatusReceived  = "received"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusDuplicate = "duplicate"
)

// InboundEvent is the durable record of one admitted event. The raw payload
// is kept verbatim so failed events can be replayed.
type InboundEvent struct {
	ID              uuid.UUID
	DedupKey        string
	Source          string
	EventType       string
	PlatformEventID *string
	Payload         []byte
	Status          string
	Error           *string
	LeadID          *uuid.UUID
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

// Guard is the single enforcement point for exactly-once admission. Multiple
// process instances may race on the same dedup key; the unique constraint on
// inbound_events.dedup_key is the arbiter, never an in-memory cache.
type Guard struct {
	pool *pgxpool.Pool
}

// NewGuard creates a new idempotency guard.
func NewGuard(pool *pgxpool.Pool) *Guard {
	return &Guard{pool: pool}
}

// Admit records an inbound event exactly once. A unique violation on the
// dedup key means another delivery already holds it: accepted=false with a
// nil error. Any other storage error is fatal and the caller must not
// assume admission.
func (g *Guard) Admit(ctx context.Context, source, eventType, dedupKey string, platformEventID *string, payload []byte) (InboundEvent, bool, error) {
	var ev InboundEvent
	err := g.pool.QueryRow(ctx, `
		INSERT INTO inbound_events (dedup_key, source, event_type, platform_event_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, dedup_key, source, event_type, platform_event_id, payload,
		          status, error, lead_id, received_at, processed_at
	`, dedupKey, source, eventType, platformEventID, payload).Scan(
		&ev.ID, &ev.DedupKey, &ev.Source, &ev.EventType, &ev.PlatformEventID, &ev.Payload,
		&ev.Status, &ev.Error, &ev.LeadID, &ev.ReceivedAt, &ev.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return InboundEvent{}, false, nil
		}
		return InboundEvent{}, false, err
	}
	return ev, true, nil
}

// MarkStatus records the processing outcome for an admitted event.
// Last write wins: the pipeline calls it once per admission, and the replay
// path may later overwrite a failure with a success.
func (g *Guard) MarkStatus(ctx context.Context, dedupKey, status string, errDetail *string) error {
	_, err := g.pool.Exec(ctx, `
		UPDATE inbound_events
		SET status = $2, error = $3, processed_at = now()
		WHERE dedup_key = $1
	`, dedupKey, status, errDetail)
	return err
}

// SetLead links the resolved lead to the inbound event.
func (g *Guard) SetLead(ctx context.Context, dedupKey string, leadID uuid.UUID) error {
	_, err := g.pool.Exec(ctx, `
		UPDATE inbound_events SET lead_id = $2
		WHERE dedup_key = $1
	`, dedupKey, leadID)
	return err
}

// HasProcessedPlatformEvent reports whether a processed event already carries
// the given platform event id. Ad platforms retry deliveries with fresh dedup
// keys; the platform id is the only stable handle across those retries.
func (g *Guard) HasProcessedPlatformEvent(ctx context.Context, platformEventID string) (bool, error) {
	var exists bool
	err := g.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inbound_events
			WHERE platform_event_id = $1 AND status = 'processed'
		)
	`, platformEventID).Scan(&exists)
	return exists, err
}

// ListFailed returns the oldest failed events, for the replay path.
func (g *Guard) ListFailed(ctx context.Context, limit int) ([]InboundEvent, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, dedup_key, source, event_type, platform_event_id, payload,
		       status, error, lead_id, received_at, processed_at
		FROM inbound_events
		WHERE status = 'failed'
		ORDER BY received_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []InboundEvent
	for rows.Next() {
		var ev InboundEvent
		if err := rows.Scan(
			&ev.ID, &ev.DedupKey, &ev.Source, &ev.EventType, &ev.PlatformEventID, &ev.Payload,
			&ev.Status, &ev.Error, &ev.LeadID, &ev.ReceivedAt, &ev.ProcessedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
