// Package commitment implements the response commitment (SLA) engine:
// time-boxed promises attached to leads, breach detection, and the
// escalation chain that keeps breached promises visible until someone acts.
package commitment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Commitment types. Each opens a response window of a fixed duration.
const (
	TypeResponse5Min       = "response_5min"
	TypeQualification30Min = "qualification_30min"
	TypeFollowup4h         = "followup_4h"
	TypeVisit24h           = "visit_24h"
	TypeProposal48h        = "proposal_48h"
)

// Durations maps each commitment type to its response window.
var Durations = map[string]time.Duration{
	TypeResponse5Min:       5 * time.Minute,
	TypeQualification30Min: 30 * time.Minute,
	TypeFollowup4h:         4 * time.Hour,
	TypeVisit24h:           24 * time.Hour,
	TypeProposal48h:        48 * time.Hour,
}

// Label returns the team-facing description of a commitment type.
func Label(commitmentType string) string {
	switch commitmentType {
	case TypeResponse5Min:
		return "primeira resposta em 5 minutos"
	case TypeQualification30Min:
		return "qualificação em 30 minutos"
	case TypeFollowup4h:
		return "follow-up em 4 horas"
	case TypeVisit24h:
		return "agendamento de visita em 24 horas"
	case TypeProposal48h:
		return "envio de proposta em 48 horas"
	default:
		return commitmentType
	}
}

var ErrNotFound = errors.New("commitment not found")

// Commitment is one time-boxed response promise against a lead.
type Commitment struct {
	ID               uuid.UUID
	LeadID           uuid.UUID
	Type             string
	StartedAt        time.Time
	Deadline         time.Time
	CompletedAt      *time.Time
	BreachedAt       *time.Time
	BreachNotifiedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Open reports whether the commitment is still awaiting completion.
func (c Commitment) Open() bool { return c.CompletedAt == nil }

// Repository persists commitments and their escalation records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new commitment repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const commitmentColumns = `id, lead_id, commitment_type, started_at, deadline,
		completed_at, breached_at, breach_notified_at, created_at, updated_at`

func scanCommitment(row pgx.Row) (Commitment, error) {
	var c Commitment
	err := row.Scan(
		&c.ID, &c.LeadID, &c.Type, &c.StartedAt, &c.Deadline,
		&c.CompletedAt, &c.BreachedAt, &c.BreachNotifiedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// Start inserts a new open commitment. The partial unique index on
// (lead_id, commitment_type) WHERE completed_at IS NULL arbitrates
// concurrent starts: the loser gets no row back and the existing open
// commitment is returned with created=false.
func (r *Repository) Start(ctx context.Context, leadID uuid.UUID, commitmentType string, startedAt, deadline time.Time) (Commitment, bool, error) {
	c, err := scanCommitment(r.pool.QueryRow(ctx, `
		INSERT INTO commitment_events (lead_id, commitment_type, started_at, deadline)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lead_id, commitment_type) WHERE completed_at IS NULL DO NOTHING
		RETURNING `+commitmentColumns,
		leadID, commitmentType, startedAt, deadline,
	))
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Commitment{}, false, err
	}

	existing, err := r.GetOpen(ctx, leadID, commitmentType)
	if err != nil {
		return Commitment{}, false, err
	}
	return existing, false, nil
}

// GetOpen returns the open commitment of the given type for a lead.
func (r *Repository) GetOpen(ctx context.Context, leadID uuid.UUID, commitmentType string) (Commitment, error) {
	c, err := scanCommitment(r.pool.QueryRow(ctx, `
		SELECT `+commitmentColumns+`
		FROM commitment_events
		WHERE lead_id = $1 AND commitment_type = $2 AND completed_at IS NULL
	`, leadID, commitmentType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Commitment{}, ErrNotFound
		}
		return Commitment{}, err
	}
	return c, nil
}

// Complete closes the most recent open commitment of the given type.
// Returns completed=false without error when none is open; completion is
// allowed after a breach, which removes the row from the escalation pool.
func (r *Repository) Complete(ctx context.Context, leadID uuid.UUID, commitmentType string, at time.Time) (Commitment, bool, error) {
	c, err := scanCommitment(r.pool.QueryRow(ctx, `
		UPDATE commitment_events
		SET completed_at = $3, updated_at = now()
		WHERE id = (
			SELECT id FROM commitment_events
			WHERE lead_id = $1 AND commitment_type = $2 AND completed_at IS NULL
			ORDER BY started_at DESC
			LIMIT 1
		)
		RETURNING `+commitmentColumns,
		leadID, commitmentType, at,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Commitment{}, false, nil
		}
		return Commitment{}, false, err
	}
	return c, true, nil
}

// ListDue returns open, not-yet-breached commitments whose deadline has
// passed, oldest deadline first.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]Commitment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+commitmentColumns+`
		FROM commitment_events
		WHERE completed_at IS NULL AND breached_at IS NULL AND deadline < $1
		ORDER BY deadline
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCommitments(rows, limit)
}

// MarkBreached flips a commitment to breached. The WHERE guard makes
// concurrent breach sweeps race-safe: only one caller sees true.
func (r *Repository) MarkBreached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE commitment_events
		SET breached_at = $2, updated_at = now()
		WHERE id = $1 AND breached_at IS NULL
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkBreachNotified records that the breach notification went out.
func (r *Repository) MarkBreachNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE commitment_events
		SET breach_notified_at = now(), updated_at = now()
		WHERE id = $1 AND breach_notified_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListEscalatable returns breached commitments that nobody has completed
// yet. Completion removes a commitment from this pool permanently.
func (r *Repository) ListEscalatable(ctx context.Context, limit int) ([]Commitment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+commitmentColumns+`
		FROM commitment_events
		WHERE completed_at IS NULL AND breached_at IS NOT NULL
		ORDER BY deadline
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCommitments(rows, limit)
}

// EscalatedLevels returns the escalation levels already recorded for a
// commitment.
func (r *Repository) EscalatedLevels(ctx context.Context, commitmentID uuid.UUID) (map[int]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT level FROM commitment_escalations WHERE commitment_id = $1
	`, commitmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make(map[int]bool)
	for rows.Next() {
		var level int
		if err := rows.Scan(&level); err != nil {
			return nil, err
		}
		levels[level] = true
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return levels, nil
}

// RecordEscalation inserts the per-level escalation marker. Returns false
// when the level was already recorded by an earlier cycle.
func (r *Repository) RecordEscalation(ctx context.Context, commitmentID uuid.UUID, level int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO commitment_escalations (commitment_id, level)
		VALUES ($1, $2)
		ON CONFLICT (commitment_id, level) DO NOTHING
	`, commitmentID, level)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func collectCommitments(rows pgx.Rows, limit int) ([]Commitment, error) {
	items := make([]Commitment, 0, limit)
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}
