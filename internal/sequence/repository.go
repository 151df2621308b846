package sequence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execution statuses. Only active rows are picked up by the dispatcher;
// the terminal statuses keep history of how each cadence ended.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusResponded = "responded"
)

// ReasonStale marks executions cancelled by the stale sweep rather than by
// a lead reply or an operator.
const ReasonStale = "stale"

var ErrNotFound = errors.New("sequence execution not found")

// Execution is one lead's run through a follow-up cadence. CurrentStep
// counts steps already dispatched, so 0 means the first step is still due.
type Execution struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	SequenceKey  string
	CurrentStep  int
	Status       string
	NextRunAt    time.Time
	LastStepAt   *time.Time
	CompletedAt  *time.Time
	CancelReason *string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Repository persists sequence executions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sequence repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const executionColumns = `id, lead_id, sequence_key, current_step, status,
		next_run_at, last_step_at, completed_at, cancel_reason, started_at, updated_at`

func scanExecution(row pgx.Row) (Execution, error) {
	var e Execution
	err := row.Scan(
		&e.ID, &e.LeadID, &e.SequenceKey, &e.CurrentStep, &e.Status,
		&e.NextRunAt, &e.LastStepAt, &e.CompletedAt, &e.CancelReason, &e.StartedAt, &e.UpdatedAt,
	)
	return e, err
}

// Start inserts a new active execution. The partial unique index on
// (lead_id) WHERE status = 'active' arbitrates concurrent starts: the loser
// gets no row back and the existing active execution is returned with
// created=false.
func (r *Repository) Start(ctx context.Context, leadID uuid.UUID, sequenceKey string, nextRunAt time.Time) (Execution, bool, error) {
	e, err := scanExecution(r.pool.QueryRow(ctx, `
		INSERT INTO sequence_executions (lead_id, sequence_key, next_run_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (lead_id) WHERE status = 'active' DO NOTHING
		RETURNING `+executionColumns,
		leadID, sequenceKey, nextRunAt,
	))
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Execution{}, false, err
	}

	existing, err := r.GetActive(ctx, leadID)
	if err != nil {
		return Execution{}, false, err
	}
	return existing, false, nil
}

// GetActive returns the lead's active execution, if any.
func (r *Repository) GetActive(ctx context.Context, leadID uuid.UUID) (Execution, error) {
	e, err := scanExecution(r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+`
		FROM sequence_executions
		WHERE lead_id = $1 AND status = 'active'
	`, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Execution{}, ErrNotFound
		}
		return Execution{}, err
	}
	return e, nil
}

// ListDue returns active executions whose next step is due, oldest first.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM sequence_executions
		WHERE status = 'active' AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExecutions(rows, limit)
}

// Advance records a dispatched step and schedules the next one. The
// current_step guard makes concurrent dispatchers race-safe: only the
// caller that saw fromStep advances the row.
func (r *Repository) Advance(ctx context.Context, id uuid.UUID, fromStep int, nextRunAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_executions
		SET current_step = current_step + 1,
		    next_run_at  = $3,
		    last_step_at = now(),
		    updated_at   = now()
		WHERE id = $1 AND status = 'active' AND current_step = $2
	`, id, fromStep, nextRunAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete records the final dispatched step and closes the execution,
// guarded the same way as Advance.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, fromStep int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_executions
		SET current_step = current_step + 1,
		    status       = 'completed',
		    completed_at = now(),
		    last_step_at = now(),
		    updated_at   = now()
		WHERE id = $1 AND status = 'active' AND current_step = $2
	`, id, fromStep)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelActive moves the lead's active execution to a terminal status.
// Returns cancelled=false without error when the lead has none, so repeated
// cancels and replies after completion are harmless.
func (r *Repository) CancelActive(ctx context.Context, leadID uuid.UUID, status, reason string) (Execution, bool, error) {
	e, err := scanExecution(r.pool.QueryRow(ctx, `
		UPDATE sequence_executions
		SET status = $2, cancel_reason = $3, updated_at = now()
		WHERE lead_id = $1 AND status = 'active'
		RETURNING `+executionColumns,
		leadID, status, reason,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Execution{}, false, nil
		}
		return Execution{}, false, err
	}
	return e, true, nil
}

// ListStaleActive returns active executions with no dispatch activity since
// the cutoff. Executions that never dispatched fall back to their start time.
func (r *Repository) ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM sequence_executions
		WHERE status = 'active' AND COALESCE(last_step_at, started_at) < $1
		ORDER BY started_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExecutions(rows, limit)
}

func collectExecutions(rows pgx.Rows, limit int) ([]Execution, error) {
	items := make([]Execution, 0, limit)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}
