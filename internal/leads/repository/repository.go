package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound    = errors.New("lead not found")
	ErrPhoneExists = errors.New("lead with this phone already exists")
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID             uuid.UUID
	Phone          string
	Name           *string
	Email          *string
	City           *string
	Source         string
	Funnel         string
	Qualification  *string
	ProjectStage   *string
	TicketEstimate *float64
	Score          float64
	ScoreVersion   string
	CRMContactID   *string
	CRMDealID      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CreateLeadParams struct {
	Phone          string
	Name           *string
	Email          *string
	City           *string
	Source         string
	Funnel         string
	Qualification  *string
	ProjectStage   *string
	TicketEstimate *float64
	Score          float64
	ScoreVersion   string
}

const leadColumns = `id, phone, name, email, city, source, funnel, qualification,
		project_stage, ticket_estimate, score, score_version, crm_contact_id, crm_deal_id,
		created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.Phone, &lead.Name, &lead.Email, &lead.City, &lead.Source,
		&lead.Funnel, &lead.Qualification, &lead.ProjectStage, &lead.TicketEstimate,
		&lead.Score, &lead.ScoreVersion, &lead.CRMContactID, &lead.CRMDealID,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	return lead, err
}

// Create inserts a new lead. Returns ErrPhoneExists when another lead already
// holds the canonical phone, so callers can fall back to a merge.
func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			phone, name, email, city, source, funnel, qualification,
			project_stage, ticket_estimate, score, score_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+leadColumns,
		params.Phone, params.Name, params.Email, params.City, params.Source,
		params.Funnel, params.Qualification, params.ProjectStage, params.TicketEstimate,
		params.Score, params.ScoreVersion,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Lead{}, ErrPhoneExists
		}
		return Lead{}, err
	}
	return lead, nil
}

// GetByPhone looks up a lead by canonical phone number.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE phone = $1
	`, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return lead, nil
}

// GetByID looks up a lead by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return lead, nil
}

// MergeParams carries candidate profile fields for an existing lead.
// Nil fields are ignored; non-nil fields only land where the column is NULL.
type MergeParams struct {
	Name           *string
	Email          *string
	City           *string
	Qualification  *string
	ProjectStage   *string
	TicketEstimate *float64
}

// Merge fills missing profile columns on an existing lead without
// overwriting anything already known.
func (r *Repository) Merge(ctx context.Context, id uuid.UUID, params MergeParams) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET
			name            = COALESCE(name, $2),
			email           = COALESCE(email, $3),
			city            = COALESCE(city, $4),
			qualification   = COALESCE(qualification, $5),
			project_stage   = COALESCE(project_stage, $6),
			ticket_estimate = COALESCE(ticket_estimate, $7),
			updated_at      = now()
		WHERE id = $1
		RETURNING `+leadColumns,
		id, params.Name, params.Email, params.City,
		params.Qualification, params.ProjectStage, params.TicketEstimate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return lead, nil
}

// UpdateScore stores a recalculated score. Scores never decrease through
// merges, so the update is gated on the new value being higher.
func (r *Repository) UpdateScore(ctx context.Context, id uuid.UUID, score float64, version string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			score         = $2,
			score_version = $3,
			updated_at    = now()
		WHERE id = $1 AND score < $2
	`, id, score, version)
	return err
}

// SetCRMRefs records CRM identifiers after a successful sync. Existing
// references are kept; sync never relinks a lead.
func (r *Repository) SetCRMRefs(ctx context.Context, id uuid.UUID, contactID, dealID *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			crm_contact_id = COALESCE(crm_contact_id, $2),
			crm_deal_id    = COALESCE(crm_deal_id, $3),
			updated_at     = now()
		WHERE id = $1
	`, id, contactID, dealID)
	return err
}

// List returns recent leads ordered by creation time, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Lead, 0, limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}
