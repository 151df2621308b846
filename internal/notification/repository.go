// Package notification keeps the sales dashboard informed: it turns domain
// events into in-app notification rows and announces new leads on the team
// WhatsApp group. Domain modules publish events and stay unaware of how the
// team gets told.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notification categories, in escalating order of attention.
const (
	CategoryInfo    = "info"
	CategoryWarning = "warning"
	CategoryError   = "error"
)

// Resource types a notification can point at.
const (
	ResourceLead         = "lead"
	ResourceCommitment   = "commitment"
	ResourceSequence     = "sequence"
	ResourceInboundEvent = "inbound_event"
)

var ErrNotFound = errors.New("notification not found")

// Notification is one row of the dashboard feed.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	ResourceID   *uuid.UUID `json:"resourceId,omitempty"`
	ResourceType *string    `json:"resourceType,omitempty"`
	Category     string     `json:"category"`
	IsRead       bool       `json:"isRead"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// CreateParams carries a new feed entry.
type CreateParams struct {
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType string
	Category     string
}

// Repository persists the in-app notification feed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new notification repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `id, title, content, resource_id, resource_type, category, is_read, read_at, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.Title, &n.Content, &n.ResourceID, &n.ResourceType,
		&n.Category, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	return n, err
}

// Create inserts a feed entry. An empty category defaults to info.
func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	category := p.Category
	if category == "" {
		category = CategoryInfo
	}
	var resourceType *string
	if p.ResourceType != "" {
		resourceType = &p.ResourceType
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO in_app_notifications (title, content, resource_id, resource_type, category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+notificationColumns,
		p.Title, p.Content, p.ResourceID, resourceType, category)

	n, err := scanNotification(row)
	if err != nil {
		return Notification{}, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// List returns a page of the feed, newest first, along with the total count.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM in_app_notifications`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM in_app_notifications
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, total, nil
}

// CountUnread returns the unread badge count.
func (r *Repository) CountUnread(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM in_app_notifications WHERE is_read = FALSE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one entry read. Marking an already-read entry is a no-op
// that succeeds; an unknown id returns ErrNotFound.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks the whole feed read and returns how many entries flipped.
func (r *Repository) MarkAllRead(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE is_read = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}
