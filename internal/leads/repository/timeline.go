package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntryType constants identify the nature of a timeline entry.
const (
	EntryTypeLeadCreated         = "lead_created"
	EntryTypeLeadMerged          = "lead_merged"
	EntryTypeCommitmentStarted   = "commitment_started"
	EntryTypeCommitmentCompleted = "commitment_completed"
	EntryTypeCommitmentBreached  = "commitment_breached"
	EntryTypeCommitmentEscalated = "commitment_escalated"
	EntryTypeSequenceStarted     = "sequence_started"
	EntryTypeSequenceStepSent    = "sequence_step_sent"
	EntryTypeSequenceCompleted   = "sequence_completed"
	EntryTypeSequenceCancelled   = "sequence_cancelled"
	EntryTypeCRMSynced           = "crm_synced"
)

// TimelineEntry is one row of a lead's activity history.
type TimelineEntry struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	EntryType   string
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// AddTimelineEntry appends an entry to the lead's history. Metadata may be nil.
func (r *Repository) AddTimelineEntry(ctx context.Context, leadID uuid.UUID, entryType, description string, metadata map[string]any) error {
	var metadataJSON []byte
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		metadataJSON = encoded
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_timeline (lead_id, entry_type, description, metadata)
		VALUES ($1, $2, $3, $4::jsonb)
	`, leadID, entryType, description, metadataJSON)
	return err
}

// ListTimeline returns the lead's history, newest first.
func (r *Repository) ListTimeline(ctx context.Context, leadID uuid.UUID, limit int) ([]TimelineEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, entry_type, description, metadata, created_at
		FROM lead_timeline
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]TimelineEntry, 0, limit)
	for rows.Next() {
		var entry TimelineEntry
		var metadataJSON []byte
		if err := rows.Scan(&entry.ID, &entry.LeadID, &entry.EntryType, &entry.Description, &metadataJSON, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, err
			}
		}
		items = append(items, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}
