// Package resolver turns raw webhook contact data into persistent leads.
// It owns phone canonicalization, funnel inference, scoring, and the
// fill-only-nulls merge policy for repeat contacts.
package resolver

import (
	"context"
	"errors"
	"strings"

	"salesops_backend/internal/leads/domain"
	"salesops_backend/internal/leads/repository"
	"salesops_backend/internal/leads/scoring"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	opResolve = "leads.resolver.resolve"
)

// LeadStore is the persistence surface the resolver needs.
type LeadStore interface {
	Create(ctx context.Context, params repository.CreateLeadParams) (repository.Lead, error)
	GetByPhone(ctx context.Context, phone string) (repository.Lead, error)
	Merge(ctx context.Context, id uuid.UUID, params repository.MergeParams) (repository.Lead, error)
	UpdateScore(ctx context.Context, id uuid.UUID, score float64, version string) error
	AddTimelineEntry(ctx context.Context, leadID uuid.UUID, entryType, description string, metadata map[string]any) error
}

// Candidate is the profile data extracted from an inbound event.
// All fields except Source are optional.
type Candidate struct {
	Name           *string
	Email          *string
	City           *string
	Source         string
	Qualification  string
	ProjectStage   *string
	TicketEstimate *float64
}

func (c Candidate) hasProfileData() bool {
	return c.Name != nil || c.Email != nil || c.City != nil ||
		strings.TrimSpace(c.Qualification) != "" ||
		c.ProjectStage != nil || c.TicketEstimate != nil
}

// Service resolves inbound contacts to leads.
type Service struct {
	store LeadStore
	log   *logger.Logger
}

// New creates a resolver service.
func New(store LeadStore, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// Resolve canonicalizes the phone, then either creates a new lead or merges
// the candidate profile into the existing one. The returned bool is true
// when a new lead was created.
func (s *Service) Resolve(ctx context.Context, rawPhone string, candidate Candidate) (repository.Lead, bool, error) {
	canonical, err := phone.Canonical(rawPhone)
	if err != nil {
		return repository.Lead{}, false, apperr.Validation("contact phone cannot be normalized").
			WithOp(opResolve).
			WithDetails(map[string]string{"phone": rawPhone})
	}

	existing, err := s.store.GetByPhone(ctx, canonical)
	switch {
	case err == nil:
		merged, mergeErr := s.merge(ctx, existing, candidate)
		return merged, false, mergeErr
	case errors.Is(err, repository.ErrNotFound):
		return s.create(ctx, canonical, candidate)
	default:
		return repository.Lead{}, false, apperr.Wrap(apperr.KindInternal, "lead lookup failed", err).WithOp(opResolve)
	}
}

func (s *Service) create(ctx context.Context, canonical string, candidate Candidate) (repository.Lead, bool, error) {
	source := strings.TrimSpace(candidate.Source)
	if source == "" {
		source = "unknown"
	}

	funnel := domain.InferFunnel(candidate.Qualification)
	result := scoring.Compute(scoring.Input{
		Source:         source,
		Qualification:  candidate.Qualification,
		ProjectStage:   candidate.ProjectStage,
		TicketEstimate: candidate.TicketEstimate,
		Name:           candidate.Name,
		Email:          candidate.Email,
		City:           candidate.City,
	})

	lead, err := s.store.Create(ctx, repository.CreateLeadParams{
		Phone:          canonical,
		Name:           candidate.Name,
		Email:          candidate.Email,
		City:           candidate.City,
		Source:         source,
		Funnel:         funnel,
		Qualification:  optional(candidate.Qualification),
		ProjectStage:   candidate.ProjectStage,
		TicketEstimate: candidate.TicketEstimate,
		Score:          result.Score,
		ScoreVersion:   result.Version,
	})
	if err != nil {
		// Two intake requests can race on the same new phone; the loser
		// falls back to the merge path against the winner's row.
		if errors.Is(err, repository.ErrPhoneExists) {
			winner, getErr := s.store.GetByPhone(ctx, canonical)
			if getErr != nil {
				return repository.Lead{}, false, apperr.Wrap(apperr.KindInternal, "lead lookup after create race failed", getErr).WithOp(opResolve)
			}
			merged, mergeErr := s.merge(ctx, winner, candidate)
			return merged, false, mergeErr
		}
		return repository.Lead{}, false, apperr.Wrap(apperr.KindInternal, "lead create failed", err).WithOp(opResolve)
	}

	s.addTimeline(ctx, lead, repository.EntryTypeLeadCreated, "Lead criado via "+source, map[string]any{
		"phone":  canonical,
		"source": source,
		"funnel": funnel,
		"score":  result.Score,
	})

	return lead, true, nil
}

func (s *Service) merge(ctx context.Context, existing repository.Lead, candidate Candidate) (repository.Lead, error) {
	if !candidate.hasProfileData() {
		return existing, nil
	}

	merged, err := s.store.Merge(ctx, existing.ID, repository.MergeParams{
		Name:           candidate.Name,
		Email:          candidate.Email,
		City:           candidate.City,
		Qualification:  optional(candidate.Qualification),
		ProjectStage:   candidate.ProjectStage,
		TicketEstimate: candidate.TicketEstimate,
	})
	if err != nil {
		return repository.Lead{}, apperr.Wrap(apperr.KindInternal, "lead merge failed", err).WithOp(opResolve)
	}

	// Rescore against the merged profile; the store keeps the higher score.
	result := scoring.Compute(scoring.Input{
		Source:         merged.Source,
		Qualification:  deref(merged.Qualification),
		ProjectStage:   merged.ProjectStage,
		TicketEstimate: merged.TicketEstimate,
		Name:           merged.Name,
		Email:          merged.Email,
		City:           merged.City,
	})
	if err := s.store.UpdateScore(ctx, merged.ID, result.Score, result.Version); err != nil {
		s.log.Warn("lead rescore after merge failed", "leadId", merged.ID, "error", err)
	} else if result.Score > merged.Score {
		merged.Score = result.Score
		merged.ScoreVersion = result.Version
	}

	s.addTimeline(ctx, merged, repository.EntryTypeLeadMerged, "Dados do lead complementados", map[string]any{
		"source": candidate.Source,
		"score":  merged.Score,
	})

	return merged, nil
}

// addTimeline records history best-effort; resolution never fails because
// the audit write did.
func (s *Service) addTimeline(ctx context.Context, lead repository.Lead, entryType, description string, metadata map[string]any) {
	if err := s.store.AddTimelineEntry(ctx, lead.ID, entryType, description, metadata); err != nil {
		s.log.Warn("lead timeline write failed", "leadId", lead.ID, "entryType", entryType, "error", err)
	}
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
