package intake

import (
	"context"
	"strings"

	"salesops_backend/internal/events"
	"salesops_backend/internal/leads/repository"
	"salesops_backend/internal/leads/resolver"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	opIngest = "intake.service.ingest"
	opReplay = "intake.service.reprocess"
)

// Ingest result statuses returned to webhook callers.
const (
	ResultAccepted             = "accepted"
	ResultAcceptedWithWarnings = "accepted_with_warnings"
	ResultDuplicate            = "duplicate"
)

// Sources with pipeline-specific behavior.
const (
	SourceMetaAds  = "meta_ads"
	SourceWhatsApp = "whatsapp"
)

// Event types with pipeline-specific behavior.
const (
	EventTypeLeadForm        = "lead_form"
	EventTypeMessageReceived = "message_received"
	EventTypeMessageSent     = "message_sent"
)

// IngestRequest carries one inbound event through the pipeline, already
// extracted from its wire shape.
type IngestRequest struct {
	Source          string
	EventType       string
	DedupKey        string
	PlatformEventID *string
	Phone           string
	Candidate       resolver.Candidate
	Message         *string
	Payload         []byte
}

// IngestResult reports what the pipeline did with an event.
type IngestResult struct {
	Status   string
	LeadID   *uuid.UUID
	Created  bool
	Warnings []string
}

// EventStore is the persistence surface the pipeline needs from the guard.
type EventStore interface {
	Admit(ctx context.Context, source, eventType, dedupKey string, platformEventID *string, payload []byte) (InboundEvent, bool, error)
	MarkStatus(ctx context.Context, dedupKey, status string, errDetail *string) error
	SetLead(ctx context.Context, dedupKey string, leadID uuid.UUID) error
	HasProcessedPlatformEvent(ctx context.Context, platformEventID string) (bool, error)
	ListFailed(ctx context.Context, limit int) ([]InboundEvent, error)
}

// LeadResolver attaches inbound contact data to a lead record.
// Satisfied by resolver.Service.
type LeadResolver interface {
	Resolve(ctx context.Context, rawPhone string, candidate resolver.Candidate) (repository.Lead, bool, error)
}

// CommitmentStarter opens the first-response commitment for a new lead.
// Satisfied by commitment.Service.
type CommitmentStarter interface {
	StartFirstResponse(ctx context.Context, leadID uuid.UUID) error
}

// SequenceStarter begins the follow-up sequence for a new lead's funnel.
// Satisfied by sequence.Service.
type SequenceStarter interface {
	StartForLead(ctx context.Context, lead repository.Lead) error
}

// SequenceResponder stops active sequences once the lead has replied.
// Satisfied by sequence.Service.
type SequenceResponder interface {
	MarkResponded(ctx context.Context, leadID uuid.UUID) error
}

// CRMSyncer mirrors a new lead into the external CRM.
// Satisfied by crm.Syncer.
type CRMSyncer interface {
	SyncNewLead(ctx context.Context, lead repository.Lead) error
}

// TeamNotifier announces a new lead to the sales team channel.
// Satisfied by notification.Module.
type TeamNotifier interface {
	NotifyNewLead(ctx context.Context, lead repository.Lead) error
}

// Service runs the intake pipeline: admit exactly once, resolve the contact,
// then fire the best-effort follow-up actions.
type Service struct {
	guard    EventStore
	resolver LeadResolver
	eventBus events.Bus
	log      *logger.Logger

	commitments CommitmentStarter
	sequences   SequenceStarter
	responder   SequenceResponder
	crm         CRMSyncer
	notifier    TeamNotifier
}

// NewService creates a new intake service. Cross-module actions are injected
// via the Set methods after all modules are constructed; a missing action is
// skipped, never an error.
func NewService(guard EventStore, leadResolver LeadResolver, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		guard:    guard,
		resolver: leadResolver,
		eventBus: eventBus,
		log:      log,
	}
}

// SetCommitmentStarter injects the commitment engine.
func (s *Service) SetCommitmentStarter(starter CommitmentStarter) { s.commitments = starter }

// SetSequenceStarter injects the sequence engine's start path.
func (s *Service) SetSequenceStarter(starter SequenceStarter) { s.sequences = starter }

// SetSequenceResponder injects the sequence engine's reply path.
func (s *Service) SetSequenceResponder(responder SequenceResponder) { s.responder = responder }

// SetCRMSyncer injects the CRM synchronization client.
func (s *Service) SetCRMSyncer(syncer CRMSyncer) { s.crm = syncer }

// SetTeamNotifier injects the team channel notifier.
func (s *Service) SetTeamNotifier(notifier TeamNotifier) { s.notifier = notifier }

// Ingest runs the full pipeline for one inbound event.
//
// Admission is the hard idempotency gate: once a dedup key is admitted,
// every later delivery of that key is told "duplicate", even if processing
// failed. Recovery for failed rows goes through ReprocessFailed, never
// through re-admission.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if strings.TrimSpace(req.DedupKey) == "" {
		return IngestResult{}, apperr.Validation("dedup key is required").WithOp(opIngest)
	}
	if strings.TrimSpace(req.Source) == "" {
		return IngestResult{}, apperr.Validation("source is required").WithOp(opIngest)
	}

	ev, accepted, err := s.guard.Admit(ctx, req.Source, req.EventType, req.DedupKey, req.PlatformEventID, req.Payload)
	if err != nil {
		return IngestResult{}, apperr.Wrap(apperr.KindInternal, "event admission failed", err).WithOp(opIngest)
	}
	if !accepted {
		s.log.Info("duplicate event ignored", "dedup_key", req.DedupKey, "source", req.Source)
		return IngestResult{Status: ResultDuplicate}, nil
	}

	return s.process(ctx, ev, req)
}

// process runs everything after admission. The replay path re-enters here
// with a rebuilt request, so each step must tolerate a second run.
func (s *Service) process(ctx context.Context, ev InboundEvent, req IngestRequest) (IngestResult, error) {
	// Ad platforms redeliver the same lead under fresh dedup keys; the
	// platform event id catches those after the first delivery processed.
	if req.PlatformEventID != nil {
		seen, err := s.guard.HasProcessedPlatformEvent(ctx, *req.PlatformEventID)
		if err != nil {
			wrapped := apperr.Wrap(apperr.KindInternal, "platform event lookup failed", err).WithOp(opIngest)
			return IngestResult{}, s.fail(ctx, ev, wrapped)
		}
		if seen {
			s.markStatus(ctx, ev.DedupKey, StatusDuplicate, nil)
			s.log.Info("platform event already processed",
				"dedup_key", ev.DedupKey, "platform_event_id", *req.PlatformEventID)
			return IngestResult{Status: ResultDuplicate}, nil
		}
	}

	lead, created, err := s.resolver.Resolve(ctx, req.Phone, req.Candidate)
	if err != nil {
		return IngestResult{}, s.fail(ctx, ev, err)
	}
	if linkErr := s.guard.SetLead(ctx, ev.DedupKey, lead.ID); linkErr != nil {
		s.log.Warn("failed to link lead to inbound event", "dedup_key", ev.DedupKey, "error", linkErr)
	}

	warnings := s.runActions(ctx, lead, created, req)

	s.markStatus(ctx, ev.DedupKey, StatusProcessed, nil)

	if created {
		s.eventBus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Phone:     lead.Phone,
			Name:      deref(lead.Name),
			Source:    lead.Source,
			Funnel:    lead.Funnel,
			Score:     lead.Score,
		})
	}

	status := ResultAccepted
	if len(warnings) > 0 {
		status = ResultAcceptedWithWarnings
	}
	leadID := lead.ID
	return IngestResult{Status: status, LeadID: &leadID, Created: created, Warnings: warnings}, nil
}

// runActions fires the best-effort follow-up actions. Each is isolated:
// a failure is logged and surfaced as a warning but never unwinds the
// admission or the resolved lead.
func (s *Service) runActions(ctx context.Context, lead repository.Lead, created bool, req IngestRequest) []string {
	var warnings []string
	warn := func(action string, err error) {
		s.log.Warn("intake action failed",
			"action", action, "lead_id", lead.ID, "dedup_key", req.DedupKey, "error", err)
		warnings = append(warnings, action+": "+err.Error())
	}

	if created {
		if s.commitments != nil {
			if err := s.commitments.StartFirstResponse(ctx, lead.ID); err != nil {
				warn("start_commitment", err)
			}
		}
		if s.sequences != nil {
			if err := s.sequences.StartForLead(ctx, lead); err != nil {
				warn("start_sequence", err)
			}
		}
		if s.crm != nil {
			if err := s.crm.SyncNewLead(ctx, lead); err != nil {
				warn("crm_sync", err)
			}
		}
		if s.notifier != nil {
			if err := s.notifier.NotifyNewLead(ctx, lead); err != nil {
				warn("team_notification", err)
			}
		}
		return warnings
	}

	if req.EventType == EventTypeMessageReceived && s.responder != nil {
		if err := s.responder.MarkResponded(ctx, lead.ID); err != nil {
			warn("sequence_response", err)
		}
	}

	return warnings
}

// ReprocessFailed re-runs the pipeline for events parked in failed status,
// rebuilding each request from the stored payload. Returns how many events
// left the failed state.
func (s *Service) ReprocessFailed(ctx context.Context, limit int) (int, error) {
	failed, err := s.guard.ListFailed(ctx, limit)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "listing failed events", err).WithOp(opReplay)
	}

	recovered := 0
	for _, ev := range failed {
		req, err := RebuildIngestRequest(ev)
		if err != nil {
			s.log.Error("stored payload cannot be rebuilt", "dedup_key", ev.DedupKey, "error", err)
			continue
		}
		if _, err := s.process(ctx, ev, req); err != nil {
			s.log.Warn("replay attempt failed", "dedup_key", ev.DedupKey, "error", err)
			continue
		}
		recovered++
	}

	if len(failed) > 0 {
		s.log.Info("replayed failed events", "attempted", len(failed), "recovered", recovered)
	}
	return recovered, nil
}

// fail parks the event for replay and returns the original error.
func (s *Service) fail(ctx context.Context, ev InboundEvent, err error) error {
	detail := err.Error()
	s.markStatus(ctx, ev.DedupKey, StatusFailed, &detail)
	s.eventBus.Publish(ctx, events.IntakeEventFailed{
		BaseEvent: events.NewBaseEvent(),
		EventID:   ev.ID,
		DedupKey:  ev.DedupKey,
		Source:    ev.Source,
		Reason:    detail,
	})
	return err
}

func (s *Service) markStatus(ctx context.Context, dedupKey, status string, detail *string) {
	if err := s.guard.MarkStatus(ctx, dedupKey, status, detail); err != nil {
		s.log.Warn("failed to update event status",
			"dedup_key", dedupKey, "status", status, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
