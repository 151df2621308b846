package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesops_backend/internal/events"
	"salesops_backend/internal/leads/repository"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/clock"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	opStart   = "sequence.service.start"
	opCancel  = "sequence.service.cancel"
	opProcess = "sequence.service.process_due"
	opSweep   = "sequence.service.sweep_stale"

	dispatchBatch = 100
	staleBatch    = 100
)

// ExecutionStore is the persistence surface the engine needs.
// Satisfied by *Repository.
type ExecutionStore interface {
	Start(ctx context.Context, leadID uuid.UUID, sequenceKey string, nextRunAt time.Time) (Execution, bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Execution, error)
	Advance(ctx context.Context, id uuid.UUID, fromStep int, nextRunAt time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, fromStep int) (bool, error)
	CancelActive(ctx context.Context, leadID uuid.UUID, status, reason string) (Execution, bool, error)
	ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]Execution, error)
}

// LeadDirectory is the slice of the leads repository the engine needs for
// lookups and audit entries. Satisfied by *repository.Repository.
type LeadDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	GetByPhone(ctx context.Context, phone string) (repository.Lead, error)
	AddTimelineEntry(ctx context.Context, leadID uuid.UUID, entryType, description string, metadata map[string]any) error
}

// Messenger sends a WhatsApp message to a lead's phone.
// Satisfied by whatsapp.Client.
type Messenger interface {
	SendMessage(ctx context.Context, phone, text string) error
}

// EmailSender delivers a follow-up email.
// Satisfied by email.Sender.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AlertSender delivers operational alerts.
// Satisfied by alerts.Client.
type AlertSender interface {
	SendAlert(ctx context.Context, severity, title, body string) error
}

// Service runs the follow-up sequence lifecycle: start on lead creation,
// timed step dispatch, and cancellation when the lead replies or goes stale.
type Service struct {
	store    ExecutionStore
	leads    LeadDirectory
	catalog  *Catalog
	clock    clock.Clock
	eventBus events.Bus
	log      *logger.Logger

	messenger Messenger
	email     EmailSender
	alerts    AlertSender
}

// NewService creates a new sequence service. Messaging, email and alerting
// integrations are injected via the Set methods; a missing integration
// degrades to a logged warning.
func NewService(store ExecutionStore, leads LeadDirectory, catalog *Catalog, clk clock.Clock, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		leads:    leads,
		catalog:  catalog,
		clock:    clk,
		eventBus: eventBus,
		log:      log,
	}
}

// SetMessenger injects the WhatsApp messaging client.
func (s *Service) SetMessenger(messenger Messenger) { s.messenger = messenger }

// SetEmailSender injects the email delivery client.
func (s *Service) SetEmailSender(email EmailSender) { s.email = email }

// SetAlertSender injects the operational alert client.
func (s *Service) SetAlertSender(alerts AlertSender) { s.alerts = alerts }

// Start begins the cadence mapped to the lead's funnel. Leads on funnels
// without a catalog entry are skipped, and a lead already running a sequence
// keeps it: the partial unique index arbitrates concurrent starts.
func (s *Service) Start(ctx context.Context, lead repository.Lead) (Execution, bool, error) {
	seq, ok := s.catalog.ForFunnel(lead.Funnel)
	if !ok {
		s.log.Info("no sequence for funnel", "leadId", lead.ID, "funnel", lead.Funnel)
		return Execution{}, false, nil
	}

	first := seq.Steps[0]
	e, created, err := s.store.Start(ctx, lead.ID, seq.ID, s.clock.Now().Add(first.Delay()))
	if err != nil {
		return Execution{}, false, apperr.Wrap(apperr.KindInternal, "sequence start failed", err).WithOp(opStart)
	}
	if !created {
		s.log.Info("sequence already active", "leadId", lead.ID, "sequenceKey", e.SequenceKey)
		return e, false, nil
	}

	s.addTimeline(ctx, lead.ID, repository.EntryTypeSequenceStarted,
		"Sequência de follow-up iniciada: "+seq.Name, map[string]any{
			"executionId": e.ID,
			"sequenceKey": seq.ID,
			"nextRunAt":   e.NextRunAt,
		})
	s.log.Info("sequence started",
		"executionId", e.ID, "leadId", lead.ID, "sequenceKey", seq.ID, "nextRunAt", e.NextRunAt)

	return e, true, nil
}

// StartForLead begins the funnel cadence for a new lead. This is the hook
// the intake pipeline calls after lead creation.
func (s *Service) StartForLead(ctx context.Context, lead repository.Lead) error {
	_, _, err := s.Start(ctx, lead)
	return err
}

// Cancel stops the lead's active sequence with a terminal status. Cancelling
// when nothing is active is a no-op, so replies arriving after completion
// are harmless.
func (s *Service) Cancel(ctx context.Context, leadID uuid.UUID, status, reason string) (Execution, bool, error) {
	if status != StatusCancelled && status != StatusResponded {
		return Execution{}, false, apperr.Validation("invalid terminal status: "+status).WithOp(opCancel)
	}

	e, cancelled, err := s.store.CancelActive(ctx, leadID, status, reason)
	if err != nil {
		return Execution{}, false, apperr.Wrap(apperr.KindInternal, "sequence cancel failed", err).WithOp(opCancel)
	}
	if !cancelled {
		s.log.Info("no active sequence to cancel", "leadId", leadID)
		return Execution{}, false, nil
	}

	description := "Sequência cancelada: " + reason
	if status == StatusResponded {
		description = "Sequência interrompida: lead respondeu"
	}
	s.addTimeline(ctx, leadID, repository.EntryTypeSequenceCancelled, description, map[string]any{
		"executionId": e.ID,
		"sequenceKey": e.SequenceKey,
		"status":      status,
		"reason":      reason,
	})
	s.eventBus.Publish(ctx, events.SequenceCancelled{
		BaseEvent:   events.NewBaseEvent(),
		ExecutionID: e.ID,
		LeadID:      leadID,
		SequenceKey: e.SequenceKey,
		Reason:      reason,
	})
	s.log.Info("sequence cancelled",
		"executionId", e.ID, "leadId", leadID, "sequenceKey", e.SequenceKey, "status", status, "reason", reason)

	return e, true, nil
}

// MarkResponded stops the active sequence because the lead replied. This is
// the hook the intake pipeline calls on inbound messages from known leads.
func (s *Service) MarkResponded(ctx context.Context, leadID uuid.UUID) error {
	_, _, err := s.Cancel(ctx, leadID, StatusResponded, "lead respondeu")
	return err
}

// CancelByPhone resolves the lead behind a raw phone number and cancels the
// active sequence. This is the shape operator tooling uses.
func (s *Service) CancelByPhone(ctx context.Context, rawPhone, reason string) (Execution, bool, error) {
	canonical, err := phone.Canonical(rawPhone)
	if err != nil {
		return Execution{}, false, apperr.Validation("phone cannot be normalized").
			WithOp(opCancel).
			WithDetails(map[string]string{"phone": rawPhone})
	}

	lead, err := s.leads.GetByPhone(ctx, canonical)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Execution{}, false, apperr.NotFound("no lead for this phone").WithOp(opCancel)
		}
		return Execution{}, false, apperr.Wrap(apperr.KindInternal, "lead lookup failed", err).WithOp(opCancel)
	}

	if strings.TrimSpace(reason) == "" {
		reason = "cancelamento manual"
	}
	return s.Cancel(ctx, lead.ID, StatusCancelled, reason)
}

// ProcessDue dispatches every due step. Delivery happens before the row is
// advanced, so a crash between the two can double-send but never silently
// drop a step; the current_step guard keeps overlapping dispatchers from
// both advancing. Returns how many steps were dispatched.
func (s *Service) ProcessDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.store.ListDue(ctx, now, dispatchBatch)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "listing due executions", err).WithOp(opProcess)
	}

	dispatched := 0
	for _, e := range due {
		if s.dispatchStep(ctx, e, now) {
			dispatched++
		}
	}

	if dispatched > 0 {
		s.log.Info("sequence dispatch finished", "due", len(due), "dispatched", dispatched)
	}
	return dispatched, nil
}

// dispatchStep sends one execution's next step and advances or completes the
// row. Failures leave the row untouched so the next cycle retries.
func (s *Service) dispatchStep(ctx context.Context, e Execution, now time.Time) bool {
	seq, ok := s.catalog.ByID(e.SequenceKey)
	if !ok {
		// The catalog changed underneath a live execution. Cancel it
		// instead of retrying a missing key every cycle.
		s.log.Error("sequence key missing from catalog", "executionId", e.ID, "sequenceKey", e.SequenceKey)
		if _, _, err := s.Cancel(ctx, e.LeadID, StatusCancelled, "sequência removida do catálogo"); err != nil {
			s.log.Error("orphan execution cancel failed", "executionId", e.ID, "error", err)
		}
		return false
	}

	step, ok := seq.StepAt(e.CurrentStep + 1)
	if !ok {
		// The sequence shrank below the step already dispatched; close it.
		if _, err := s.store.Complete(ctx, e.ID, e.CurrentStep); err != nil {
			s.log.Error("short sequence completion failed", "executionId", e.ID, "error", err)
		}
		return false
	}

	lead, err := s.leads.GetByID(ctx, e.LeadID)
	if err != nil {
		s.log.Error("lead lookup for dispatch failed", "executionId", e.ID, "leadId", e.LeadID, "error", err)
		return false
	}

	body, err := render(step.Template, leadVars(lead))
	if err != nil {
		s.log.Error("step template render failed",
			"executionId", e.ID, "sequenceKey", seq.ID, "step", step.Order, "error", err)
		return false
	}

	if err := s.deliver(ctx, lead, step, body); err != nil {
		s.log.Warn("step delivery failed, will retry",
			"executionId", e.ID, "sequenceKey", seq.ID, "step", step.Order, "error", err)
		return false
	}

	next, hasNext := seq.StepAt(step.Order + 1)
	if hasNext {
		won, err := s.store.Advance(ctx, e.ID, e.CurrentStep, now.Add(next.Delay()))
		if err != nil {
			s.log.Error("execution advance failed", "executionId", e.ID, "error", err)
			return false
		}
		if !won {
			s.log.Warn("execution advanced concurrently", "executionId", e.ID, "step", step.Order)
			return false
		}
	} else {
		won, err := s.store.Complete(ctx, e.ID, e.CurrentStep)
		if err != nil {
			s.log.Error("execution completion failed", "executionId", e.ID, "error", err)
			return false
		}
		if !won {
			s.log.Warn("execution completed concurrently", "executionId", e.ID, "step", step.Order)
			return false
		}
	}

	s.addTimeline(ctx, e.LeadID, repository.EntryTypeSequenceStepSent,
		fmt.Sprintf("Follow-up %d/%d enviado (%s)", step.Order, len(seq.Steps), step.Channel), map[string]any{
			"executionId": e.ID,
			"sequenceKey": seq.ID,
			"step":        step.Order,
			"channel":     step.Channel,
		})
	s.log.Info("sequence step sent",
		"executionId", e.ID, "leadId", e.LeadID, "sequenceKey", seq.ID, "step", step.Order, "channel", step.Channel)

	if !hasNext {
		s.addTimeline(ctx, e.LeadID, repository.EntryTypeSequenceCompleted,
			"Sequência de follow-up concluída: "+seq.Name, map[string]any{
				"executionId": e.ID,
				"sequenceKey": seq.ID,
				"steps":       step.Order,
			})
		s.eventBus.Publish(ctx, events.SequenceCompleted{
			BaseEvent:   events.NewBaseEvent(),
			ExecutionID: e.ID,
			LeadID:      e.LeadID,
			SequenceKey: seq.ID,
			Steps:       step.Order,
		})
		s.log.Info("sequence completed", "executionId", e.ID, "leadId", e.LeadID, "sequenceKey", seq.ID)
	}

	return true
}

// deliver routes a rendered step to its channel. A disabled integration or
// a lead without an email address logs a warning and counts as delivered,
// matching how breach notifications degrade; real transport failures are
// returned so the step retries.
func (s *Service) deliver(ctx context.Context, lead repository.Lead, step Step, body string) error {
	switch step.Channel {
	case ChannelWhatsApp:
		if s.messenger == nil {
			s.log.Warn("whatsapp messaging not configured, step logged only",
				"leadId", lead.ID, "step", step.Order)
			return nil
		}
		return s.messenger.SendMessage(ctx, lead.Phone, body)
	case ChannelEmail:
		if s.email == nil {
			s.log.Warn("email sending not configured, step logged only",
				"leadId", lead.ID, "step", step.Order)
			return nil
		}
		if lead.Email == nil || strings.TrimSpace(*lead.Email) == "" {
			s.log.Warn("lead has no email address, step logged only",
				"leadId", lead.ID, "step", step.Order)
			return nil
		}
		return s.email.Send(ctx, *lead.Email, step.Subject, body)
	default:
		return fmt.Errorf("unknown channel: %s", step.Channel)
	}
}

// SweepStale cancels active executions with no dispatch activity inside the
// window. A healthy dispatcher never lets this trigger; stale rows mean
// deliveries kept failing or the scheduler was down, so the sweep also
// raises one summary alert. Returns how many executions were cancelled.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	stale, err := s.store.ListStaleActive(ctx, cutoff, staleBatch)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "listing stale executions", err).WithOp(opSweep)
	}

	swept := 0
	for _, e := range stale {
		_, cancelled, err := s.store.CancelActive(ctx, e.LeadID, StatusCancelled, ReasonStale)
		if err != nil {
			s.log.Error("stale execution cancel failed", "executionId", e.ID, "error", err)
			continue
		}
		if !cancelled {
			continue
		}
		swept++

		s.addTimeline(ctx, e.LeadID, repository.EntryTypeSequenceCancelled,
			"Sequência cancelada por inatividade", map[string]any{
				"executionId": e.ID,
				"sequenceKey": e.SequenceKey,
				"reason":      ReasonStale,
			})
		s.eventBus.Publish(ctx, events.SequenceCancelled{
			BaseEvent:   events.NewBaseEvent(),
			ExecutionID: e.ID,
			LeadID:      e.LeadID,
			SequenceKey: e.SequenceKey,
			Reason:      ReasonStale,
		})
		s.log.Warn("stale sequence cancelled",
			"executionId", e.ID, "leadId", e.LeadID, "sequenceKey", e.SequenceKey)
	}

	if swept > 0 {
		s.alertStaleSweep(ctx, swept, olderThan)
		s.log.Info("stale sweep finished", "checked", len(stale), "swept", swept)
	}
	return swept, nil
}

func (s *Service) alertStaleSweep(ctx context.Context, swept int, olderThan time.Duration) {
	if s.alerts == nil {
		s.log.Warn("alerting not configured, stale sweep logged only", "swept", swept)
		return
	}

	body := fmt.Sprintf("%d sequência(s) ativa(s) sem envio há mais de %dh foram canceladas. Verifique o despachante de follow-ups.",
		swept, int(olderThan.Hours()))
	if err := s.alerts.SendAlert(ctx, "warning", "Sequências canceladas por inatividade", body); err != nil {
		s.log.Warn("stale sweep alert failed", "error", err)
	}
}

func (s *Service) addTimeline(ctx context.Context, leadID uuid.UUID, entryType, description string, metadata map[string]any) {
	if err := s.leads.AddTimelineEntry(ctx, leadID, entryType, description, metadata); err != nil {
		s.log.Warn("lead timeline write failed", "leadId", leadID, "entryType", entryType, "error", err)
	}
}
