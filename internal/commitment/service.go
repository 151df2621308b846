package commitment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
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
	opStart       = "commitment.service.start"
	opComplete    = "commitment.service.complete"
	opCheckBreach = "commitment.service.check_breaches"

	breachBatch = 100
)

// CommitmentStore is the persistence surface the engine needs.
// Satisfied by *Repository.
type CommitmentStore interface {
	Start(ctx context.Context, leadID uuid.UUID, commitmentType string, startedAt, deadline time.Time) (Commitment, bool, error)
	Complete(ctx context.Context, leadID uuid.UUID, commitmentType string, at time.Time) (Commitment, bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Commitment, error)
	MarkBreached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkBreachNotified(ctx context.Context, id uuid.UUID) (bool, error)
	ListEscalatable(ctx context.Context, limit int) ([]Commitment, error)
	EscalatedLevels(ctx context.Context, commitmentID uuid.UUID) (map[int]bool, error)
	RecordEscalation(ctx context.Context, commitmentID uuid.UUID, level int) (bool, error)
}

// LeadDirectory is the slice of the leads repository the engine needs for
// lookups and audit entries. Satisfied by *repository.Repository.
type LeadDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	GetByPhone(ctx context.Context, phone string) (repository.Lead, error)
	AddTimelineEntry(ctx context.Context, leadID uuid.UUID, entryType, description string, metadata map[string]any) error
}

// GroupMessenger posts operational messages to team chat groups.
// Satisfied by whatsapp.Client.
type GroupMessenger interface {
	SendGroupMessage(ctx context.Context, groupID, text string) error
}

// AlertSender delivers critical operational alerts.
// Satisfied by alerts.Client.
type AlertSender interface {
	SendAlert(ctx context.Context, severity, title, body string) error
}

// DealStageUpdater moves the lead's CRM deal once first contact happened.
// Satisfied by crm.Syncer.
type DealStageUpdater interface {
	MarkDealAttended(ctx context.Context, lead repository.Lead) error
}

// Settings carries the tunables for breach handling and the escalation
// chain. Group IDs may be empty when the messaging integration is off.
type Settings struct {
	Level1After          time.Duration
	Level2After          time.Duration
	TeamGroupID          string
	EscalationGroupID    string
	DirectContactGroupID string
}

// Service runs the commitment lifecycle: start, complete, breach detection
// and escalation.
type Service struct {
	store    CommitmentStore
	leads    LeadDirectory
	clock    clock.Clock
	eventBus events.Bus
	settings Settings
	log      *logger.Logger

	messenger GroupMessenger
	alerts    AlertSender
	crm       DealStageUpdater
}

// NewService creates a new commitment service. Messaging, alerting and CRM
// integrations are injected via the Set methods; a missing integration
// degrades to a logged warning.
func NewService(store CommitmentStore, leads LeadDirectory, clk clock.Clock, eventBus events.Bus, settings Settings, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		leads:    leads,
		clock:    clk,
		eventBus: eventBus,
		settings: settings,
		log:      log,
	}
}

// SetGroupMessenger injects the group messaging client.
func (s *Service) SetGroupMessenger(messenger GroupMessenger) { s.messenger = messenger }

// SetAlertSender injects the operational alert client.
func (s *Service) SetAlertSender(alerts AlertSender) { s.alerts = alerts }

// SetDealStageUpdater injects the CRM deal stage client.
func (s *Service) SetDealStageUpdater(crm DealStageUpdater) { s.crm = crm }

// Start opens a commitment of the given type against a lead. Starting a
// type that is already open is an idempotent no-op returning the existing
// commitment; the partial unique index is the arbiter.
func (s *Service) Start(ctx context.Context, leadID uuid.UUID, commitmentType string) (Commitment, bool, error) {
	window, ok := Durations[commitmentType]
	if !ok {
		return Commitment{}, false, apperr.Validation("unknown commitment type: "+commitmentType).WithOp(opStart)
	}

	now := s.clock.Now()
	c, created, err := s.store.Start(ctx, leadID, commitmentType, now, now.Add(window))
	if err != nil {
		return Commitment{}, false, apperr.Wrap(apperr.KindInternal, "commitment start failed", err).WithOp(opStart)
	}
	if !created {
		s.log.Info("commitment already open", "leadId", leadID, "type", commitmentType)
		return c, false, nil
	}

	s.addTimeline(ctx, leadID, repository.EntryTypeCommitmentStarted,
		"Compromisso iniciado: "+Label(commitmentType), map[string]any{
			"commitmentId": c.ID,
			"type":         commitmentType,
			"deadline":     c.Deadline,
		})
	s.log.Info("commitment started",
		"commitmentId", c.ID, "leadId", leadID, "type", commitmentType, "deadline", c.Deadline)

	return c, true, nil
}

// StartFirstResponse opens the five-minute first-response window. This is
// the hook the intake pipeline calls for every new lead.
func (s *Service) StartFirstResponse(ctx context.Context, leadID uuid.UUID) error {
	_, _, err := s.Start(ctx, leadID, TypeResponse5Min)
	return err
}

// Complete closes the open commitment of the given type. Completing when
// nothing is open is a no-op, and completing after a breach is always
// allowed: it stops any further escalation for that commitment.
func (s *Service) Complete(ctx context.Context, leadID uuid.UUID, commitmentType string) (Commitment, bool, error) {
	if _, ok := Durations[commitmentType]; !ok {
		return Commitment{}, false, apperr.Validation("unknown commitment type: "+commitmentType).WithOp(opComplete)
	}

	c, completed, err := s.store.Complete(ctx, leadID, commitmentType, s.clock.Now())
	if err != nil {
		return Commitment{}, false, apperr.Wrap(apperr.KindInternal, "commitment completion failed", err).WithOp(opComplete)
	}
	if !completed {
		s.log.Info("no open commitment to complete", "leadId", leadID, "type", commitmentType)
		return Commitment{}, false, nil
	}

	s.addTimeline(ctx, leadID, repository.EntryTypeCommitmentCompleted,
		"Compromisso cumprido: "+Label(commitmentType), map[string]any{
			"commitmentId": c.ID,
			"type":         commitmentType,
			"afterBreach":  c.BreachedAt != nil,
		})
	s.log.Info("commitment completed",
		"commitmentId", c.ID, "leadId", leadID, "type", commitmentType, "afterBreach", c.BreachedAt != nil)

	if commitmentType == TypeResponse5Min && s.crm != nil {
		s.markAttended(ctx, leadID)
	}

	return c, true, nil
}

// CompleteByPhone resolves the lead behind a raw phone number and completes
// the commitment. This is the shape webhook callers use: the bot that
// answers a lead knows the phone, not our lead id.
func (s *Service) CompleteByPhone(ctx context.Context, rawPhone, commitmentType string) (Commitment, bool, error) {
	canonical, err := phone.Canonical(rawPhone)
	if err != nil {
		return Commitment{}, false, apperr.Validation("phone cannot be normalized").
			WithOp(opComplete).
			WithDetails(map[string]string{"phone": rawPhone})
	}

	lead, err := s.leads.GetByPhone(ctx, canonical)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Commitment{}, false, apperr.NotFound("no lead for this phone").WithOp(opComplete)
		}
		return Commitment{}, false, apperr.Wrap(apperr.KindInternal, "lead lookup failed", err).WithOp(opComplete)
	}

	return s.Complete(ctx, lead.ID, commitmentType)
}

// CheckBreaches sweeps open commitments past their deadline. Each row is
// claimed with a conditional update so overlapping sweeps cannot double
// count; the winning sweep writes the audit entry, notifies the team group
// and publishes the breach event. Returns how many commitments breached.
func (s *Service) CheckBreaches(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.store.ListDue(ctx, now, breachBatch)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "listing due commitments", err).WithOp(opCheckBreach)
	}

	breached := 0
	for _, c := range due {
		won, err := s.store.MarkBreached(ctx, c.ID, now)
		if err != nil {
			s.log.Error("breach mark failed", "commitmentId", c.ID, "error", err)
			continue
		}
		if !won {
			continue
		}
		breached++

		s.addTimeline(ctx, c.LeadID, repository.EntryTypeCommitmentBreached,
			"Compromisso estourado: "+Label(c.Type), map[string]any{
				"commitmentId": c.ID,
				"type":         c.Type,
				"deadline":     c.Deadline,
			})
		s.eventBus.Publish(ctx, events.CommitmentBreached{
			BaseEvent:      events.NewBaseEvent(),
			CommitmentID:   c.ID,
			LeadID:         c.LeadID,
			CommitmentType: c.Type,
			Deadline:       c.Deadline,
		})
		s.log.Warn("commitment breached",
			"commitmentId", c.ID, "leadId", c.LeadID, "type", c.Type, "deadline", c.Deadline)

		// Delivery failures are not retried here; the escalation chain is
		// the safety net for breaches nobody saw.
		if err := s.notifyBreach(ctx, c, now); err != nil {
			s.log.Warn("breach notification failed", "commitmentId", c.ID, "error", err)
			continue
		}
		if _, err := s.store.MarkBreachNotified(ctx, c.ID); err != nil {
			s.log.Warn("breach notified mark failed", "commitmentId", c.ID, "error", err)
		}
	}

	if breached > 0 {
		s.log.Info("breach sweep finished", "due", len(due), "breached", breached)
	}
	return breached, nil
}

func (s *Service) notifyBreach(ctx context.Context, c Commitment, now time.Time) error {
	if s.messenger == nil || s.settings.TeamGroupID == "" {
		s.log.Warn("team group messaging not configured, breach stays in-app only",
			"commitmentId", c.ID)
		return nil
	}

	lead, err := s.leads.GetByID(ctx, c.LeadID)
	if err != nil {
		return fmt.Errorf("lead lookup: %w", err)
	}
	return s.messenger.SendGroupMessage(ctx, s.settings.TeamGroupID, breachMessage(lead, c, now))
}

// markAttended moves the CRM deal out of the new-lead stage. Best effort:
// the completion already happened and stands on its own.
func (s *Service) markAttended(ctx context.Context, leadID uuid.UUID) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		s.log.Warn("lead lookup for CRM stage update failed", "leadId", leadID, "error", err)
		return
	}
	if err := s.crm.MarkDealAttended(ctx, lead); err != nil {
		s.log.Warn("CRM stage update failed", "leadId", leadID, "error", err)
	}
}

func (s *Service) addTimeline(ctx context.Context, leadID uuid.UUID, entryType, description string, metadata map[string]any) {
	if err := s.leads.AddTimelineEntry(ctx, leadID, entryType, description, metadata); err != nil {
		s.log.Warn("lead timeline write failed", "leadId", leadID, "entryType", entryType, "error", err)
	}
}

func breachMessage(lead repository.Lead, c Commitment, now time.Time) string {
	var b strings.Builder
	b.WriteString("🚨 Compromisso estourado: " + Label(c.Type) + "\n")
	b.WriteString("Lead: " + displayName(lead) + " (" + lead.Phone + ")\n")
	b.WriteString("Prazo: " + c.Deadline.Format("02/01 15:04") + "\n")
	b.WriteString("Atraso: " + formatDelay(now.Sub(c.Deadline)))
	return b.String()
}

func displayName(lead repository.Lead) string {
	if lead.Name != nil && strings.TrimSpace(*lead.Name) != "" {
		return *lead.Name
	}
	return "sem nome"
}

func formatDelay(d time.Duration) string {
	if d < time.Minute {
		return "menos de 1 min"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh%02dmin", hours, minutes)
	}
	return fmt.Sprintf("%d min", minutes)
}

// formatBRL renders a value the way the sales team reads it: dot-separated
// thousands, no cents.
func formatBRL(value float64) string {
	digits := strconv.FormatInt(int64(math.Round(math.Abs(value))), 10)

	var b strings.Builder
	if value < 0 {
		b.WriteString("-")
	}
	b.WriteString("R$ ")
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteString(".")
		}
		b.WriteRune(r)
	}
	return b.String()
}
