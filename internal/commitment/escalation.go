package commitment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesops_backend/internal/events"
	"salesops_backend/internal/leads/repository"
	"salesops_backend/platform/apperr"
)

const (
	opEscalate = "commitment.service.run_escalations"

	escalationBatch = 100
)

type escalationLevel struct {
	level int
	after time.Duration
}

// chain returns the escalation levels in firing order.
func (s *Service) chain() []escalationLevel {
	return []escalationLevel{
		{level: 1, after: s.settings.Level1After},
		{level: 2, after: s.settings.Level2After},
	}
}

// RunEscalations walks breached, still-open commitments and fires every
// escalation level whose threshold has passed and that has no record yet.
// The chain is self-healing: a level whose delivery failed, or that a downed
// scheduler never reached, fires on the next cycle. Delivery goes out
// first; the marker row is only written after a successful send, and the
// UNIQUE(commitment, level) constraint keeps concurrent runners from
// double-firing. Returns how many escalations fired.
func (s *Service) RunEscalations(ctx context.Context) (int, error) {
	breached, err := s.store.ListEscalatable(ctx, escalationBatch)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "listing breached commitments", err).WithOp(opEscalate)
	}

	now := s.clock.Now()
	fired := 0
	for _, c := range breached {
		recorded, err := s.store.EscalatedLevels(ctx, c.ID)
		if err != nil {
			s.log.Error("escalation level lookup failed", "commitmentId", c.ID, "error", err)
			continue
		}

		overdue := now.Sub(c.Deadline)
		for _, lvl := range s.chain() {
			if recorded[lvl.level] || overdue < lvl.after {
				continue
			}

			if err := s.fireEscalation(ctx, c, lvl.level, overdue); err != nil {
				// No marker row written: this level retries next cycle.
				s.log.Warn("escalation delivery failed",
					"commitmentId", c.ID, "level", lvl.level, "error", err)
				continue
			}

			inserted, err := s.store.RecordEscalation(ctx, c.ID, lvl.level)
			if err != nil {
				s.log.Error("escalation record failed",
					"commitmentId", c.ID, "level", lvl.level, "error", err)
				continue
			}
			if !inserted {
				// A concurrent runner recorded the level after our send
				// went out. The duplicate message already happened; don't
				// double count or re-publish.
				continue
			}

			fired++
			s.addTimeline(ctx, c.LeadID, repository.EntryTypeCommitmentEscalated,
				fmt.Sprintf("Compromisso escalonado (nível %d): %s", lvl.level, Label(c.Type)),
				map[string]any{
					"commitmentId": c.ID,
					"type":         c.Type,
					"level":        lvl.level,
				})
			s.eventBus.Publish(ctx, events.CommitmentEscalated{
				BaseEvent:      events.NewBaseEvent(),
				CommitmentID:   c.ID,
				LeadID:         c.LeadID,
				CommitmentType: c.Type,
				Level:          lvl.level,
			})
			s.log.Warn("commitment escalated",
				"commitmentId", c.ID, "leadId", c.LeadID, "type", c.Type,
				"level", lvl.level, "overdue", overdue)
		}
	}

	if fired > 0 {
		s.log.Info("escalation sweep finished", "breached", len(breached), "fired", fired)
	}
	return fired, nil
}

// fireEscalation delivers one escalation level. Level 1 informs the
// escalation group; level 2 raises a critical alert and messages the
// direct-contact group, with the lead's estimated ticket when known.
func (s *Service) fireEscalation(ctx context.Context, c Commitment, level int, overdue time.Duration) error {
	lead, err := s.leads.GetByID(ctx, c.LeadID)
	if err != nil {
		return fmt.Errorf("lead lookup: %w", err)
	}

	switch level {
	case 1:
		return s.sendGroup(ctx, s.settings.EscalationGroupID, level1Message(lead, c, overdue))
	case 2:
		if s.alerts != nil {
			title := "Compromisso sem atendimento: " + Label(c.Type)
			if err := s.alerts.SendAlert(ctx, "critical", title, level2AlertBody(lead, c)); err != nil {
				return fmt.Errorf("alert webhook: %w", err)
			}
		} else {
			s.log.Warn("alert webhook not configured, critical escalation logged only",
				"commitmentId", c.ID, "leadId", c.LeadID)
		}
		return s.sendGroup(ctx, s.settings.DirectContactGroupID, level2Message(lead, c, overdue))
	default:
		return fmt.Errorf("unknown escalation level %d", level)
	}
}

// sendGroup treats an unconfigured channel as delivered-to-the-log so a
// disabled messaging integration cannot make the chain spin forever.
func (s *Service) sendGroup(ctx context.Context, groupID, text string) error {
	if s.messenger == nil || groupID == "" {
		s.log.Warn("group messaging not configured, escalation logged only", "message", text)
		return nil
	}
	return s.messenger.SendGroupMessage(ctx, groupID, text)
}

func level1Message(lead repository.Lead, c Commitment, overdue time.Duration) string {
	var b strings.Builder
	b.WriteString("⚠️ Escalonamento nível 1: " + Label(c.Type) + "\n")
	b.WriteString("Lead: " + displayName(lead) + " (" + lead.Phone + ")\n")
	b.WriteString("Sem atendimento há " + formatDelay(overdue) + ".")
	return b.String()
}

func level2Message(lead repository.Lead, c Commitment, overdue time.Duration) string {
	var b strings.Builder
	b.WriteString("🔴 Escalonamento nível 2: " + Label(c.Type) + "\n")
	b.WriteString("Lead: " + displayName(lead) + " (" + lead.Phone + ")\n")
	if lead.TicketEstimate != nil {
		b.WriteString("Valor estimado: " + formatBRL(*lead.TicketEstimate) + "\n")
	}
	b.WriteString("Sem atendimento há " + formatDelay(overdue) + ". Contato direto necessário.")
	return b.String()
}

func level2AlertBody(lead repository.Lead, c Commitment) string {
	body := fmt.Sprintf("Lead %s (%s), compromisso %q estourado em %s, ainda sem atendimento.",
		displayName(lead), lead.Phone, Label(c.Type), c.Deadline.Format("02/01/2006 15:04"))
	if lead.TicketEstimate != nil {
		body += " Valor estimado: " + formatBRL(*lead.TicketEstimate) + "."
	}
	return body
}
