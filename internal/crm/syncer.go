package crm

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"salesops_backend/internal/leads/repository"
	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadStore is the slice of the leads repository the syncer needs.
// Satisfied by *repository.Repository.
type LeadStore interface {
	SetCRMRefs(ctx context.Context, id uuid.UUID, contactID, dealID *string) error
	AddTimelineEntry(ctx context.Context, leadID uuid.UUID, entryType, description string, metadata map[string]any) error
}

// Syncer mirrors new leads into the CRM and moves their deals along the
// pipeline. It implements the intake pipeline's CRMSyncer hook and the
// commitment engine's DealStageUpdater hook.
type Syncer struct {
	client        *Client
	leads         LeadStore
	stageAttended string
	log           *logger.Logger
}

// NewSyncer creates a syncer over a live CRM client.
func NewSyncer(client *Client, leads LeadStore, cfg config.CRMConfig, log *logger.Logger) *Syncer {
	return &Syncer{
		client:        client,
		leads:         leads,
		stageAttended: cfg.GetCRMStageAttended(),
		log:           log,
	}
}

// SyncNewLead finds or creates the CRM contact behind the lead's phone,
// opens a deal, attaches the source note and stores the CRM references on
// the lead. Leads that already carry a deal reference are skipped.
func (s *Syncer) SyncNewLead(ctx context.Context, lead repository.Lead) error {
	if lead.CRMDealID != nil {
		s.log.Info("lead already synced to crm", "leadId", lead.ID, "dealId", *lead.CRMDealID)
		return nil
	}

	contact, err := s.client.FindContactByPhone(ctx, lead.Phone)
	if err != nil {
		return fmt.Errorf("contact lookup: %w", err)
	}
	if contact == nil {
		created, err := s.client.CreateContact(ctx, Contact{
			Name:  displayName(lead),
			Phone: lead.Phone,
			Email: deref(lead.Email),
		})
		if err != nil {
			return fmt.Errorf("contact creation: %w", err)
		}
		contact = &created
	}

	deal, err := s.client.CreateDeal(ctx, Deal{
		ContactID: contact.ID,
		Title:     dealTitle(lead),
		Value:     dealValue(lead),
	})
	if err != nil {
		return fmt.Errorf("deal creation: %w", err)
	}

	// The deal exists from here on; the rest is bookkeeping that must not
	// fail the sync.
	if err := s.client.AddDealNote(ctx, deal.ID, sourceNote(lead)); err != nil {
		s.log.Warn("deal note failed", "leadId", lead.ID, "dealId", deal.ID, "error", err)
	}
	if err := s.leads.SetCRMRefs(ctx, lead.ID, &contact.ID, &deal.ID); err != nil {
		s.log.Error("crm refs not stored, manual relink needed",
			"leadId", lead.ID, "contactId", contact.ID, "dealId", deal.ID, "error", err)
	}
	if err := s.leads.AddTimelineEntry(ctx, lead.ID, repository.EntryTypeCRMSynced,
		"Lead sincronizado com o CRM", map[string]any{
			"contactId": contact.ID,
			"dealId":    deal.ID,
		}); err != nil {
		s.log.Warn("lead timeline write failed", "leadId", lead.ID, "error", err)
	}

	s.log.Info("lead synced to crm",
		"leadId", lead.ID, "contactId", contact.ID, "dealId", deal.ID)
	return nil
}

// MarkDealAttended moves the lead's deal to the attended stage once first
// contact happened. A lead without a deal reference is skipped.
func (s *Syncer) MarkDealAttended(ctx context.Context, lead repository.Lead) error {
	if lead.CRMDealID == nil {
		s.log.Info("lead has no crm deal, stage move skipped", "leadId", lead.ID)
		return nil
	}

	if err := s.client.UpdateDealStage(ctx, *lead.CRMDealID, s.stageAttended); err != nil {
		return fmt.Errorf("deal stage update: %w", err)
	}

	s.log.Info("crm deal marked attended",
		"leadId", lead.ID, "dealId", *lead.CRMDealID, "stage", s.stageAttended)
	return nil
}

func dealTitle(lead repository.Lead) string {
	return displayName(lead) + " - " + sourceLabel(lead.Source)
}

func dealValue(lead repository.Lead) float64 {
	if lead.TicketEstimate == nil {
		return 0
	}
	return *lead.TicketEstimate
}

// sourceNote is the first deal note: where the lead came from and what the
// scoring saw, for the seller picking it up.
func sourceNote(lead repository.Lead) string {
	lines := []string{
		"Lead criado automaticamente pela entrada de leads.",
		"Origem: " + sourceLabel(lead.Source),
		"Funil: " + funnelLabel(lead.Funnel),
	}
	if q := deref(lead.Qualification); q != "" {
		lines = append(lines, "Qualificação: "+q)
	}
	if city := deref(lead.City); city != "" {
		lines = append(lines, "Cidade: "+city)
	}
	if stage := deref(lead.ProjectStage); stage != "" {
		lines = append(lines, "Fase da obra: "+stage)
	}
	if lead.TicketEstimate != nil {
		lines = append(lines, "Valor estimado: "+formatValue(*lead.TicketEstimate))
	}
	lines = append(lines, "Score: "+strconv.FormatFloat(lead.Score, 'f', -1, 64))
	return strings.Join(lines, "\n")
}

func sourceLabel(source string) string {
	switch source {
	case "meta_ads":
		return "Meta Ads"
	case "whatsapp":
		return "WhatsApp"
	default:
		return source
	}
}

func funnelLabel(funnel string) string {
	switch funnel {
	case "professional":
		return "profissional"
	case "end_consumer":
		return "consumidor final"
	default:
		return funnel
	}
}

func displayName(lead repository.Lead) string {
	if lead.Name != nil && strings.TrimSpace(*lead.Name) != "" {
		return *lead.Name
	}
	return "sem nome"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formatValue renders a deal value the way the sales team reads it:
// dot-separated thousands, no cents.
func formatValue(value float64) string {
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
