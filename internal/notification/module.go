package notification

import (
	"context"
	"fmt"
	"strings"

	"salesops_backend/internal/commitment"
	"salesops_backend/internal/events"
	apphttp "salesops_backend/internal/http"
	leadrepo "salesops_backend/internal/leads/repository"
	"salesops_backend/internal/sequence"
	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GroupMessenger posts messages to team chat groups.
// Satisfied by whatsapp.Client.
type GroupMessenger interface {
	SendGroupMessage(ctx context.Context, groupID, text string) error
}

// Module wires the notification feed: it subscribes to domain events,
// persists feed rows, serves the feed endpoints and implements the intake
// pipeline's TeamNotifier.
type Module struct {
	repo    *Repository
	service *Service
	handler *Handler
	log     *logger.Logger

	teamGroupID string
	messenger   GroupMessenger
}

// NewModule creates the notification module with its repository, service and
// HTTP handler.
func NewModule(pool *pgxpool.Pool, cfg config.WhatsAppConfig, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, log)
	return &Module{
		repo:        repo,
		service:     service,
		handler:     NewHandler(service),
		log:         log,
		teamGroupID: cfg.GetTeamGroupID(),
	}
}

// Name returns the module name.
func (m *Module) Name() string { return "notifications" }

// Service exposes the feed service.
func (m *Module) Service() *Service { return m.service }

// SetMessenger injects the group messaging client.
func (m *Module) SetMessenger(messenger GroupMessenger) { m.messenger = messenger }

// RegisterRoutes mounts the feed routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/notifications")
	group.GET("", m.handler.HandleList)
	group.GET("/unread", m.handler.HandleCountUnread)
	group.POST("/:id/read", m.handler.HandleMarkRead)
	group.POST("/read-all", m.handler.HandleMarkAllRead)
}

// RegisterHandlers subscribes the module to every event that feeds the
// dashboard.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.IntakeEventFailed{}.EventName(), m)
	bus.Subscribe(events.CommitmentBreached{}.EventName(), m)
	bus.Subscribe(events.CommitmentEscalated{}.EventName(), m)
	bus.Subscribe(events.SequenceCompleted{}.EventName(), m)
	bus.Subscribe(events.SequenceCancelled{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the feed. It never returns an error: the feed is
// an observer and must not bubble failures into publishers.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCreated:
		m.service.Record(ctx, CreateParams{
			Title:        "Novo lead recebido",
			Content:      newLeadFeedLine(e),
			ResourceID:   &e.LeadID,
			ResourceType: ResourceLead,
			Category:     CategoryInfo,
		})
	case events.IntakeEventFailed:
		m.service.Record(ctx, CreateParams{
			Title:        "Evento de entrada falhou",
			Content:      fmt.Sprintf("Evento de %s não pôde ser processado: %s", e.Source, e.Reason),
			ResourceID:   &e.EventID,
			ResourceType: ResourceInboundEvent,
			Category:     CategoryError,
		})
	case events.CommitmentBreached:
		m.service.Record(ctx, CreateParams{
			Title:        "Compromisso estourado",
			Content:      fmt.Sprintf("Prazo de %s venceu às %s.", commitment.Label(e.CommitmentType), e.Deadline.Format("02/01 15:04")),
			ResourceID:   &e.CommitmentID,
			ResourceType: ResourceCommitment,
			Category:     CategoryWarning,
		})
	case events.CommitmentEscalated:
		m.service.Record(ctx, CreateParams{
			Title:        "Compromisso escalonado",
			Content:      fmt.Sprintf("Nível %d: %s segue sem resposta.", e.Level, commitment.Label(e.CommitmentType)),
			ResourceID:   &e.CommitmentID,
			ResourceType: ResourceCommitment,
			Category:     CategoryError,
		})
	case events.SequenceCompleted:
		m.service.Record(ctx, CreateParams{
			Title:        "Sequência de follow-up concluída",
			Content:      fmt.Sprintf("Cadência %s terminou após %d envios sem resposta do lead.", e.SequenceKey, e.Steps),
			ResourceID:   &e.ExecutionID,
			ResourceType: ResourceSequence,
			Category:     CategoryInfo,
		})
	case events.SequenceCancelled:
		category := CategoryInfo
		if e.Reason == sequence.ReasonStale {
			category = CategoryWarning
		}
		m.service.Record(ctx, CreateParams{
			Title:        "Sequência de follow-up cancelada",
			Content:      fmt.Sprintf("Cadência %s cancelada: %s.", e.SequenceKey, cancelReasonText(e.Reason)),
			ResourceID:   &e.ExecutionID,
			ResourceType: ResourceSequence,
			Category:     category,
		})
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
	}
	return nil
}

// NotifyNewLead announces a new lead on the team WhatsApp group. Implements
// the intake pipeline's TeamNotifier.
func (m *Module) NotifyNewLead(ctx context.Context, lead leadrepo.Lead) error {
	if m.messenger == nil || m.teamGroupID == "" {
		m.log.Warn("team group messaging not configured, new lead stays in-app only",
			"leadId", lead.ID)
		return nil
	}
	return m.messenger.SendGroupMessage(ctx, m.teamGroupID, newLeadMessage(lead))
}

func newLeadFeedLine(e events.LeadCreated) string {
	name := e.Name
	if name == "" {
		name = "sem nome"
	}
	return fmt.Sprintf("%s (%s) chegou por %s. Score %.0f.", name, e.Phone, sourceLabel(e.Source), e.Score)
}

// newLeadMessage is the team group announcement. Short on purpose: it has
// to be readable on a phone between customers.
func newLeadMessage(lead leadrepo.Lead) string {
	var b strings.Builder
	b.WriteString("🔔 Novo lead: " + displayName(lead) + " (" + lead.Phone + ")\n")
	b.WriteString("Origem: " + sourceLabel(lead.Source) + " | Funil: " + funnelLabel(lead.Funnel) + "\n")
	b.WriteString(fmt.Sprintf("Score: %.0f", lead.Score))
	if lead.City != nil && *lead.City != "" {
		b.WriteString("\nCidade: " + *lead.City)
	}
	return b.String()
}

func cancelReasonText(reason string) string {
	if reason == sequence.ReasonStale {
		return "sem atividade por muito tempo"
	}
	return reason
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

func displayName(lead leadrepo.Lead) string {
	if lead.Name != nil && strings.TrimSpace(*lead.Name) != "" {
		return *lead.Name
	}
	return "sem nome"
}

var _ apphttp.Module = (*Module)(nil)
var _ events.Handler = (*Module)(nil)
