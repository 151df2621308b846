// Package commitment provides the response commitment bounded context
// module. This file defines the module that encapsulates commitment setup
// and route registration.
package commitment

import (
	"salesops_backend/internal/events"
	apphttp "salesops_backend/internal/http"
	"salesops_backend/platform/clock"
	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the commitment bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
	service *Service
}

// SettingsFromConfig builds engine settings from the escalation and
// messaging configuration.
func SettingsFromConfig(esc config.EscalationConfig, wa config.WhatsAppConfig) Settings {
	return Settings{
		Level1After:          esc.GetEscalationLevel1After(),
		Level2After:          esc.GetEscalationLevel2After(),
		TeamGroupID:          wa.GetTeamGroupID(),
		EscalationGroupID:    esc.GetEscalationGroupID(),
		DirectContactGroupID: esc.GetDirectContactGroupID(),
	}
}

// NewModule creates and initializes the commitment module with its core
// dependencies. Messaging, alerting and CRM integrations are injected
// afterwards via the Set methods, once all modules exist.
func NewModule(pool *pgxpool.Pool, leads LeadDirectory, clk clock.Clock, eventBus events.Bus, settings Settings, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, leads, clk, eventBus, settings, log)
	handler := NewHandler(service, val)

	return &Module{
		handler: handler,
		repo:    repo,
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "commitments"
}

// Service exposes the engine for the scheduler worker and cross-module
// wiring.
func (m *Module) Service() *Service {
	return m.service
}

// SetGroupMessenger injects the group messaging client.
func (m *Module) SetGroupMessenger(messenger GroupMessenger) { m.service.SetGroupMessenger(messenger) }

// SetAlertSender injects the operational alert client.
func (m *Module) SetAlertSender(alerts AlertSender) { m.service.SetAlertSender(alerts) }

// SetDealStageUpdater injects the CRM deal stage client.
func (m *Module) SetDealStageUpdater(crm DealStageUpdater) { m.service.SetDealStageUpdater(crm) }

// RegisterRoutes mounts commitment routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/commitments")
	group.POST("/complete", m.handler.HandleComplete)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
