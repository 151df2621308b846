// Package sequence provides the follow-up sequence bounded context module.
// This file defines the module that encapsulates sequence setup and route
// registration.
package sequence

import (
	"salesops_backend/internal/events"
	apphttp "salesops_backend/internal/http"
	"salesops_backend/platform/clock"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the sequence bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
	service *Service
}

// NewModule creates and initializes the sequence module with its core
// dependencies. Messaging, email and alerting integrations are injected
// afterwards via the Set methods, once all modules exist.
func NewModule(pool *pgxpool.Pool, leads LeadDirectory, catalog *Catalog, clk clock.Clock, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, leads, catalog, clk, eventBus, log)
	handler := NewHandler(service, val)

	return &Module{
		handler: handler,
		repo:    repo,
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sequences"
}

// Service exposes the engine for the scheduler worker and cross-module
// wiring.
func (m *Module) Service() *Service {
	return m.service
}

// SetMessenger injects the WhatsApp messaging client.
func (m *Module) SetMessenger(messenger Messenger) { m.service.SetMessenger(messenger) }

// SetEmailSender injects the email delivery client.
func (m *Module) SetEmailSender(email EmailSender) { m.service.SetEmailSender(email) }

// SetAlertSender injects the operational alert client.
func (m *Module) SetAlertSender(alerts AlertSender) { m.service.SetAlertSender(alerts) }

// RegisterRoutes mounts sequence routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/sequences")
	group.POST("/cancel", m.handler.HandleCancel)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
