// Package intake provides the inbound event bounded context module.
// This file defines the module that encapsulates intake setup and route
// registration.
package intake

import (
	"salesops_backend/internal/events"
	apphttp "salesops_backend/internal/http"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the intake bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
	guard   *Guard
	service *Service
}

// NewModule creates and initializes the intake module with its core
// dependencies. Cross-module actions are injected afterwards via the Set
// methods, once all modules exist.
func NewModule(pool *pgxpool.Pool, leadResolver LeadResolver, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	guard := NewGuard(pool)
	service := NewService(guard, leadResolver, eventBus, log)
	handler := NewHandler(service, repo, val)

	return &Module{
		handler: handler,
		repo:    repo,
		guard:   guard,
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "intake"
}

// Service exposes the pipeline for the scheduler worker and the replay CLI.
func (m *Module) Service() *Service {
	return m.service
}

// KeyAuth returns the API-key middleware guarding the protected route group.
// The intake module owns the key store, so the router borrows the middleware
// from here.
func (m *Module) KeyAuth() gin.HandlerFunc {
	return APIKeyAuthMiddleware(m.repo)
}

// SetCommitmentStarter injects the commitment engine.
func (m *Module) SetCommitmentStarter(starter CommitmentStarter) { m.service.SetCommitmentStarter(starter) }

// SetSequenceStarter injects the sequence engine's start path.
func (m *Module) SetSequenceStarter(starter SequenceStarter) { m.service.SetSequenceStarter(starter) }

// SetSequenceResponder injects the sequence engine's reply path.
func (m *Module) SetSequenceResponder(responder SequenceResponder) { m.service.SetSequenceResponder(responder) }

// SetCRMSyncer injects the CRM synchronization client.
func (m *Module) SetCRMSyncer(syncer CRMSyncer) { m.service.SetCRMSyncer(syncer) }

// SetTeamNotifier injects the team channel notifier.
func (m *Module) SetTeamNotifier(notifier TeamNotifier) { m.service.SetTeamNotifier(notifier) }

// RegisterRoutes mounts intake routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public webhook endpoints (API key auth, stricter rate limit)
	webhookGroup := ctx.V1.Group("/webhook")
	webhookGroup.Use(ctx.WebhookRateLimiter.RateLimit())
	webhookGroup.Use(APIKeyAuthMiddleware(m.repo))
	webhookGroup.POST("/events", m.handler.HandleEvent)
	webhookGroup.POST("/meta-leads", m.handler.HandleMetaLead)
	webhookGroup.POST("/messages", m.handler.HandleMessage)

	// Admin key management and replay (admin key auth)
	adminGroup := ctx.Admin.Group("/intake")
	adminGroup.POST("/keys", m.handler.HandleCreateAPIKey)
	adminGroup.GET("/keys", m.handler.HandleListAPIKeys)
	adminGroup.DELETE("/keys/:keyId", m.handler.HandleRevokeAPIKey)
	adminGroup.POST("/replay", m.handler.HandleReplay)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
