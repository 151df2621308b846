// Package leads provides the lead bounded context: persistence, contact
// resolution, classification, and scoring.
package leads

import (
	"salesops_backend/internal/leads/repository"
	"salesops_backend/internal/leads/resolver"
	"salesops_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the lead services consumed by intake and the engines.
type Module struct {
	repo     *repository.Repository
	resolver *resolver.Service
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	repo := repository.New(pool)
	return &Module{
		repo:     repo,
		resolver: resolver.New(repo, log),
	}
}

// Repository returns the lead repository for external use.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Resolver returns the contact resolver service for external use.
func (m *Module) Resolver() *resolver.Service {
	return m.resolver
}
