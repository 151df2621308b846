package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesops_backend/internal/alerts"
	"salesops_backend/internal/commitment"
	"salesops_backend/internal/crm"
	"salesops_backend/internal/email"
	"salesops_backend/internal/events"
	apphttp "salesops_backend/internal/http"
	"salesops_backend/internal/http/router"
	"salesops_backend/internal/intake"
	"salesops_backend/internal/leads"
	"salesops_backend/internal/notification"
	"salesops_backend/internal/sequence"
	"salesops_backend/internal/whatsapp"
	"salesops_backend/platform/clock"
	"salesops_backend/platform/config"
	"salesops_backend/platform/db"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	catalog, err := sequence.LoadCatalog(cfg.GetSequenceCatalogPath())
	if err != nil {
		log.Error("failed to load sequence catalog", "error", err)
		panic("failed to load sequence catalog: " + err.Error())
	}
	log.Info("sequence catalog loaded", "sequences", len(catalog.Sequences()))

	// Outbound integrations. Each constructor returns nil when its
	// configuration is absent; services treat a missing client as
	// delivered-to-log degraded mode.
	whatsappClient := whatsapp.NewClient(cfg, log)
	alertClient := alerts.NewClient(cfg, log)
	crmClient := crm.NewClient(cfg, log)
	emailSender := email.NewSender(cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule := leads.NewModule(pool, log)

	intakeModule := intake.NewModule(pool, leadsModule.Resolver(), eventBus, val, log)
	commitmentModule := commitment.NewModule(pool, leadsModule.Repository(), clock.System(), eventBus, commitment.SettingsFromConfig(cfg, cfg), val, log)
	sequenceModule := sequence.NewModule(pool, leadsModule.Repository(), catalog, clock.System(), eventBus, val, log)

	// Notification module subscribes to domain events
	notificationModule := notification.NewModule(pool, cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	// Wire the intake pipeline's follow-up actions
	intakeModule.SetCommitmentStarter(commitmentModule.Service())
	intakeModule.SetSequenceStarter(sequenceModule.Service())
	intakeModule.SetSequenceResponder(sequenceModule.Service())
	intakeModule.SetTeamNotifier(notificationModule)

	// Only wire clients that are actually configured: the services key
	// their degraded-mode logging off a nil interface.
	if whatsappClient != nil {
		commitmentModule.SetGroupMessenger(whatsappClient)
		sequenceModule.SetMessenger(whatsappClient)
		notificationModule.SetMessenger(whatsappClient)
	}
	if alertClient != nil {
		commitmentModule.SetAlertSender(alertClient)
		sequenceModule.SetAlertSender(alertClient)
	}
	if emailSender != nil {
		sequenceModule.SetEmailSender(emailSender)
	}
	if crmClient != nil {
		crmSyncer := crm.NewSyncer(crmClient, leadsModule.Repository(), cfg, log)
		intakeModule.SetCRMSyncer(crmSyncer)
		commitmentModule.SetDealStageUpdater(crmSyncer)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		KeyAuth:  intakeModule.KeyAuth(),
		Modules: []apphttp.Module{
			intakeModule,
			commitmentModule,
			sequenceModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
