package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesops_backend/internal/alerts"
	"salesops_backend/internal/commitment"
	"salesops_backend/internal/crm"
	"salesops_backend/internal/email"
	"salesops_backend/internal/events"
	"salesops_backend/internal/intake"
	"salesops_backend/internal/leads"
	"salesops_backend/internal/notification"
	"salesops_backend/internal/scheduler"
	"salesops_backend/internal/sequence"
	"salesops_backend/internal/whatsapp"
	"salesops_backend/platform/clock"
	"salesops_backend/platform/config"
	"salesops_backend/platform/db"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueue())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	catalog, err := sequence.LoadCatalog(cfg.GetSequenceCatalogPath())
	if err != nil {
		log.Error("failed to load sequence catalog", "error", err)
		panic("failed to load sequence catalog: " + err.Error())
	}

	whatsappClient := whatsapp.NewClient(cfg, log)
	alertClient := alerts.NewClient(cfg, log)
	crmClient := crm.NewClient(cfg, log)
	emailSender := email.NewSender(cfg, log)

	// The cycles run against the same module wiring as the API: a breach
	// detected here must escalate, alert and write the feed exactly as one
	// detected in-process would.
	leadsModule := leads.NewModule(pool, log)
	intakeModule := intake.NewModule(pool, leadsModule.Resolver(), eventBus, val, log)
	commitmentModule := commitment.NewModule(pool, leadsModule.Repository(), clock.System(), eventBus, commitment.SettingsFromConfig(cfg, cfg), val, log)
	sequenceModule := sequence.NewModule(pool, leadsModule.Repository(), catalog, clock.System(), eventBus, val, log)

	notificationModule := notification.NewModule(pool, cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	intakeModule.SetCommitmentStarter(commitmentModule.Service())
	intakeModule.SetSequenceStarter(sequenceModule.Service())
	intakeModule.SetSequenceResponder(sequenceModule.Service())
	intakeModule.SetTeamNotifier(notificationModule)

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

	worker, err := scheduler.NewWorker(cfg, commitmentModule.Service(), sequenceModule.Service(), intakeModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic schedule", "error", err)
		panic("failed to initialize periodic schedule: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return periodic.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped", "error", err)
		panic("scheduler stopped: " + err.Error())
	}
	log.Info("scheduler shut down cleanly")
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
