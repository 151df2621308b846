package scheduler

import (
	"context"
	"fmt"
	"time"

	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic registers the recurring cycles with the broker and keeps
// enqueueing them on schedule. Entries live with the process: a restart
// registers them fresh, so changing an interval only needs a redeploy.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

// NewPeriodic builds the schedule from configuration.
func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	queue := asynq.Queue(queueName(cfg))
	entries := []struct {
		every time.Duration
		task  *asynq.Task
	}{
		{cfg.GetBreachCheckInterval(), NewCheckBreachesTask()},
		{cfg.GetEscalationInterval(), NewRunEscalationsTask()},
		{cfg.GetSequenceInterval(), NewProcessDueTask()},
		{cfg.GetStaleSweepInterval(), NewSweepStaleTask()},
		{cfg.GetReplayInterval(), asynq.NewTask(TaskReplayFailed, nil)},
	}

	for _, entry := range entries {
		spec := "@every " + entry.every.String()
		if _, err := scheduler.Register(spec, entry.task, queue); err != nil {
			return nil, fmt.Errorf("register %s: %w", entry.task.Type(), err)
		}
		log.Info("periodic task registered", "task", entry.task.Type(), "every", entry.every)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

// Run keeps the schedule alive until the context is cancelled. A clean
// shutdown returns nil; a broker failure surfaces so the process can exit.
func (p *Periodic) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.log.Info("stopping periodic scheduler")
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		return fmt.Errorf("periodic scheduler: %w", err)
	}
	return nil
}
