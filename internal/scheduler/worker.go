package scheduler

import (
	"context"
	"fmt"
	"time"

	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// CommitmentEngine is the slice of the commitment service the worker drives.
// Satisfied by *commitment.Service.
type CommitmentEngine interface {
	CheckBreaches(ctx context.Context) (int, error)
	RunEscalations(ctx context.Context) (int, error)
}

// SequenceEngine is the slice of the sequence service the worker drives.
// Satisfied by *sequence.Service.
type SequenceEngine interface {
	ProcessDue(ctx context.Context) (int, error)
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// IntakeReplayer reprocesses failed inbound events.
// Satisfied by *intake.Service.
type IntakeReplayer interface {
	ReprocessFailed(ctx context.Context, limit int) (int, error)
}

// Worker consumes cycle tasks and routes each to its engine.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger

	commitments CommitmentEngine
	sequences   SequenceEngine
	intake      IntakeReplayer

	staleAfter  time.Duration
	replayBatch int
}

// NewWorker creates the task consumer. Engines are constructed by the
// caller so the worker binary and the API share module wiring.
func NewWorker(
	cfg config.SchedulerConfig,
	commitments CommitmentEngine,
	sequences SequenceEngine,
	intake IntakeReplayer,
	log *logger.Logger,
) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server:      server,
		mux:         asynq.NewServeMux(),
		log:         log,
		commitments: commitments,
		sequences:   sequences,
		intake:      intake,
		staleAfter:  cfg.GetSequenceStaleAfter(),
		replayBatch: cfg.GetReplayBatch(),
	}

	w.mux.HandleFunc(TaskCheckBreaches, w.handleCheckBreaches)
	w.mux.HandleFunc(TaskRunEscalations, w.handleRunEscalations)
	w.mux.HandleFunc(TaskProcessDue, w.handleProcessDue)
	w.mux.HandleFunc(TaskSweepStale, w.handleSweepStale)
	w.mux.HandleFunc(TaskReplayFailed, w.handleReplayFailed)

	return w, nil
}

// Run serves tasks until the context is cancelled. A clean shutdown
// returns nil; a broker failure surfaces so the process can exit.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("scheduler worker: %w", err)
	}
	return nil
}

func (w *Worker) handleCheckBreaches(ctx context.Context, _ *asynq.Task) error {
	breached, err := w.commitments.CheckBreaches(ctx)
	if err != nil {
		return err
	}
	if breached > 0 {
		w.log.Info("breach check cycle done", "breached", breached)
	}
	return nil
}

func (w *Worker) handleRunEscalations(ctx context.Context, _ *asynq.Task) error {
	fired, err := w.commitments.RunEscalations(ctx)
	if err != nil {
		return err
	}
	if fired > 0 {
		w.log.Info("escalation cycle done", "fired", fired)
	}
	return nil
}

func (w *Worker) handleProcessDue(ctx context.Context, _ *asynq.Task) error {
	dispatched, err := w.sequences.ProcessDue(ctx)
	if err != nil {
		return err
	}
	if dispatched > 0 {
		w.log.Info("sequence dispatch cycle done", "dispatched", dispatched)
	}
	return nil
}

func (w *Worker) handleSweepStale(ctx context.Context, _ *asynq.Task) error {
	cancelled, err := w.sequences.SweepStale(ctx, w.staleAfter)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		w.log.Info("stale sweep cycle done", "cancelled", cancelled)
	}
	return nil
}

func (w *Worker) handleReplayFailed(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReplayFailedPayload(task)
	if err != nil {
		return err
	}

	limit := payload.Limit
	if limit < 1 {
		limit = w.replayBatch
	}

	replayed, err := w.intake.ReprocessFailed(ctx, limit)
	if err != nil {
		return err
	}
	if replayed > 0 {
		w.log.Info("replay cycle done", "replayed", replayed)
	}
	return nil
}
