package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesops_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type fakeCommitments struct {
	breached int
	fired    int
	err      error
}

func (f *fakeCommitments) CheckBreaches(_ context.Context) (int, error)  { return f.breached, f.err }
func (f *fakeCommitments) RunEscalations(_ context.Context) (int, error) { return f.fired, f.err }

type fakeSequences struct {
	dispatched   int
	cancelled    int
	gotOlderThan time.Duration
	err          error
}

func (f *fakeSequences) ProcessDue(_ context.Context) (int, error) { return f.dispatched, f.err }

func (f *fakeSequences) SweepStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.gotOlderThan = olderThan
	return f.cancelled, f.err
}

type fakeIntake struct {
	replayed int
	gotLimit int
	err      error
}

func (f *fakeIntake) ReprocessFailed(_ context.Context, limit int) (int, error) {
	f.gotLimit = limit
	return f.replayed, f.err
}

func testWorker(commitments *fakeCommitments, sequences *fakeSequences, intake *fakeIntake) *Worker {
	return &Worker{
		log:         logger.New("development"),
		commitments: commitments,
		sequences:   sequences,
		intake:      intake,
		staleAfter:  48 * time.Hour,
		replayBatch: 20,
	}
}

func TestHandleSweepStalePassesConfiguredWindow(t *testing.T) {
	sequences := &fakeSequences{cancelled: 2}
	w := testWorker(&fakeCommitments{}, sequences, &fakeIntake{})

	if err := w.handleSweepStale(context.Background(), NewSweepStaleTask()); err != nil {
		t.Fatalf("handleSweepStale: %v", err)
	}
	if sequences.gotOlderThan != 48*time.Hour {
		t.Errorf("olderThan = %v, want the configured stale window", sequences.gotOlderThan)
	}
}

func TestHandleReplayUsesPayloadLimit(t *testing.T) {
	intake := &fakeIntake{replayed: 3}
	w := testWorker(&fakeCommitments{}, &fakeSequences{}, intake)

	task, err := NewReplayFailedTask(ReplayFailedPayload{Limit: 5})
	if err != nil {
		t.Fatalf("NewReplayFailedTask: %v", err)
	}
	if err := w.handleReplayFailed(context.Background(), task); err != nil {
		t.Fatalf("handleReplayFailed: %v", err)
	}
	if intake.gotLimit != 5 {
		t.Errorf("limit = %d, want 5 from the payload", intake.gotLimit)
	}
}

func TestHandleReplayDefaultsLimitForBareTasks(t *testing.T) {
	intake := &fakeIntake{}
	w := testWorker(&fakeCommitments{}, &fakeSequences{}, intake)

	err := w.handleReplayFailed(context.Background(), asynq.NewTask(TaskReplayFailed, nil))
	if err != nil {
		t.Fatalf("handleReplayFailed: %v", err)
	}
	if intake.gotLimit != 20 {
		t.Errorf("limit = %d, want the configured batch", intake.gotLimit)
	}
}

func TestHandlersPropagateEngineErrors(t *testing.T) {
	engineErr := errors.New("db down")
	w := testWorker(
		&fakeCommitments{err: engineErr},
		&fakeSequences{err: engineErr},
		&fakeIntake{err: engineErr},
	)

	handlers := map[string]func(context.Context, *asynq.Task) error{
		TaskCheckBreaches:  w.handleCheckBreaches,
		TaskRunEscalations: w.handleRunEscalations,
		TaskProcessDue:     w.handleProcessDue,
		TaskSweepStale:     w.handleSweepStale,
		TaskReplayFailed:   w.handleReplayFailed,
	}
	for name, handler := range handlers {
		if err := handler(context.Background(), asynq.NewTask(name, nil)); !errors.Is(err, engineErr) {
			t.Errorf("%s: err = %v, want the engine error so asynq retries", name, err)
		}
	}
}

func TestParseReplayFailedPayload(t *testing.T) {
	task, err := NewReplayFailedTask(ReplayFailedPayload{Limit: 7})
	if err != nil {
		t.Fatalf("NewReplayFailedTask: %v", err)
	}
	payload, err := ParseReplayFailedPayload(task)
	if err != nil || payload.Limit != 7 {
		t.Fatalf("payload = %+v, err = %v", payload, err)
	}

	payload, err = ParseReplayFailedPayload(asynq.NewTask(TaskReplayFailed, nil))
	if err != nil || payload.Limit != 0 {
		t.Fatalf("bare task payload = %+v, err = %v", payload, err)
	}

	if _, err := ParseReplayFailedPayload(asynq.NewTask(TaskReplayFailed, []byte("not json"))); err == nil {
		t.Fatal("garbage payload should not parse")
	}
}
