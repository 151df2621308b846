// Package scheduler runs the background cycles that keep commitments and
// sequences honest: breach checks, escalations, due-step dispatch, stale
// sweeps and failed-event replay. Cycles are asynq tasks registered on a
// periodic schedule; a separate worker process consumes them.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task names. The sweep cycles carry no payload: what to sweep and how hard
// comes from configuration on the worker side.
const (
	TaskCheckBreaches  = "commitments.check_breaches"
	TaskRunEscalations = "commitments.run_escalations"
	TaskProcessDue     = "sequences.process_due"
	TaskSweepStale     = "sequences.sweep_stale"
	TaskReplayFailed   = "intake.replay_failed"
)

// ReplayFailedPayload bounds one replay batch. A zero limit means the
// worker's configured default.
type ReplayFailedPayload struct {
	Limit int `json:"limit"`
}

func NewCheckBreachesTask() *asynq.Task  { return asynq.NewTask(TaskCheckBreaches, nil) }
func NewRunEscalationsTask() *asynq.Task { return asynq.NewTask(TaskRunEscalations, nil) }
func NewProcessDueTask() *asynq.Task     { return asynq.NewTask(TaskProcessDue, nil) }
func NewSweepStaleTask() *asynq.Task     { return asynq.NewTask(TaskSweepStale, nil) }

func NewReplayFailedTask(payload ReplayFailedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReplayFailed, data), nil
}

func ParseReplayFailedPayload(task *asynq.Task) (ReplayFailedPayload, error) {
	// Periodic registrations enqueue the task with no payload at all.
	if len(task.Payload()) == 0 {
		return ReplayFailedPayload{}, nil
	}
	var payload ReplayFailedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReplayFailedPayload{}, err
	}
	return payload, nil
}
