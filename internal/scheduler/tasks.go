package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskPaymentSweep = "payments.sweep"

const TaskReprojectJob = "jobs.reproject"

type ReprojectJobPayload struct {
	JobID int64 `json:"jobId"`
}

func NewPaymentSweepTask() *asynq.Task {
	return asynq.NewTask(TaskPaymentSweep, nil)
}

func NewReprojectJobTask(payload ReprojectJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReprojectJob, data), nil
}

func ParseReprojectJobPayload(task *asynq.Task) (ReprojectJobPayload, error) {
	var payload ReprojectJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReprojectJobPayload{}, err
	}
	return payload, nil
}
