package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskRoutingSweep is the asynq task type for a manually triggered sweep.
const TaskRoutingSweep = "routing.sweep"

// SweepPayload carries the origin of a manual sweep request.
type SweepPayload struct {
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

// NewSweepTask builds the asynq task for a sweep request.
func NewSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoutingSweep, data), nil
}

// ParseSweepPayload decodes a sweep task payload.
func ParseSweepPayload(task *asynq.Task) (SweepPayload, error) {
	var payload SweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SweepPayload{}, err
	}
	return payload, nil
}
