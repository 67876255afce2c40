package taskrun

import "time"

const (
	WorkflowName = "task_run"
	ActivityTick = "task_run_tick"
)

type TickResult struct {
	TaskID    string     `json:"task_id"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage,omitempty"`
	Progress  int        `json:"progress,omitempty"`
	Message   string     `json:"message,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
	WaitUntil *time.Time `json:"wait_until,omitempty"`
}
