package orchestrator

import (
	"time"
)

type StageStatus string

const (
	StagePending      StageStatus = "pending"
	StageRunning      StageStatus = "running"
	StageWaitingChild StageStatus = "waiting_child"
	StageSucceeded    StageStatus = "succeeded"
	StageFailed       StageStatus = "failed"
	StageSkipped      StageStatus = "skipped"
)

type StageMode string

const (
	ModeInline StageMode = "inline"
	ModeChild  StageMode = "child"
)

type StageState struct {
	Name          string         `json:"name"`
	Mode          StageMode      `json:"mode"`
	Status        StageStatus    `json:"status"`
	Attempts      int            `json:"attempts"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	Outputs       map[string]any `json:"outputs,omitempty"`
	ChildTaskID   string         `json:"child_task_id,omitempty"`
	ChildKind     string         `json:"child_kind,omitempty"`
	ChildStatus   string         `json:"child_status,omitempty"`
	ChildProgress int            `json:"child_progress,omitempty"`
	NextRunAt     *time.Time     `json:"next_run_at,omitempty"`
}

// State is persisted in the coordinator task's result between yields.
type State struct {
	Version      int                    `json:"version"`
	Stages       map[string]*StageState `json:"stages"`
	WaitUntil    *time.Time             `json:"wait_until,omitempty"`
	LastProgress int                    `json:"last_progress"`
	Meta         map[string]any         `json:"meta,omitempty"`
}

func (s *State) ensure() {
	if s.Version <= 0 {
		s.Version = 1
	}
	if s.Stages == nil {
		s.Stages = map[string]*StageState{}
	}
	if s.Meta == nil {
		s.Meta = map[string]any{}
	}
}

func (s *State) EnsureStage(name string, mode StageMode) *StageState {
	s.ensure()
	ss := s.Stages[name]
	if ss == nil {
		ss = &StageState{Name: name, Mode: mode, Status: StagePending}
		s.Stages[name] = ss
	}
	if ss.Outputs == nil {
		ss.Outputs = map[string]any{}
	}
	if ss.Mode == "" {
		ss.Mode = mode
	}
	return ss
}

// Output returns a stage output by key, or nil.
func (s *State) Output(stage, key string) any {
	if s == nil || s.Stages[stage] == nil {
		return nil
	}
	return s.Stages[stage].Outputs[key]
}
