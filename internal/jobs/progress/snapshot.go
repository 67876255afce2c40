package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

// Public task states.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateRevoked   = "revoked"
)

// Snapshot is the informational status of a task as published by its handler.
type Snapshot struct {
	TaskID    uuid.UUID         `json:"task_id"`
	Kind      string            `json:"kind"`
	ProjectID *uuid.UUID        `json:"project_id,omitempty"`
	State     string            `json:"state"`
	Progress  int               `json:"progress_percent"`
	Step      string            `json:"step_name"`
	Message   string            `json:"message"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Error     *apperrors.Detail `json:"error,omitempty"`
	Seq       int64             `json:"seq"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func IsTerminal(state string) bool {
	switch state {
	case StateSucceeded, StateFailed, StateRevoked:
		return true
	}
	return false
}

// Store holds short-lived snapshots and carries cancellation notices between processes.
type Store interface {
	// Publish writes snap unless a snapshot with an equal or higher Seq is already stored.
	Publish(ctx context.Context, snap *Snapshot) error
	// Get returns nil, nil when no snapshot is stored (expired or never published).
	Get(ctx context.Context, taskID uuid.UUID) (*Snapshot, error)
	PublishCancel(ctx context.Context, taskID uuid.UUID) error
	// SubscribeCancel delivers task ids whose cancellation was requested until ctx ends.
	SubscribeCancel(ctx context.Context) (<-chan uuid.UUID, error)
}
