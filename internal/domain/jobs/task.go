package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Stored task statuses. "queued" surfaces as "pending" to callers.
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
	TaskRevoked   = "revoked"
)

// Task is the durable queue row owned by the task substrate. It references a project weakly.
type Task struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        string     `gorm:"column:kind;type:text;not null;index" json:"kind"`
	ProjectID   *uuid.UUID `gorm:"type:uuid;index" json:"project_id,omitempty"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;index" json:"owner_user_id"`
	ParentID    *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	DedupeKey   string     `gorm:"type:text;not null;default:'';index" json:"dedupe_key,omitempty"`

	Status          string         `gorm:"type:text;not null;index" json:"status"`
	Stage           string         `gorm:"type:text;not null;default:''" json:"stage"`
	Progress        int            `gorm:"not null;default:0" json:"progress"`
	Message         string         `gorm:"type:text;not null;default:''" json:"message"`
	Attempts        int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts     int            `gorm:"not null;default:1" json:"max_attempts"`
	Seq             int64          `gorm:"not null;default:0" json:"seq"`
	CancelRequested bool           `gorm:"not null;default:false" json:"cancel_requested"`
	ErrorDetail     datatypes.JSON `gorm:"type:jsonb" json:"error_detail,omitempty"`

	Payload datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Result  datatypes.JSON `gorm:"type:jsonb" json:"result"`

	LockedAt    *time.Time `gorm:"index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"index" json:"last_error_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Task) TableName() string { return "task_run" }

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TaskQueued
	}
	if t.MaxAttempts < 1 {
		t.MaxAttempts = 1
	}
	return nil
}

// IsTerminal reports whether status is final.
func IsTerminal(status string) bool {
	switch status {
	case TaskSucceeded, TaskFailed, TaskRevoked:
		return true
	}
	return false
}
