package writing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WritingSession struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`

	StartedAt time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	WordsWritten         int      `gorm:"not null;default:0" json:"words_written"`
	EditsMade            int      `gorm:"not null;default:0" json:"edits_made"`
	ActiveSeconds        int      `gorm:"not null;default:0" json:"active_seconds"`
	QualityScoreSnapshot *float64 `json:"quality_score_snapshot,omitempty"`
	StageSnapshot        string   `gorm:"type:text;not null;default:''" json:"stage_snapshot"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (WritingSession) TableName() string { return "writing_session" }

func (s *WritingSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	return nil
}
