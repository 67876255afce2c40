package writing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EditKindAICorrection = "ai_correction"
	EditKindManualEdit   = "manual_edit"
	EditKindOther        = "other"
)

// UserEdit records one user change to generated or written text. Notes is free text
// ("make it shorter") and feeds the preference learner.
type UserEdit struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_user_edit_user_ts,priority:1" json:"user_id"`
	ProjectID *uuid.UUID `gorm:"type:uuid;index" json:"project_id,omitempty"`

	Kind         string         `gorm:"type:text;not null;index" json:"kind"`
	OriginalText string         `gorm:"type:text;not null;default:''" json:"original_text"`
	EditedText   string         `gorm:"type:text;not null;default:''" json:"edited_text"`
	Notes        string         `gorm:"type:text;not null;default:''" json:"notes"`
	ContextTags  datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"context_tags"`

	Timestamp time.Time `gorm:"column:edited_at;not null;index:idx_user_edit_user_ts,priority:2" json:"timestamp"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (UserEdit) TableName() string { return "user_edit" }

func (e *UserEdit) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = EditKindOther
	}
	return nil
}
