package artifacts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SeriesOutline struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`

	Title                 string `gorm:"type:text;not null;default:''" json:"title"`
	NumEpisodes           int    `gorm:"not null;default:0" json:"num_episodes"`
	TargetDurationMinutes int    `gorm:"not null;default:0" json:"target_duration_minutes"`

	ArtifactID       *uuid.UUID `gorm:"type:uuid" json:"artifact_id,omitempty"`
	ProducedByTaskID *uuid.UUID `gorm:"type:uuid;index" json:"produced_by_task_id,omitempty"`

	Episodes []*EpisodeOutline `gorm:"foreignKey:SeriesOutlineID" json:"episodes,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (SeriesOutline) TableName() string { return "series_outline" }

func (s *SeriesOutline) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type EpisodeOutline struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SeriesOutlineID uuid.UUID `gorm:"type:uuid;not null;index" json:"series_outline_id"`
	ProjectID       uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`

	Number      int            `gorm:"not null" json:"number"`
	Title       string         `gorm:"type:text;not null;default:''" json:"title"`
	Logline     string         `gorm:"type:text;not null;default:''" json:"logline"`
	Cliffhanger string         `gorm:"type:text;not null;default:''" json:"cliffhanger"`
	EventIDs    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"event_ids"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (EpisodeOutline) TableName() string { return "episode_outline" }

func (e *EpisodeOutline) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
