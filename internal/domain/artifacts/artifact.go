package artifacts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	KindSceneText      = "scene_text"
	KindEpisodePlan    = "episode_plan"
	KindLiveNovelJSON  = "live_novel_json"
	KindMovieTreatment = "movie_treatment"
	KindInteractiveMap = "interactive_map"
	KindAudiobook      = "audiobook"

	// Intermediate outputs of the video-to-book coordinator.
	KindTranscript     = "transcript"
	KindCleanText      = "clean_text"
	KindExtraction     = "knowledge_extraction"
	KindStyleNotes     = "style_notes"
	KindNarrativeDraft = "narrative_draft"
)

// Artifact is a persisted generator output. Either Payload or PayloadRef (blob path) is set.
type Artifact struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_artifact_project_kind,priority:1" json:"project_id"`
	Kind      string    `gorm:"type:text;not null;index:idx_artifact_project_kind,priority:2" json:"kind"`

	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	PayloadRef string         `gorm:"type:text;not null;default:''" json:"payload_ref,omitempty"`

	ProducedByTaskID *uuid.UUID `gorm:"type:uuid;index" json:"produced_by_task_id,omitempty"`
	// StageKey identifies the coordinator step that produced the artifact so reruns can resume.
	StageKey string `gorm:"type:text;not null;default:'';index" json:"stage_key,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Artifact) TableName() string { return "artifact" }

func (a *Artifact) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
