package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	UKBStatusBuilding = "building"
	UKBStatusReady    = "ready"
)

// UnifiedKnowledgeBase is the per-project fusion of all source extractions.
// The entity table is canonical; the JSON columns here hold derived correlation output.
type UnifiedKnowledgeBase struct {
	ProjectID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"project_id"`
	Status     string    `gorm:"type:text;not null;index" json:"status"`
	Generation int       `gorm:"not null;default:0" json:"generation"`

	CorrelationResults datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"correlation_results"`
	ConfidenceScores   datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"confidence_scores"`
	Timeline           datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"timeline"`
	CharacterMapping   datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"character_mapping"`
	LocationMapping    datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"location_mapping"`
	CrossReferences    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"cross_references"`
	Themes             datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"themes"`

	BuiltByTaskID *uuid.UUID `gorm:"type:uuid" json:"built_by_task_id,omitempty"`
	BuiltAt       *time.Time `json:"built_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (UnifiedKnowledgeBase) TableName() string { return "unified_knowledge_base" }

type CrossReference struct {
	FromEntityID string  `json:"from_entity_id"`
	ToEntityID   string  `json:"to_entity_id"`
	Relation     string  `json:"relation"`
	Confidence   float64 `json:"confidence"`
}

type TimelineEntry struct {
	EventID  string `json:"event_id"`
	Title    string `json:"title"`
	Position string `json:"position"`
	// Timestamp is RFC3339 for date positions, empty otherwise.
	Timestamp string `json:"timestamp,omitempty"`
	Ordinal   *int   `json:"ordinal,omitempty"`
	Parsed    bool   `json:"parsed"`
}

type ConfidenceScores struct {
	Overall   float64            `json:"overall"`
	PerEntity map[string]float64 `json:"per_entity,omitempty"`
}

// Snapshot is one consistent read of a UKB: the row and the entities of its generation.
type Snapshot struct {
	UKB      *UnifiedKnowledgeBase `json:"ukb"`
	Entities []*KnowledgeEntity    `json:"entities"`
}

// ByKind returns the snapshot's entities of one kind in stored order.
func (s *Snapshot) ByKind(kind string) []*KnowledgeEntity {
	if s == nil {
		return nil
	}
	out := make([]*KnowledgeEntity, 0)
	for _, e := range s.Entities {
		if e != nil && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
