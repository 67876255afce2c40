package projects

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is the root aggregate; every source, entity, UKB, session and artifact hangs off it.
type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Title       string `gorm:"type:text;not null" json:"title"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`

	SourcesCount int `gorm:"not null;default:0" json:"sources_count"`
	// AnalysisProgress is kept in [0,1].
	AnalysisProgress float64 `gorm:"not null;default:0" json:"analysis_progress"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Project) TableName() string { return "project" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.AnalysisProgress = ClampUnit(p.AnalysisProgress)
	return nil
}

// ClampUnit pins v into [0,1]. NaN maps to 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
