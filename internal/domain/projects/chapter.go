package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chapter is plain chapter prose produced by final narrative generation or written by the user.
type Chapter struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_chapter_project_pos,priority:1" json:"project_id"`
	Project   *Project  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"-"`

	Position int    `gorm:"not null;default:0;index:idx_chapter_project_pos,priority:2" json:"position"`
	Title    string `gorm:"type:text;not null;default:''" json:"title"`
	Content  string `gorm:"type:text;not null;default:''" json:"content"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Chapter) TableName() string { return "chapter" }

func (c *Chapter) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
