package projects

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SourceKindVideo = "video"
	SourceKindAudio = "audio"
	SourceKindPDF   = "pdf"
	SourceKindImage = "image"
	SourceKindText  = "text"
)

const (
	SourceStatusUploaded   = "uploaded"
	SourceStatusProcessing = "processing"
	SourceStatusAnalyzed   = "analyzed"
	SourceStatusError      = "error"
)

// Source is one uploaded witness artifact. Stored bytes are immutable after upload.
type Source struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Project   *Project  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"-"`

	DisplayName string `gorm:"type:text;not null" json:"display_name"`
	StoragePath string `gorm:"type:text;not null" json:"storage_path"`
	Kind        string `gorm:"type:text;not null;index" json:"kind"`
	SizeBytes   int64  `gorm:"not null;default:0" json:"size_bytes"`
	MimeType    string `gorm:"type:text;not null;default:''" json:"mime_type"`
	Status      string `gorm:"type:text;not null;index" json:"status"`

	AnalysisResult datatypes.JSON `gorm:"type:jsonb" json:"analysis_result,omitempty"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	AnalyzedAt *time.Time     `json:"analyzed_at,omitempty"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Source) TableName() string { return "source" }

func (s *Source) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SourceStatusUploaded
	}
	return nil
}

func IsSourceKind(kind string) bool {
	switch kind {
	case SourceKindVideo, SourceKindAudio, SourceKindPDF, SourceKindImage, SourceKindText:
		return true
	}
	return false
}

// InferSourceKind guesses the kind from a MIME type first, then the file extension.
// Returns "" when neither is recognized.
func InferSourceKind(filename, mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "video/"):
		return SourceKindVideo
	case strings.HasPrefix(mt, "audio/"):
		return SourceKindAudio
	case mt == "application/pdf":
		return SourceKindPDF
	case strings.HasPrefix(mt, "image/"):
		return SourceKindImage
	case strings.HasPrefix(mt, "text/"):
		return SourceKindText
	}
	name := strings.ToLower(filename)
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	switch name[idx+1:] {
	case "mp4", "mov", "mkv", "webm", "avi":
		return SourceKindVideo
	case "mp3", "wav", "m4a", "ogg", "flac", "aac", "opus":
		return SourceKindAudio
	case "pdf":
		return SourceKindPDF
	case "png", "jpg", "jpeg", "webp", "tif", "tiff", "bmp", "gif":
		return SourceKindImage
	case "txt", "md", "markdown":
		return SourceKindText
	}
	return ""
}
