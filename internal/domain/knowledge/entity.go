package knowledge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	KindCharacter = "character"
	KindPlace     = "place"
	KindEvent     = "event"
	KindClaim     = "claim"
)

// Kinds lists entity kinds in the order correlation and rendering iterate them.
var Kinds = []string{KindCharacter, KindPlace, KindEvent, KindClaim}

// KnowledgeEntity is the tagged-variant row for characters, places, events and claims.
// Variant-only columns are left zero/nil for other kinds. Rows belong to exactly one UKB
// generation and are replaced wholesale on recorrelation.
type KnowledgeEntity struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_knowledge_entity_identity,priority:1" json:"project_id"`
	Generation int       `gorm:"not null;default:0;index" json:"generation"`

	Kind           string `gorm:"type:text;not null;index;uniqueIndex:idx_knowledge_entity_identity,priority:2" json:"kind"`
	Name           string `gorm:"type:text;not null" json:"name"`
	NormalizedName string `gorm:"type:text;not null;uniqueIndex:idx_knowledge_entity_identity,priority:3" json:"normalized_name"`

	Aliases        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"aliases"`
	Description    string         `gorm:"type:text;not null;default:''" json:"description"`
	ColorTag       string         `gorm:"type:text;not null;default:''" json:"color_tag,omitempty"`
	LinkURL        string         `gorm:"type:text;not null;default:''" json:"link_url,omitempty"`
	IsExternalLink bool           `gorm:"not null;default:false" json:"is_external_link"`
	ImageURL       string         `gorm:"type:text;not null;default:''" json:"image_url,omitempty"`

	// Character
	Role string `gorm:"type:text;not null;default:''" json:"role,omitempty"`

	// Place
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Significance string   `gorm:"type:text;not null;default:''" json:"significance,omitempty"`

	// Event
	TimelinePosition    string         `gorm:"type:text;not null;default:''" json:"timeline_position,omitempty"`
	RelatedCharacterIDs datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"related_character_ids"`

	// Claim
	Evidence         string   `gorm:"type:text;not null;default:''" json:"evidence,omitempty"`
	ReliabilityScore *float64 `json:"reliability_score,omitempty"`
	ClaimSource      string   `gorm:"type:text;not null;default:''" json:"claim_source,omitempty"`

	Confidence   float64        `gorm:"not null;default:0" json:"confidence"`
	MentionCount int            `gorm:"not null;default:0" json:"mention_count"`
	SourceIDs    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"source_ids"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (KnowledgeEntity) TableName() string { return "knowledge_entity" }

func (e *KnowledgeEntity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// AliasList decodes Aliases; malformed JSON yields nil.
func (e *KnowledgeEntity) AliasList() []string {
	return decodeStrings(e.Aliases)
}

func (e *KnowledgeEntity) SourceIDList() []string {
	return decodeStrings(e.SourceIDs)
}

func (e *KnowledgeEntity) RelatedCharacterIDList() []string {
	return decodeStrings(e.RelatedCharacterIDs)
}

// ValidCoordinates reports whether both coordinates are set and inside WGS84 ranges.
func (e *KnowledgeEntity) ValidCoordinates() bool {
	if e == nil || e.Latitude == nil || e.Longitude == nil {
		return false
	}
	return ValidLatLng(*e.Latitude, *e.Longitude)
}

func ValidLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// EncodeStrings marshals a string list for jsonb columns; nil encodes as [].
func EncodeStrings(in []string) datatypes.JSON {
	if in == nil {
		in = []string{}
	}
	b, _ := json.Marshal(in)
	return datatypes.JSON(b)
}
