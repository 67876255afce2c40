package generators

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/narrative/preferences"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type ThreeActStructure struct {
	Act1 string `json:"act1"`
	Act2 string `json:"act2"`
	Act3 string `json:"act3"`
}

type Treatment struct {
	Title             string            `json:"title"`
	Genre             string            `json:"genre"`
	Logline           string            `json:"logline"`
	MainCharacters    []string          `json:"mainCharacters"`
	ThreeActStructure ThreeActStructure `json:"threeActStructure"`
	KeyScenes         []string          `json:"keyScenes"`
}

type TreatmentGenerator struct {
	llm       LLM
	assembler *prompts.Assembler
	log       *logger.Logger
}

func NewTreatmentGenerator(log *logger.Logger, llm LLM, assembler *prompts.Assembler) *TreatmentGenerator {
	if log == nil {
		log = logger.NewNop()
	}
	return &TreatmentGenerator{llm: llm, assembler: assembler, log: log.With("component", "TreatmentGenerator")}
}

func treatmentSchema() map[string]any {
	str := map[string]any{"type": "string"}
	strList := map[string]any{"type": "array", "items": str}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":          str,
			"genre":          str,
			"logline":        str,
			"mainCharacters": strList,
			"threeActStructure": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"act1": str,
					"act2": str,
					"act3": str,
				},
				"required":             []string{"act1", "act2", "act3"},
				"additionalProperties": false,
			},
			"keyScenes": strList,
		},
		"required":             []string{"title", "genre", "logline", "mainCharacters", "threeActStructure", "keyScenes"},
		"additionalProperties": false,
	}
}

func (g *TreatmentGenerator) Generate(ctx context.Context, titleHint string, snap *types.UKBSnapshot, prefs preferences.Preferences) (*Treatment, error) {
	if g.llm == nil || g.assembler == nil {
		return nil, fmt.Errorf("%w: treatment generator needs an llm and prompt templates", apperrors.ErrDependencyMissing)
	}
	p, err := g.assembler.Assemble(prompts.TargetMovieTreatment, prompts.Request{TitleHint: titleHint}, snap, prefs)
	if err != nil {
		return nil, err
	}
	obj, err := g.llm.GenerateJSON(ctx, p.System, p.User, "movie_treatment", treatmentSchema())
	if err != nil {
		return nil, err
	}
	t := TreatmentFromMap(obj)
	if t.Title == "" {
		t.Title = strings.TrimSpace(titleHint)
	}
	return t, nil
}

// TreatmentFromMap reads a model reply leniently: act structure may come as an object,
// a list of acts, or plain text.
func TreatmentFromMap(m map[string]any) *Treatment {
	t := &Treatment{
		Title:          strings.TrimSpace(firstString(m, "title")),
		Genre:          strings.TrimSpace(firstString(m, "genre")),
		Logline:        strings.TrimSpace(firstString(m, "logline")),
		MainCharacters: asStrings(m["mainCharacters"]),
		KeyScenes:      asStrings(m["keyScenes"]),
	}
	if len(t.MainCharacters) == 0 {
		t.MainCharacters = asStrings(m["main_characters"])
	}
	if len(t.KeyScenes) == 0 {
		t.KeyScenes = asStrings(m["key_scenes"])
	}
	acts := m["threeActStructure"]
	if acts == nil {
		acts = m["three_act_structure"]
	}
	switch v := acts.(type) {
	case map[string]any:
		t.ThreeActStructure = ThreeActStructure{
			Act1: firstString(v, "act1", "act_1", "setup"),
			Act2: firstString(v, "act2", "act_2", "confrontation"),
			Act3: firstString(v, "act3", "act_3", "resolution"),
		}
	case []any:
		list := asStrings(v)
		for i, s := range list {
			switch i {
			case 0:
				t.ThreeActStructure.Act1 = s
			case 1:
				t.ThreeActStructure.Act2 = s
			case 2:
				t.ThreeActStructure.Act3 = s
			}
		}
	case string:
		t.ThreeActStructure.Act1 = v
	}
	return t
}
