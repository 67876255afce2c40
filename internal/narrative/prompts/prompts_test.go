package prompts

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/narrative/preferences"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

func ent(project uuid.UUID, kind, name string, aliases ...string) *types.KnowledgeEntity {
	return &types.KnowledgeEntity{
		ID:             uuid.New(),
		ProjectID:      project,
		Kind:           kind,
		Name:           name,
		NormalizedName: strings.ToLower(name),
		Aliases:        types.EncodeStrings(aliases),
	}
}

func snapshot(project uuid.UUID, themes []string, ents ...*types.KnowledgeEntity) *types.UKBSnapshot {
	b, _ := json.Marshal(themes)
	return &types.UKBSnapshot{
		UKB:      &types.UnifiedKnowledgeBase{ProjectID: project, Status: types.UKBReady, Themes: datatypes.JSON(b), Timeline: datatypes.JSON([]byte("[]"))},
		Entities: ents,
	}
}

func mustAssembler(t *testing.T) *Assembler {
	t.Helper()
	a, err := NewAssembler()
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	return a
}

func TestAssembleSceneUsesUKBSlices(t *testing.T) {
	project := uuid.New()
	yusuf := ent(project, types.EntityCharacter, "Yusuf", "Joseph", "Yousef", "Youssef", "Yosef")
	yusuf.Role = "protagonist"
	yusuf.Description = "a dreamer sold by his brothers"
	egypt := ent(project, types.EntityPlace, "Egypt")
	egypt.Description = "the land of the Nile"
	egypt.Significance = "place of exile"
	snap := snapshot(project, []string{"betrayal and forgiveness", "dreams", "family betrayal", "exile", "brotherly betrayal"}, yusuf, egypt)

	p, err := mustAssembler(t).Assemble(TargetScene, Request{
		SceneType:          SceneTypeNew,
		MainCharacterNames: []string{"joseph", "Nobody"},
		SettingName:        "EGYPT",
		Conflict:           "the brothers arrive",
		EmotionalTone:      "betrayal",
	}, snap, preferences.Default())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, want := range []string{
		"Write a new scene.",
		"- Yusuf (protagonist): a dreamer sold by his brothers Also known as: Joseph, Yousef, Youssef.",
		"Setting: Egypt. the land of the Nile Significance: place of exile",
		"Central conflict: the brothers arrive",
		"Themes to echo: betrayal and forgiveness; family betrayal; brotherly betrayal",
		"Output: raw scene prose only.",
	} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p.User)
		}
	}
	if strings.Contains(p.User, "Nobody") || strings.Contains(p.User, "Yosef") {
		t.Fatalf("prompt leaked an unknown name or a fourth alias:\n%s", p.User)
	}
	if strings.Contains(p.User, "dreams") {
		t.Fatalf("theme not matching tone was included:\n%s", p.User)
	}
	if p.Mode != "text" || p.System == "" {
		t.Fatalf("mode=%q system=%q", p.Mode, p.System)
	}
	if !strings.HasSuffix(p.User, "No title, no headings, no commentary.") {
		t.Fatalf("output instruction must come last:\n%s", p.User)
	}
}

func TestAssembleNeverRendersForeignProjectEntities(t *testing.T) {
	project := uuid.New()
	foreign := ent(uuid.New(), types.EntityCharacter, "Intruder")
	snap := snapshot(project, nil, foreign, ent(project, types.EntityCharacter, "Local"))

	p, err := mustAssembler(t).Assemble(TargetScene, Request{MainCharacterNames: []string{"Intruder", "Local"}}, snap, preferences.Default())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if strings.Contains(p.User, "Intruder") {
		t.Fatalf("foreign entity rendered:\n%s", p.User)
	}
	if !strings.Contains(p.User, "- Local") {
		t.Fatalf("local entity missing:\n%s", p.User)
	}

	p, err = mustAssembler(t).Assemble(TargetScene, Request{MainCharacterNames: []string{"Local"}}, nil, preferences.Default())
	if err != nil || strings.Contains(p.User, "Characters:") {
		t.Fatalf("nil snapshot must render no entities: %v\n%s", err, p.User)
	}
}

func TestSteeringSuppression(t *testing.T) {
	short := preferences.Preferences{Tone: preferences.ToneInformal, Length: preferences.LengthShort}
	long := preferences.Preferences{Tone: preferences.ToneNeutral, Length: preferences.LengthLong}
	cases := []struct {
		name string
		p    preferences.Preferences
		req  Request
		want []string
	}{
		{"short applies", short, Request{SceneType: SceneTypeNew}, []string{"Tend toward an informal, conversational tone.", "Keep it concise."}},
		{"short vs expand", short, Request{SceneType: SceneTypeExpand}, []string{"Tend toward an informal, conversational tone."}},
		{"long applies", long, Request{SceneType: SceneTypeContinue}, []string{"Allow a fuller, more detailed rendering."}},
		{"long vs summarize", long, Request{SceneType: "Summarize"}, nil},
		{"explicit length wins", long, Request{Length: "short"}, nil},
		{"defaults", preferences.Default(), Request{}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Steering(c.p, c.req)
			if strings.Join(got, "|") != strings.Join(c.want, "|") {
				t.Fatalf("Steering=%q want %q", got, c.want)
			}
		})
	}
}

func TestAssembleSceneSteeringSection(t *testing.T) {
	p, err := mustAssembler(t).Assemble(TargetScene, Request{SceneType: SceneTypeExpand, Material: "She opened the door."},
		nil, preferences.Preferences{Tone: preferences.ToneFormal, Length: preferences.LengthShort})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(p.User, "Tend toward a formal, measured register.") || strings.Contains(p.User, "Keep it concise.") {
		t.Fatalf("unexpected steering:\n%s", p.User)
	}
	if !strings.Contains(p.User, "Existing text:\nShe opened the door.") {
		t.Fatalf("material missing:\n%s", p.User)
	}
}

func TestAssembleEpisodePlanRendersBucketEvents(t *testing.T) {
	project := uuid.New()
	hero := ent(project, types.EntityCharacter, "Hero")
	e1 := ent(project, types.EntityEvent, "Departure")
	e1.TimelinePosition = "1"
	e1.RelatedCharacterIDs = types.EncodeStrings([]string{hero.ID.String()})
	e2 := ent(project, types.EntityEvent, "Storm")
	snap := snapshot(project, []string{"journey"}, hero, e1, e2)

	p, err := mustAssembler(t).Assemble(TargetEpisodePlan, Request{
		TitleHint: "Voyage",
		Episode:   EpisodeBrief{Number: 1, Of: 3, TargetMinutes: 45, EventIDs: []string{e1.ID.String(), uuid.NewString()}},
	}, snap, preferences.Default())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, want := range []string{"Plan episode 1 of 3, about 45 minutes long. Series title hint: Voyage.", "- Departure [1]", "- Hero", `{"title": string, "logline": string, "cliffhanger": string}`} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p.User)
		}
	}
	if strings.Contains(p.User, "Storm") {
		t.Fatalf("event outside the bucket rendered:\n%s", p.User)
	}
	if p.Mode != "json" {
		t.Fatalf("mode=%q", p.Mode)
	}
}

func TestAssembleUnknownTarget(t *testing.T) {
	_, err := mustAssembler(t).Assemble(Target("poem"), Request{}, nil, preferences.Default())
	if !errors.Is(err, apperrors.ErrUnknownKind) {
		t.Fatalf("err=%v", err)
	}
}

func TestTemplatesRejectUnknownPredicate(t *testing.T) {
	_, err := NewAssemblerFromYAML([]byte(`
targets:
  scene:
    output: "x"
    sections:
      - name: a
        when: [is_full_moon]
        text: "hi"
`))
	if err == nil || !strings.Contains(err.Error(), "is_full_moon") {
		t.Fatalf("err=%v", err)
	}
}

func TestEmbeddedTemplatesCoverTargets(t *testing.T) {
	got := map[Target]bool{}
	for _, tg := range mustAssembler(t).Targets() {
		got[tg] = true
	}
	for _, want := range []Target{TargetScene, TargetEpisodePlan, TargetMovieTreatment, TargetTextCleanup, TargetStyleNotes, TargetFinalNarrative} {
		if !got[want] {
			t.Fatalf("embedded templates missing target %q", want)
		}
	}
}
