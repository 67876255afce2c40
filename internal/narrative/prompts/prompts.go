package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/knowledge/correlator"
	"github.com/yungbote/qalam-backend/internal/narrative/preferences"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

type Target string

const (
	TargetScene          Target = "scene"
	TargetEpisodePlan    Target = "episode_plan"
	TargetMovieTreatment Target = "movie_treatment"
	TargetTextCleanup    Target = "text_cleanup"
	TargetStyleNotes     Target = "style_notes"
	TargetFinalNarrative Target = "final_narrative"
)

const (
	SceneTypeNew       = "new"
	SceneTypeContinue  = "continue"
	SceneTypeExpand    = "expand"
	SceneTypeSummarize = "summarize"
)

const (
	maxAliases        = 3
	maxThemes         = 3
	maxCastCharacters = 12
	maxCastPlaces     = 8
	maxTimelineEvents = 20
)

// EpisodeBrief describes the slice of the timeline one episode covers.
type EpisodeBrief struct {
	Number        int      `json:"number"`
	Of            int      `json:"of"`
	TargetMinutes int      `json:"target_minutes,omitempty"`
	EventIDs      []string `json:"event_ids,omitempty"`
}

// Request carries everything a caller may ask for. Fields a target does not use are ignored.
type Request struct {
	SceneType          string   `json:"scene_type"`
	MainCharacterNames []string `json:"main_character_names"`
	SettingName        string   `json:"setting_name"`
	Conflict           string   `json:"conflict"`
	EmotionalTone      string   `json:"emotional_tone"`
	Length             string   `json:"length"`

	TitleHint  string       `json:"title_hint,omitempty"`
	Episode    EpisodeBrief `json:"episode"`
	Material   string       `json:"material,omitempty"`
	StyleNotes string       `json:"style_notes,omitempty"`
}

type CharacterSlice struct {
	ID          string
	Name        string
	Role        string
	Description string
	Aliases     []string
}

type PlaceSlice struct {
	ID           string
	Name         string
	Description  string
	Significance string
}

type EventSlice struct {
	ID          string
	Title       string
	Description string
	Position    string
}

// Context is what templates render. Every entity in it comes from the project's UKB.
type Context struct {
	Request    Request
	Characters []CharacterSlice
	Setting    *PlaceSlice
	Places     []PlaceSlice
	Events     []EventSlice
	Themes     []string
	Steering   []string
}

type Prompt struct {
	System string
	User   string
	// Mode is "json" for targets that expect a JSON object, "text" otherwise.
	Mode string
}

type Assembler struct {
	templates map[Target]*targetTemplate
}

// NewAssembler loads the embedded templates (or PROMPT_TEMPLATES_YAML when set).
func NewAssembler() (*Assembler, error) {
	t, err := defaultTemplates()
	if err != nil {
		return nil, err
	}
	return &Assembler{templates: t}, nil
}

// NewAssemblerFromYAML builds an assembler from explicit template data.
func NewAssemblerFromYAML(data []byte) (*Assembler, error) {
	t, err := parseTemplates(data)
	if err != nil {
		return nil, err
	}
	return &Assembler{templates: t}, nil
}

func (a *Assembler) Targets() []Target {
	out := make([]Target, 0, len(a.templates))
	for t := range a.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

/*
Assemble composes the prompt for target:
 1. named characters are looked up in the UKB with role, description and up to three aliases
 2. the setting is looked up as a place
 3. up to three themes matching the emotional tone are selected
 4. preference steering is added unless the request contradicts it
 5. the target's output instruction is appended

Names the UKB does not know are dropped, so the prompt never mentions an entity outside the
project's knowledge base.
*/
func (a *Assembler) Assemble(target Target, req Request, snap *types.UKBSnapshot, prefs preferences.Preferences) (Prompt, error) {
	tt, ok := a.templates[target]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: prompt target %q", apperrors.ErrUnknownKind, target)
	}
	c := BuildContext(target, req, snap, prefs)

	parts := make([]string, 0, len(tt.sections)+1)
	for _, s := range tt.sections {
		if !s.applies(c) {
			continue
		}
		text, err := s.render(c)
		if err != nil {
			return Prompt{}, fmt.Errorf("render %s.%s: %w", target, s.name, err)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	parts = append(parts, tt.output)
	mode := tt.mode
	if mode == "" {
		mode = "text"
	}
	return Prompt{System: tt.system, User: strings.Join(parts, "\n\n"), Mode: mode}, nil
}

// BuildContext resolves the request against the snapshot. It is exported for generators that
// need the same entity selection outside a prompt.
func BuildContext(target Target, req Request, snap *types.UKBSnapshot, prefs preferences.Preferences) *Context {
	idx := newIndex(snap)
	c := &Context{Request: req}

	switch target {
	case TargetScene:
		for _, name := range req.MainCharacterNames {
			if e := idx.lookup(types.EntityCharacter, name); e != nil && !c.hasCharacter(e.ID.String()) {
				c.Characters = append(c.Characters, characterSlice(e))
			}
		}
		if e := idx.lookup(types.EntityPlace, req.SettingName); e != nil {
			p := placeSlice(e)
			c.Setting = &p
		}
		c.Themes = selectThemes(idx.themes, req.EmotionalTone, maxThemes)
	case TargetEpisodePlan:
		seenChar := map[string]bool{}
		for _, id := range req.Episode.EventIDs {
			e := idx.byID[id]
			if e == nil || e.Kind != types.EntityEvent {
				continue
			}
			c.Events = append(c.Events, eventSlice(e))
			for _, cid := range e.RelatedCharacterIDList() {
				if ch := idx.byID[cid]; ch != nil && !seenChar[cid] {
					seenChar[cid] = true
					c.Characters = append(c.Characters, characterSlice(ch))
				}
			}
		}
		c.Themes = selectThemes(idx.themes, "", maxThemes)
	case TargetMovieTreatment:
		c.Characters = topCharacters(idx, maxCastCharacters)
		for _, e := range topByConfidence(idx.kind(types.EntityPlace), maxCastPlaces) {
			c.Places = append(c.Places, placeSlice(e))
		}
		c.Events = idx.timelineEvents(maxTimelineEvents)
		c.Themes = selectThemes(idx.themes, "", maxThemes+2)
	case TargetStyleNotes, TargetFinalNarrative:
		c.Characters = topCharacters(idx, maxCastCharacters)
		c.Themes = selectThemes(idx.themes, "", maxThemes)
	}
	c.Steering = Steering(prefs, req)
	return c
}

func (c *Context) hasCharacter(id string) bool {
	for _, ch := range c.Characters {
		if ch.ID == id {
			return true
		}
	}
	return false
}

/*
Steering turns preferences into one-line clauses. A length preference is suppressed when it
contradicts the request: short when expanding, long when summarizing, and either when the
request names a length itself.
*/
func Steering(p preferences.Preferences, req Request) []string {
	var out []string
	switch p.Tone {
	case preferences.ToneInformal:
		out = append(out, "Tend toward an informal, conversational tone.")
	case preferences.ToneFormal:
		out = append(out, "Tend toward a formal, measured register.")
	}
	sceneType := strings.ToLower(strings.TrimSpace(req.SceneType))
	explicitLength := strings.TrimSpace(req.Length) != ""
	switch p.Length {
	case preferences.LengthShort:
		if sceneType != SceneTypeExpand && !explicitLength {
			out = append(out, "Keep it concise.")
		}
	case preferences.LengthLong:
		if sceneType != SceneTypeSummarize && !explicitLength {
			out = append(out, "Allow a fuller, more detailed rendering.")
		}
	}
	return out
}

// selectThemes keeps themes that contain the tone (or that the tone contains), in UKB order.
// With no tone the leading themes are used.
func selectThemes(themes []string, tone string, limit int) []string {
	tone = correlator.Normalize(tone)
	out := []string{}
	for _, th := range themes {
		if len(out) >= limit {
			break
		}
		if tone != "" {
			n := correlator.Normalize(th)
			if n == "" || !(strings.Contains(n, tone) || strings.Contains(tone, n)) {
				continue
			}
		}
		out = append(out, th)
	}
	return out
}

func characterSlice(e *types.KnowledgeEntity) CharacterSlice {
	aliases := e.AliasList()
	if len(aliases) > maxAliases {
		aliases = aliases[:maxAliases]
	}
	return CharacterSlice{ID: e.ID.String(), Name: e.Name, Role: e.Role, Description: e.Description, Aliases: aliases}
}

func placeSlice(e *types.KnowledgeEntity) PlaceSlice {
	return PlaceSlice{ID: e.ID.String(), Name: e.Name, Description: e.Description, Significance: e.Significance}
}

func eventSlice(e *types.KnowledgeEntity) EventSlice {
	return EventSlice{ID: e.ID.String(), Title: e.Name, Description: e.Description, Position: e.TimelinePosition}
}

func topCharacters(idx *index, n int) []CharacterSlice {
	var out []CharacterSlice
	for _, e := range topByConfidence(idx.kind(types.EntityCharacter), n) {
		out = append(out, characterSlice(e))
	}
	return out
}

func topByConfidence(ents []*types.KnowledgeEntity, n int) []*types.KnowledgeEntity {
	sorted := append([]*types.KnowledgeEntity(nil), ents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].MentionCount != sorted[j].MentionCount {
			return sorted[i].MentionCount > sorted[j].MentionCount
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// index is a lookup view over one snapshot, restricted to the snapshot's own project.
type index struct {
	byKey    map[string]*types.KnowledgeEntity
	byID     map[string]*types.KnowledgeEntity
	ordered  []*types.KnowledgeEntity
	themes   []string
	timeline []types.TimelineEntry
}

func newIndex(snap *types.UKBSnapshot) *index {
	idx := &index{byKey: map[string]*types.KnowledgeEntity{}, byID: map[string]*types.KnowledgeEntity{}}
	if snap == nil || snap.UKB == nil {
		return idx
	}
	project := snap.UKB.ProjectID
	for _, e := range snap.Entities {
		if e == nil || e.ProjectID != project || strings.TrimSpace(e.Name) == "" {
			continue
		}
		idx.ordered = append(idx.ordered, e)
		idx.byID[e.ID.String()] = e
		keys := []string{e.NormalizedName, correlator.Normalize(e.Name)}
		for _, a := range e.AliasList() {
			keys = append(keys, correlator.Normalize(a))
		}
		for _, k := range keys {
			if k == "" {
				continue
			}
			if _, taken := idx.byKey[e.Kind+"\x00"+k]; !taken {
				idx.byKey[e.Kind+"\x00"+k] = e
			}
		}
	}
	_ = json.Unmarshal(snap.UKB.Themes, &idx.themes)
	_ = json.Unmarshal(snap.UKB.Timeline, &idx.timeline)
	return idx
}

func (x *index) lookup(kind, name string) *types.KnowledgeEntity {
	k := correlator.Normalize(name)
	if k == "" {
		return nil
	}
	return x.byKey[kind+"\x00"+k]
}

func (x *index) kind(kind string) []*types.KnowledgeEntity {
	var out []*types.KnowledgeEntity
	for _, e := range x.ordered {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// timelineEvents returns events in UKB timeline order, falling back to stored order for
// events missing from the timeline.
func (x *index) timelineEvents(limit int) []EventSlice {
	var out []EventSlice
	seen := map[string]bool{}
	for _, t := range x.timeline {
		if len(out) >= limit {
			return out
		}
		if e := x.byID[t.EventID]; e != nil && e.Kind == types.EntityEvent && !seen[t.EventID] {
			seen[t.EventID] = true
			out = append(out, eventSlice(e))
		}
	}
	for _, e := range x.kind(types.EntityEvent) {
		if len(out) >= limit {
			break
		}
		if !seen[e.ID.String()] {
			out = append(out, eventSlice(e))
		}
	}
	return out
}
