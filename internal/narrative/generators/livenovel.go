package generators

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	types "github.com/yungbote/qalam-backend/internal/domain"
)

const minLinkRunes = 2

const entitySpan = `(?s:<entity\b[^>]*>.*?</entity>)`

type LiveChapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type LiveEntity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// LiveNovel is the payload the reader front-end renders with hover cards.
type LiveNovel struct {
	ProjectID string                `json:"projectId"`
	Title     string                `json:"title"`
	Chapters  []LiveChapter         `json:"chapters"`
	Entities  map[string]LiveEntity `json:"entities"`
}

// LinkTarget is one surface form that links to an entity.
type LinkTarget struct {
	ID   string
	Name string
}

/*
Linker wraps entity names in chapter text with <entity data-id="..."> tags.

All names go into one alternation, longest first, so "يوسف الصادق" wins over "يوسف" at the
same position. The first alternative matches spans that are already tagged and copies them
through unchanged, which makes linking idempotent.
*/
type Linker struct {
	re    *regexp.Regexp
	byKey map[string]string
	names []LinkTarget
}

// NewLinker returns nil when there is nothing to link.
func NewLinker(targets []LinkTarget) *Linker {
	byKey := map[string]string{}
	var names []LinkTarget
	for _, t := range targets {
		name := strings.TrimSpace(t.Name)
		if t.ID == "" || utf8.RuneCountInString(name) < minLinkRunes {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := byKey[key]; dup {
			continue
		}
		byKey[key] = t.ID
		names = append(names, LinkTarget{ID: t.ID, Name: name})
	}
	if len(names) == 0 {
		return nil
	}
	sort.SliceStable(names, func(i, j int) bool {
		return utf8.RuneCountInString(names[i].Name) > utf8.RuneCountInString(names[j].Name)
	})
	alts := make([]string, len(names))
	for i, n := range names {
		alts[i] = regexp.QuoteMeta(n.Name)
	}
	re := regexp.MustCompile(entitySpan + `|(?i:` + strings.Join(alts, "|") + `)`)
	return &Linker{re: re, byKey: byKey, names: names}
}

func (l *Linker) Link(text string) string {
	if l == nil || text == "" {
		return text
	}
	return l.re.ReplaceAllStringFunc(text, func(m string) string {
		if strings.HasPrefix(m, "<entity") {
			return m
		}
		id := l.idFor(m)
		if id == "" {
			return m
		}
		return `<entity data-id="` + id + `">` + m + `</entity>`
	})
}

func (l *Linker) idFor(match string) string {
	if id, ok := l.byKey[strings.ToLower(match)]; ok {
		return id
	}
	for _, n := range l.names {
		if strings.EqualFold(n.Name, match) {
			return n.ID
		}
	}
	return ""
}

// LinkTargets lists canonical names of characters, places and events, then their aliases.
// Claims are not linked. Entities of another project are ignored.
func LinkTargets(snap *types.UKBSnapshot) []LinkTarget {
	var out []LinkTarget
	linkable := linkableEntities(snap)
	for _, e := range linkable {
		out = append(out, LinkTarget{ID: e.ID.String(), Name: e.Name})
	}
	for _, e := range linkable {
		for _, a := range e.AliasList() {
			out = append(out, LinkTarget{ID: e.ID.String(), Name: a})
		}
	}
	return out
}

func linkableEntities(snap *types.UKBSnapshot) []*types.KnowledgeEntity {
	if snap == nil || snap.UKB == nil {
		return nil
	}
	var out []*types.KnowledgeEntity
	for _, kind := range []string{types.EntityCharacter, types.EntityPlace, types.EntityEvent} {
		for _, e := range snap.ByKind(kind) {
			if e.ProjectID == snap.UKB.ProjectID && strings.TrimSpace(e.Name) != "" {
				out = append(out, e)
			}
		}
	}
	return out
}

// BuildLiveNovel links every chapter against the snapshot. A missing UKB yields the chapters
// unlinked and an empty entity map.
func BuildLiveNovel(projectID uuid.UUID, title string, chapters []*types.Chapter, snap *types.UKBSnapshot) *LiveNovel {
	out := &LiveNovel{
		ProjectID: projectID.String(),
		Title:     title,
		Chapters:  make([]LiveChapter, 0, len(chapters)),
		Entities:  map[string]LiveEntity{},
	}
	if snap != nil && snap.UKB != nil && snap.UKB.ProjectID != projectID {
		snap = nil
	}
	linker := NewLinker(LinkTargets(snap))
	for _, ch := range chapters {
		if ch == nil {
			continue
		}
		out.Chapters = append(out.Chapters, LiveChapter{Title: ch.Title, Content: linker.Link(ch.Content)})
	}
	for _, e := range linkableEntities(snap) {
		le := LiveEntity{
			ID:          e.ID.String(),
			Name:        e.Name,
			Type:        e.Kind,
			Description: e.Description,
			ImageURL:    e.ImageURL,
		}
		if e.ValidCoordinates() {
			le.Latitude, le.Longitude = e.Latitude, e.Longitude
		}
		out.Entities[le.ID] = le
	}
	return out
}
