package correlator

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/platform/envutil"
)

// SourceExtraction is one analyzed source's extraction. Order is the source's position in
// the project and breaks timeline ties.
type SourceExtraction struct {
	SourceID   string
	Order      int
	Extraction *extractor.Extraction
}

type Options struct {
	// EdgeThreshold drops cross references weighted below it.
	EdgeThreshold float64
	// ConfidenceDivisor scales log2(1+mentions) into an entity confidence.
	ConfidenceDivisor float64
}

func DefaultOptions() Options {
	return Options{EdgeThreshold: 0.2, ConfidenceDivisor: 3}
}

func OptionsFromEnv() Options {
	d := DefaultOptions()
	o := Options{
		EdgeThreshold:     envutil.Float("CORRELATION_EDGE_THRESHOLD", d.EdgeThreshold),
		ConfidenceDivisor: envutil.Float("CORRELATION_CONFIDENCE_DIVISOR", d.ConfidenceDivisor),
	}
	if o.EdgeThreshold < 0 {
		o.EdgeThreshold = d.EdgeThreshold
	}
	if o.ConfidenceDivisor <= 0 {
		o.ConfidenceDivisor = d.ConfidenceDivisor
	}
	return o
}

type Summary struct {
	Sources          int            `json:"sources"`
	Candidates       int            `json:"candidates"`
	Entities         map[string]int `json:"entities"`
	CrossReferences  int            `json:"cross_references"`
	TimelineParsed   int            `json:"timeline_parsed"`
	TimelineUnparsed int            `json:"timeline_unparsed"`
	EdgeThreshold    float64        `json:"edge_threshold"`
}

// Result is everything one correlation run produces. Entities are ordered by kind, then by
// first appearance.
type Result struct {
	Entities         []*types.KnowledgeEntity
	CrossReferences  []types.CrossReference
	Timeline         []types.TimelineEntry
	Confidence       types.ConfidenceScores
	CharacterMapping map[string]string
	LocationMapping  map[string]string
	Themes           []string
	Summary          Summary
}

// Content converts the result into the repo's swap payload.
func (r *Result) Content(taskID *uuid.UUID) *repos.UKBContent {
	return &repos.UKBContent{
		CorrelationResults: mustJSON(r.Summary),
		ConfidenceScores:   mustJSON(r.Confidence),
		Timeline:           mustJSON(r.Timeline),
		CharacterMapping:   mustJSON(r.CharacterMapping),
		LocationMapping:    mustJSON(r.LocationMapping),
		CrossReferences:    mustJSON(r.CrossReferences),
		Themes:             mustJSON(r.Themes),
		Entities:           r.Entities,
		BuiltByTaskID:      taskID,
	}
}

// Snapshot presents an unpersisted result the way a UKB read would, for callers that
// generate from a one-off correlation.
func (r *Result) Snapshot(projectID uuid.UUID) *types.UKBSnapshot {
	c := r.Content(nil)
	return &types.UKBSnapshot{
		UKB: &types.UnifiedKnowledgeBase{
			ProjectID:          projectID,
			Status:             types.UKBReady,
			CorrelationResults: c.CorrelationResults,
			ConfidenceScores:   c.ConfidenceScores,
			Timeline:           c.Timeline,
			CharacterMapping:   c.CharacterMapping,
			LocationMapping:    c.LocationMapping,
			CrossReferences:    c.CrossReferences,
			Themes:             c.Themes,
		},
		Entities: r.Entities,
	}
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

type candidate struct {
	name         string
	description  string
	role         string
	significance string
	timeline     string
	evidence     string
	claimSource  string
	reliability  *float64
	sourceID     string
	sourceOrder  int
}

type cluster struct {
	kind    string
	key     string
	members []candidate
	entity  *types.KnowledgeEntity
}

/*
Correlate merges per-source extractions into one knowledge base:
  - candidates are grouped by (kind, Normalize(name)); the most frequent spelling becomes the
    name and the other spellings become aliases
  - entities co-mentioned in the same source are linked, weighted by co-mention count over the
    smaller entity's source count
  - events are ordered into a timeline
  - confidence per entity is min(1, log2(1+mentions)/divisor); overall is the mean

Correlate is pure apart from minting entity ids.
*/
func Correlate(projectID uuid.UUID, sources []SourceExtraction, opts Options) *Result {
	if opts.ConfidenceDivisor <= 0 {
		opts.ConfidenceDivisor = DefaultOptions().ConfidenceDivisor
	}
	ordered := append([]SourceExtraction(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	byKey := map[string]*cluster{}
	var clusters []*cluster
	perSource := make([][]*cluster, len(ordered))
	candidates := 0

	add := func(si int, kind string, c candidate) {
		key := Normalize(c.name)
		if key == "" {
			return
		}
		candidates++
		id := kind + "\x00" + key
		cl, ok := byKey[id]
		if !ok {
			cl = &cluster{kind: kind, key: key}
			byKey[id] = cl
			clusters = append(clusters, cl)
		}
		cl.members = append(cl.members, c)
		for _, seen := range perSource[si] {
			if seen == cl {
				return
			}
		}
		perSource[si] = append(perSource[si], cl)
	}

	var themeInputs []string
	for si, src := range ordered {
		ex := src.Extraction
		if ex == nil {
			continue
		}
		base := candidate{sourceID: src.SourceID, sourceOrder: src.Order}
		for _, ch := range ex.Characters {
			c := base
			c.name, c.description, c.role = ch.Name, ch.Description, ch.Role
			add(si, types.EntityCharacter, c)
		}
		for _, p := range ex.Places {
			c := base
			c.name, c.description, c.significance = p.Name, p.Description, p.Significance
			add(si, types.EntityPlace, c)
		}
		for _, ev := range ex.Events {
			c := base
			c.name, c.description, c.timeline = ev.Title, ev.Description, ev.TimelinePosition
			add(si, types.EntityEvent, c)
		}
		for _, cl := range ex.Claims {
			c := base
			c.name, c.evidence, c.claimSource, c.reliability = cl.Content, cl.Evidence, cl.Source, cl.Reliability
			add(si, types.EntityClaim, c)
		}
		themeInputs = append(themeInputs, ex.Themes...)
	}

	kindRank := map[string]int{}
	for i, k := range kindsInOrder() {
		kindRank[k] = i
	}
	sort.SliceStable(clusters, func(i, j int) bool { return kindRank[clusters[i].kind] < kindRank[clusters[j].kind] })

	res := &Result{
		Entities:         make([]*types.KnowledgeEntity, 0, len(clusters)),
		CrossReferences:  []types.CrossReference{},
		Timeline:         []types.TimelineEntry{},
		CharacterMapping: map[string]string{},
		LocationMapping:  map[string]string{},
		Confidence:       types.ConfidenceScores{PerEntity: map[string]float64{}},
		Summary: Summary{
			Sources:       len(ordered),
			Candidates:    candidates,
			Entities:      map[string]int{},
			EdgeThreshold: opts.EdgeThreshold,
		},
	}

	var confSum float64
	for _, cl := range clusters {
		e := buildEntity(projectID, cl, opts)
		cl.entity = e
		res.Entities = append(res.Entities, e)
		res.Summary.Entities[e.Kind]++
		res.Confidence.PerEntity[e.ID.String()] = e.Confidence
		confSum += e.Confidence

		switch e.Kind {
		case types.EntityCharacter:
			addMapping(res.CharacterMapping, e)
		case types.EntityPlace:
			addMapping(res.LocationMapping, e)
		}
	}
	if len(res.Entities) > 0 {
		res.Confidence.Overall = confSum / float64(len(res.Entities))
	}

	linkEventCharacters(clusters)
	res.CrossReferences = crossReferences(clusters, perSource, opts.EdgeThreshold)
	res.Summary.CrossReferences = len(res.CrossReferences)

	res.Timeline = buildTimeline(clusters)
	for _, t := range res.Timeline {
		if t.Parsed {
			res.Summary.TimelineParsed++
		} else {
			res.Summary.TimelineUnparsed++
		}
	}
	res.Themes = rankThemes(themeInputs)
	return res
}

func kindsInOrder() []string {
	return []string{types.EntityCharacter, types.EntityPlace, types.EntityEvent, types.EntityClaim}
}

func buildEntity(projectID uuid.UUID, cl *cluster, opts Options) *types.KnowledgeEntity {
	type spelling struct {
		text  string
		count int
		first int
	}
	var spellings []*spelling
	idx := map[string]*spelling{}
	var sourceIDs []string
	seenSource := map[string]bool{}
	var description, significance, evidence, timeline, claimSource string
	roleCount := map[string]int{}
	var roleOrder []string
	var relSum float64
	var relN int

	for i, m := range cl.members {
		text := strings.Join(strings.Fields(m.name), " ")
		if s, ok := idx[text]; ok {
			s.count++
		} else {
			s = &spelling{text: text, count: 1, first: i}
			idx[text] = s
			spellings = append(spellings, s)
		}
		if m.sourceID != "" && !seenSource[m.sourceID] {
			seenSource[m.sourceID] = true
			sourceIDs = append(sourceIDs, m.sourceID)
		}
		description = longer(description, m.description)
		significance = longer(significance, m.significance)
		evidence = longer(evidence, m.evidence)
		if timeline == "" {
			timeline = strings.TrimSpace(m.timeline)
		}
		if claimSource == "" {
			claimSource = strings.TrimSpace(m.claimSource)
		}
		if r := strings.TrimSpace(m.role); r != "" {
			if roleCount[r] == 0 {
				roleOrder = append(roleOrder, r)
			}
			roleCount[r]++
		}
		if m.reliability != nil {
			relSum += types.ClampUnit(*m.reliability)
			relN++
		}
	}

	canonical := spellings[0]
	for _, s := range spellings[1:] {
		if s.count > canonical.count {
			canonical = s
		}
	}
	aliases := make([]string, 0, len(spellings)-1)
	for _, s := range spellings {
		if s != canonical {
			aliases = append(aliases, s.text)
		}
	}
	role := ""
	for _, r := range roleOrder {
		if role == "" || roleCount[r] > roleCount[role] {
			role = r
		}
	}

	n := len(cl.members)
	e := &types.KnowledgeEntity{
		ID:                  uuid.New(),
		ProjectID:           projectID,
		Kind:                cl.kind,
		Name:                canonical.text,
		NormalizedName:      cl.key,
		Aliases:             types.EncodeStrings(aliases),
		Description:         description,
		RelatedCharacterIDs: types.EncodeStrings(nil),
		Confidence:          math.Min(1, math.Log2(1+float64(n))/opts.ConfidenceDivisor),
		MentionCount:        n,
		SourceIDs:           types.EncodeStrings(sourceIDs),
	}
	switch cl.kind {
	case types.EntityCharacter:
		e.Role = role
	case types.EntityPlace:
		e.Significance = significance
	case types.EntityEvent:
		e.TimelinePosition = timeline
	case types.EntityClaim:
		e.Evidence = evidence
		e.ClaimSource = claimSource
		if relN > 0 {
			e.ReliabilityScore = types.PtrFloat(relSum / float64(relN))
		}
	}
	return e
}

func longer(cur, next string) string {
	next = strings.TrimSpace(next)
	if len([]rune(next)) > len([]rune(cur)) {
		return next
	}
	return cur
}

func addMapping(m map[string]string, e *types.KnowledgeEntity) {
	id := e.ID.String()
	m[e.Name] = id
	for _, a := range e.AliasList() {
		if _, taken := m[a]; !taken {
			m[a] = id
		}
	}
}

// linkEventCharacters records, on each event, the characters whose name or an alias appears
// in the event's title or description.
func linkEventCharacters(clusters []*cluster) {
	type charKeys struct {
		id   string
		keys []string
	}
	var chars []charKeys
	for _, cl := range clusters {
		if cl.kind != types.EntityCharacter {
			continue
		}
		ck := charKeys{id: cl.entity.ID.String(), keys: []string{cl.key}}
		for _, a := range cl.entity.AliasList() {
			if k := Normalize(a); k != "" && k != cl.key {
				ck.keys = append(ck.keys, k)
			}
		}
		chars = append(chars, ck)
	}
	if len(chars) == 0 {
		return
	}
	for _, cl := range clusters {
		if cl.kind != types.EntityEvent {
			continue
		}
		text := Normalize(cl.entity.Name + " " + cl.entity.Description)
		var ids []string
		for _, ch := range chars {
			for _, k := range ch.keys {
				if strings.Contains(text, k) {
					ids = append(ids, ch.id)
					break
				}
			}
		}
		cl.entity.RelatedCharacterIDs = types.EncodeStrings(ids)
	}
}

func relation(from, to string) string {
	switch from + ">" + to {
	case types.EntityCharacter + ">" + types.EntityPlace:
		return "appears_at"
	case types.EntityCharacter + ">" + types.EntityEvent:
		return "participates_in"
	case types.EntityPlace + ">" + types.EntityEvent:
		return "setting_of"
	case types.EntityCharacter + ">" + types.EntityClaim,
		types.EntityPlace + ">" + types.EntityClaim,
		types.EntityEvent + ">" + types.EntityClaim:
		return "subject_of"
	default:
		return "co_mentioned"
	}
}

func crossReferences(clusters []*cluster, perSource [][]*cluster, threshold float64) []types.CrossReference {
	pos := make(map[*cluster]int, len(clusters))
	for i, cl := range clusters {
		pos[cl] = i
	}
	sourceCount := make(map[*cluster]int, len(clusters))
	type pair struct{ a, b int }
	counts := map[pair]int{}
	for _, mentioned := range perSource {
		for _, cl := range mentioned {
			sourceCount[cl]++
		}
		for i := 0; i < len(mentioned); i++ {
			for j := i + 1; j < len(mentioned); j++ {
				a, b := pos[mentioned[i]], pos[mentioned[j]]
				if a > b {
					a, b = b, a
				}
				counts[pair{a, b}]++
			}
		}
	}

	out := []types.CrossReference{}
	for p, n := range counts {
		from, to := clusters[p.a], clusters[p.b]
		denom := sourceCount[from]
		if sourceCount[to] < denom {
			denom = sourceCount[to]
		}
		if denom <= 0 {
			continue
		}
		w := math.Min(1, float64(n)/float64(denom))
		if w < threshold {
			continue
		}
		out = append(out, types.CrossReference{
			FromEntityID: from.entity.ID.String(),
			ToEntityID:   to.entity.ID.String(),
			Relation:     relation(from.kind, to.kind),
			Confidence:   w,
		})
	}
	byID := make(map[string]*cluster, len(clusters))
	for _, cl := range clusters {
		byID[cl.entity.ID.String()] = cl
	}
	// Entity ids are fresh per rebuild, so ties fall back to name, kind, then cluster order.
	less := func(a, b *cluster) (bool, bool) {
		switch {
		case a.entity.Name != b.entity.Name:
			return a.entity.Name < b.entity.Name, true
		case a.kind != b.kind:
			return a.kind < b.kind, true
		case pos[a] != pos[b]:
			return pos[a] < pos[b], true
		}
		return false, false
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if r, ok := less(byID[out[i].FromEntityID], byID[out[j].FromEntityID]); ok {
			return r
		}
		r, _ := less(byID[out[i].ToEntityID], byID[out[j].ToEntityID])
		return r
	})
	return out
}

// rankThemes dedupes themes by normalized form, keeping the first spelling, and orders them
// by frequency then first appearance.
func rankThemes(in []string) []string {
	type theme struct {
		text  string
		count int
		first int
	}
	idx := map[string]*theme{}
	var list []*theme
	for i, t := range in {
		text := strings.Join(strings.Fields(t), " ")
		key := Normalize(text)
		if key == "" {
			continue
		}
		if th, ok := idx[key]; ok {
			th.count++
			continue
		}
		th := &theme{text: text, count: 1, first: i}
		idx[key] = th
		list = append(list, th)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].count > list[j].count })
	out := make([]string, 0, len(list))
	for _, th := range list {
		out = append(out, th.text)
	}
	return out
}
