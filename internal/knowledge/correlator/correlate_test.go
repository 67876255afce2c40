package correlator

import (
	"math"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
)

func chars(names ...string) *extractor.Extraction {
	ex := extractor.Empty()
	for _, n := range names {
		ex.Characters = append(ex.Characters, extractor.Character{Name: n})
	}
	return ex
}

func find(t *testing.T, res *Result, kind, name string) *types.KnowledgeEntity {
	t.Helper()
	for _, e := range res.Entities {
		if e.Kind == kind && e.Name == name {
			return e
		}
	}
	t.Fatalf("no %s entity named %q in %d entities", kind, name, len(res.Entities))
	return nil
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Ibn   Battuta ", "ibn battuta"},
		{"Yūsuf", "yusuf"},
		{"يُوسُف", "يوسف"},
		{"يـــوسف", "يوسف"},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestCorrelateCanonicalizesAcrossSources(t *testing.T) {
	res := Correlate(uuid.New(), []SourceExtraction{
		{SourceID: "s1", Order: 0, Extraction: chars("Yusuf")},
		{SourceID: "s2", Order: 1, Extraction: chars("YŪSUF")},
		{SourceID: "s3", Order: 2, Extraction: chars("Yusuf", "Zulaikha")},
	}, DefaultOptions())

	if len(res.Entities) != 2 {
		t.Fatalf("entities=%d want 2", len(res.Entities))
	}
	y := find(t, res, types.EntityCharacter, "Yusuf")
	if got := y.AliasList(); len(got) != 1 || got[0] != "YŪSUF" {
		t.Fatalf("aliases=%v", got)
	}
	if y.MentionCount != 3 || len(y.SourceIDList()) != 3 {
		t.Fatalf("mentions=%d sources=%v", y.MentionCount, y.SourceIDList())
	}
	if math.Abs(y.Confidence-2.0/3.0) > 1e-9 {
		t.Fatalf("confidence=%v want 2/3", y.Confidence)
	}
	z := find(t, res, types.EntityCharacter, "Zulaikha")
	if math.Abs(z.Confidence-1.0/3.0) > 1e-9 {
		t.Fatalf("confidence=%v want 1/3", z.Confidence)
	}
	if want := (y.Confidence + z.Confidence) / 2; math.Abs(res.Confidence.Overall-want) > 1e-9 {
		t.Fatalf("overall=%v want %v", res.Confidence.Overall, want)
	}
	if res.CharacterMapping["YŪSUF"] != y.ID.String() || res.CharacterMapping["Yusuf"] != y.ID.String() {
		t.Fatalf("character mapping=%v", res.CharacterMapping)
	}
}

func TestCorrelateIdentityIsUniquePerKind(t *testing.T) {
	ex := extractor.Empty()
	ex.Characters = append(ex.Characters, extractor.Character{Name: "مكة"}, extractor.Character{Name: "مَكَّة"})
	ex.Places = append(ex.Places, extractor.Place{Name: "مكة", Significance: "holy city"})
	res := Correlate(uuid.New(), []SourceExtraction{{SourceID: "s1", Extraction: ex}}, DefaultOptions())

	seen := map[string]bool{}
	for _, e := range res.Entities {
		if e.Name == "" {
			t.Fatalf("entity with empty name: %+v", e)
		}
		k := e.Kind + "|" + e.NormalizedName
		if seen[k] {
			t.Fatalf("duplicate identity %q", k)
		}
		seen[k] = true
	}
	if len(res.Entities) != 2 {
		t.Fatalf("entities=%d want 2 (one character, one place)", len(res.Entities))
	}
	if p := find(t, res, types.EntityPlace, "مكة"); p.Significance != "holy city" {
		t.Fatalf("significance=%q", p.Significance)
	}
}

func TestCrossReferenceThreshold(t *testing.T) {
	var srcs []SourceExtraction
	for i := 0; i < 5; i++ {
		ex := chars("Amir")
		ex.Places = append(ex.Places, extractor.Place{Name: "Cairo"})
		if i > 0 {
			ex.Characters = nil
			ex.Places = append(ex.Places, extractor.Place{Name: "Nile"})
		}
		srcs = append(srcs, SourceExtraction{SourceID: string(rune('a' + i)), Order: i, Extraction: ex})
	}
	// Amir: 1 source, co-mentioned with Cairo in it => weight 1.
	// Cairo-Nile: co-mentioned in 4 of min(5,4) sources => weight 1.
	res := Correlate(uuid.New(), srcs, DefaultOptions())
	if len(res.CrossReferences) != 2 {
		t.Fatalf("cross refs=%+v", res.CrossReferences)
	}
	amir := find(t, res, types.EntityCharacter, "Amir")
	cairo := find(t, res, types.EntityPlace, "Cairo")
	var found bool
	for _, r := range res.CrossReferences {
		if r.FromEntityID == amir.ID.String() && r.ToEntityID == cairo.ID.String() {
			found = r.Relation == "appears_at" && r.Confidence == 1
		}
	}
	if !found {
		t.Fatalf("missing character->place edge: %+v", res.CrossReferences)
	}
}

func TestCrossReferenceBelowThresholdDropped(t *testing.T) {
	var srcs []SourceExtraction
	for i := 0; i < 5; i++ {
		ex := chars("A", "B")
		if i > 0 {
			ex = chars("A")
			ex.Places = append(ex.Places, extractor.Place{Name: "P"})
			ex.Places = append(ex.Places, extractor.Place{Name: "Q"})
		}
		srcs = append(srcs, SourceExtraction{SourceID: string(rune('a' + i)), Order: i, Extraction: ex})
	}
	// A appears in 5 sources, B in 1: A-B weight = 1/1. A-P = 4/4. P-Q = 4/4.
	opts := DefaultOptions()
	res := Correlate(uuid.New(), srcs, opts)
	if len(res.CrossReferences) != 4 {
		t.Fatalf("cross refs=%d want 4 (A-B, A-P, A-Q, P-Q)", len(res.CrossReferences))
	}

	// Two characters co-mentioned once across five sources each.
	srcs = srcs[:0]
	for i := 0; i < 5; i++ {
		ex := chars("X")
		if i == 0 {
			ex = chars("X", "Y")
		} else {
			ex.Places = append(ex.Places, extractor.Place{Name: "Y-land"})
		}
		srcs = append(srcs, SourceExtraction{SourceID: string(rune('a' + i)), Order: i, Extraction: ex})
	}
	srcs = append(srcs,
		SourceExtraction{SourceID: "f", Order: 5, Extraction: chars("Y")},
		SourceExtraction{SourceID: "g", Order: 6, Extraction: chars("Y")},
		SourceExtraction{SourceID: "h", Order: 7, Extraction: chars("Y")},
		SourceExtraction{SourceID: "i", Order: 8, Extraction: chars("Y")},
	)
	opts.EdgeThreshold = 0.25
	res = Correlate(uuid.New(), srcs, opts)
	x := find(t, res, types.EntityCharacter, "X")
	y := find(t, res, types.EntityCharacter, "Y")
	for _, r := range res.CrossReferences {
		if (r.FromEntityID == x.ID.String() && r.ToEntityID == y.ID.String()) ||
			(r.FromEntityID == y.ID.String() && r.ToEntityID == x.ID.String()) {
			t.Fatalf("X-Y edge (weight 0.2) should be dropped at threshold 0.25: %+v", r)
		}
	}
}

func TestTimelineOrdering(t *testing.T) {
	ex := extractor.Empty()
	ex.Events = []extractor.Event{
		{Title: "Third", TimelinePosition: "3"},
		{Title: "Dated", TimelinePosition: "1325"},
		{Title: "Unknown", TimelinePosition: "long ago"},
		{Title: "First", TimelinePosition: "1st"},
		{Title: "Second", TimelinePosition: "٢"},
		{Title: "Earlier date", TimelinePosition: "1304-02-24"},
		{Title: "Blank"},
	}
	res := Correlate(uuid.New(), []SourceExtraction{{SourceID: "s", Extraction: ex}}, DefaultOptions())
	var got []string
	for _, e := range res.Timeline {
		got = append(got, e.Title)
	}
	want := []string{"First", "Second", "Third", "Earlier date", "Dated", "Unknown", "Blank"}
	if len(got) != len(want) {
		t.Fatalf("timeline=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("timeline=%v want %v", got, want)
		}
	}
	if res.Timeline[0].Ordinal == nil || *res.Timeline[0].Ordinal != 1 {
		t.Fatalf("ordinal not recorded: %+v", res.Timeline[0])
	}
	if res.Timeline[3].Timestamp != "1304-02-24T00:00:00Z" {
		t.Fatalf("timestamp=%q", res.Timeline[3].Timestamp)
	}
	if res.Summary.TimelineParsed != 5 || res.Summary.TimelineUnparsed != 2 {
		t.Fatalf("summary=%+v", res.Summary)
	}
}

func TestTimelineTiesFollowSourceOrder(t *testing.T) {
	a := extractor.Empty()
	a.Events = []extractor.Event{{Title: "Late source", TimelinePosition: "1"}}
	b := extractor.Empty()
	b.Events = []extractor.Event{{Title: "Early source", TimelinePosition: "1"}}
	res := Correlate(uuid.New(), []SourceExtraction{
		{SourceID: "a", Order: 2, Extraction: a},
		{SourceID: "b", Order: 1, Extraction: b},
	}, DefaultOptions())
	if res.Timeline[0].Title != "Early source" || res.Timeline[1].Title != "Late source" {
		t.Fatalf("timeline=%+v", res.Timeline)
	}
}

func TestEventsLinkMentionedCharacters(t *testing.T) {
	ex := chars("Ibn Battuta", "Sultan")
	ex.Events = []extractor.Event{{Title: "Audience", Description: "IBN BATTUTA meets the ruler"}}
	res := Correlate(uuid.New(), []SourceExtraction{{SourceID: "s", Extraction: ex}}, DefaultOptions())
	ev := find(t, res, types.EntityEvent, "Audience")
	ib := find(t, res, types.EntityCharacter, "Ibn Battuta")
	ids := ev.RelatedCharacterIDList()
	if len(ids) != 1 || ids[0] != ib.ID.String() {
		t.Fatalf("related=%v want [%s]", ids, ib.ID)
	}
}

func TestClaimsAndThemes(t *testing.T) {
	r1, r2 := 0.9, 0.5
	a := extractor.Empty()
	a.Themes = []string{"Exile", "faith"}
	a.Claims = []extractor.Claim{{Content: "The city fell in 1258", Source: "chronicle", Reliability: &r1}}
	b := extractor.Empty()
	b.Themes = []string{"Faith", "memory", "  faith "}
	b.Claims = []extractor.Claim{{Content: "the city fell in 1258", Reliability: &r2, Evidence: "eyewitness account"}}
	res := Correlate(uuid.New(), []SourceExtraction{{SourceID: "a", Extraction: a}, {SourceID: "b", Order: 1, Extraction: b}}, DefaultOptions())

	c := find(t, res, types.EntityClaim, "The city fell in 1258")
	if c.ClaimSource != "chronicle" || c.Evidence != "eyewitness account" {
		t.Fatalf("claim=%+v", c)
	}
	if c.ReliabilityScore == nil || math.Abs(*c.ReliabilityScore-0.7) > 1e-9 {
		t.Fatalf("reliability=%v", c.ReliabilityScore)
	}
	want := []string{"faith", "Exile", "memory"}
	if len(res.Themes) != len(want) {
		t.Fatalf("themes=%v want %v", res.Themes, want)
	}
	for i := range want {
		if res.Themes[i] != want[i] {
			t.Fatalf("themes=%v want %v", res.Themes, want)
		}
	}
}

func TestCorrelateEmpty(t *testing.T) {
	res := Correlate(uuid.New(), nil, DefaultOptions())
	if len(res.Entities) != 0 || res.Confidence.Overall != 0 {
		t.Fatalf("res=%+v", res)
	}
	c := res.Content(nil)
	if string(c.CrossReferences) != "[]" || string(c.Timeline) != "[]" || string(c.Themes) != "[]" {
		t.Fatalf("empty lists must encode as []: refs=%s timeline=%s themes=%s", c.CrossReferences, c.Timeline, c.Themes)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("CORRELATION_EDGE_THRESHOLD", "0.5")
	t.Setenv("CORRELATION_CONFIDENCE_DIVISOR", "-1")
	o := OptionsFromEnv()
	if o.EdgeThreshold != 0.5 || o.ConfidenceDivisor != 3 {
		t.Fatalf("options=%+v", o)
	}
}

func TestCrossReferenceOrderIsStable(t *testing.T) {
	ex := chars("Cairo", "Layla")
	ex.Places = append(ex.Places, extractor.Place{Name: "Cairo"}, extractor.Place{Name: "Nile"})
	srcs := []SourceExtraction{{SourceID: "s1", Order: 0, Extraction: ex}}

	signature := func(res *Result) []string {
		byID := map[string]*types.KnowledgeEntity{}
		for _, e := range res.Entities {
			byID[e.ID.String()] = e
		}
		var out []string
		for _, r := range res.CrossReferences {
			from, to := byID[r.FromEntityID], byID[r.ToEntityID]
			out = append(out, from.Kind+":"+from.Name+">"+to.Kind+":"+to.Name)
		}
		return out
	}

	want := signature(Correlate(uuid.New(), srcs, DefaultOptions()))
	if len(want) != 6 {
		t.Fatalf("cross refs=%v want 6", want)
	}
	for i := 0; i < 25; i++ {
		got := signature(Correlate(uuid.New(), srcs, DefaultOptions()))
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("run %d: order changed at %d: %v vs %v", i, j, got, want)
			}
		}
	}
}
