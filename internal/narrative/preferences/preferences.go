package preferences

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

const (
	ToneNeutral  = "neutral"
	ToneFormal   = "formal"
	ToneInformal = "informal"

	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"
)

// RecentEdits is how many of the user's latest edits are inspected.
const RecentEdits = 3

type Preferences struct {
	Tone   string `json:"tone"`
	Length string `json:"length"`
}

func Default() Preferences {
	return Preferences{Tone: ToneNeutral, Length: LengthMedium}
}

func (p Preferences) IsDefault() bool { return p == Default() }

type keywordSet struct {
	label   string
	phrases []string
}

var toneSets = []keywordSet{
	{ToneFormal, []string{"formal", "professional", "academic", "serious", "رسمي", "رسمية", "رسميا", "فصحى", "أكاديمي", "جاد"}},
	{ToneInformal, []string{"informal", "casual", "conversational", "relaxed", "friendly", "chatty", "less formal", "not so formal", "غير رسمي", "غير رسمية", "عامية", "ودي", "بسيط"}},
}

var lengthSets = []keywordSet{
	{LengthShort, []string{"short", "shorter", "shorten", "concise", "brief", "briefer", "terse", "trim", "less detail", "قصير", "قصيرة", "أقصر", "مختصر", "مختصرة", "موجز", "اختصر", "اختصار"}},
	{LengthLong, []string{"long", "longer", "lengthen", "detailed", "expand", "elaborate", "more detail", "طويل", "طويلة", "أطول", "مفصل", "مفصلة", "تفصيل", "أكثر تفصيلا", "وسع"}},
}

type phrase struct {
	tokens []string
	label  string
}

type matcher []phrase

// compile orders phrases longest first so "غير رسمي" wins over "رسمي" and "less formal" over
// "formal".
func compile(sets []keywordSet) matcher {
	var m matcher
	for _, s := range sets {
		for _, p := range s.phrases {
			m = append(m, phrase{tokens: tokenize(p), label: s.label})
		}
	}
	sort.SliceStable(m, func(i, j int) bool { return len(m[i].tokens) > len(m[j].tokens) })
	return m
}

var (
	toneMatcher   = compile(toneSets)
	lengthMatcher = compile(lengthSets)
)

func tokenize(s string) []string {
	folded := cases.Fold().String(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r)
	})
}

// count adds one per phrase occurrence. Matched tokens are consumed so overlapping shorter
// phrases do not count twice.
func (m matcher) count(tokens []string, into map[string]int) {
	for i := 0; i < len(tokens); {
		advanced := false
		for _, p := range m {
			n := len(p.tokens)
			if n == 0 || i+n > len(tokens) {
				continue
			}
			if equalTokens(tokens[i:i+n], p.tokens) {
				into[p.label]++
				i += n
				advanced = true
				break
			}
		}
		if !advanced {
			i++
		}
	}
}

func equalTokens(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// winner returns the label with the strictly highest count, or def on a tie or no match.
func winner(counts map[string]int, sets []keywordSet, def string) string {
	best, bestN, tie := def, 0, false
	for _, s := range sets {
		n := counts[s.label]
		switch {
		case n > bestN:
			best, bestN, tie = s.label, n, false
		case n == bestN && n > 0:
			tie = true
		}
	}
	if bestN == 0 || tie {
		return def
	}
	return best
}

// InferFromNotes derives preferences from edit notes. It is deterministic and makes no
// external calls.
func InferFromNotes(notes []string) Preferences {
	tone := map[string]int{}
	length := map[string]int{}
	for _, n := range notes {
		toks := tokenize(n)
		toneMatcher.count(toks, tone)
		lengthMatcher.count(toks, length)
	}
	return Preferences{
		Tone:   winner(tone, toneSets, ToneNeutral),
		Length: winner(length, lengthSets, LengthMedium),
	}
}

// Learner reads a user's recent AI corrections and manual edits.
type Learner struct {
	Edits repos.UserEditRepo
	log   *logger.Logger
}

func NewLearner(log *logger.Logger, edits repos.UserEditRepo) *Learner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Learner{Edits: edits, log: log.With("component", "PreferenceLearner")}
}

func (l *Learner) Infer(ctx context.Context, userID uuid.UUID) (Preferences, error) {
	if l == nil || l.Edits == nil || userID == uuid.Nil {
		return Default(), nil
	}
	edits, err := l.Edits.ListRecent(dbctx.Context{Ctx: ctx}, userID, []string{types.EditAICorrection, types.EditManual}, RecentEdits)
	if err != nil {
		return Default(), err
	}
	notes := make([]string, 0, len(edits))
	for _, e := range edits {
		notes = append(notes, e.Notes)
	}
	p := InferFromNotes(notes)
	l.log.Debug("preferences inferred", "user_id", userID.String(), "edits", len(edits), "tone", p.Tone, "length", p.Length)
	return p, nil
}
