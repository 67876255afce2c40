package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/qalam-backend/internal/ingestion/mdchunk"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// MaxInputChars bounds the text sent in one extraction call.
const MaxInputChars = 15000

// LLM is the subset of the provider client the extractor calls.
type LLM interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Role        string `json:"role"`
}

type Event struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	TimelinePosition string `json:"timelinePosition"`
}

type Place struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Significance string `json:"significance"`
}

type Claim struct {
	Content     string   `json:"content"`
	Source      string   `json:"source"`
	Reliability *float64 `json:"reliability,omitempty"`
	Evidence    string   `json:"evidence,omitempty"`
}

// Extraction is the typed payload for one source. Every list is non-nil.
type Extraction struct {
	Title      string      `json:"title"`
	Themes     []string    `json:"themes"`
	Characters []Character `json:"characters"`
	Events     []Event     `json:"events"`
	Places     []Place     `json:"places"`
	Claims     []Claim     `json:"claims"`
}

func Empty() *Extraction {
	return &Extraction{
		Themes:     []string{},
		Characters: []Character{},
		Events:     []Event{},
		Places:     []Place{},
		Claims:     []Claim{},
	}
}

func (e *Extraction) IsEmpty() bool {
	return e == nil || (e.Title == "" && len(e.Themes) == 0 && len(e.Characters) == 0 &&
		len(e.Events) == 0 && len(e.Places) == 0 && len(e.Claims) == 0)
}

// ToMap is the form stored in a source's narrative_analysis.
func (e *Extraction) ToMap() (map[string]any, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrExtractionFailed, fmt.Errorf("encode extraction: %w", err))
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrExtractionFailed, fmt.Errorf("decode extraction: %w", err))
	}
	return out, nil
}

// FromMap reads an extraction back from narrative_analysis, tolerating missing fields.
func FromMap(m map[string]any) *Extraction {
	if m == nil {
		return Empty()
	}
	return fromObject(m)
}

type Extractor struct {
	llm LLM
	log *logger.Logger
	// Structured asks the provider for schema-constrained output first and only falls back
	// to the free-text path when that fails.
	Structured bool
}

func New(log *logger.Logger, llm LLM) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{llm: llm, log: log.With("component", "KBExtractor")}
}

// ExtractChunks renders chunks with their header breadcrumbs and extracts from the result.
func (x *Extractor) ExtractChunks(ctx context.Context, chunks []mdchunk.Chunk) (*Extraction, error) {
	return x.Extract(ctx, RenderChunks(chunks))
}

/*
Extract sends text to the LLM and parses the reply.
  - Whitespace-only text returns an empty extraction without calling the LLM.
  - Text over MaxInputChars is cut at the last paragraph boundary before the limit.
  - The reply is fence-stripped and parsed; on failure the first {...} block is salvaged.
  - A reply that still does not parse is ErrExtractionFailed.
*/
func (x *Extractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return Empty(), nil
	}
	if x.llm == nil {
		return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("llm client is not configured"))
	}
	text = Truncate(text, MaxInputChars)
	user := userPrompt(text)

	if x.Structured {
		obj, err := x.llm.GenerateJSON(ctx, systemPrompt, user, "narrative_extraction", Schema())
		switch {
		case err == nil:
			return fromObject(obj), nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case apperrors.IsTransient(err):
			return nil, err
		default:
			x.log.Warn("structured extraction failed; retrying as text", "error", err)
		}
	}

	reply, err := x.llm.GenerateText(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}
	ex, err := Parse(reply)
	if err != nil {
		x.log.Warn("extraction reply unparseable", "error", err, "reply_len", len(reply))
		return nil, err
	}
	return ex, nil
}

// RenderChunks joins chunks as blocks prefixed with "[A > B]" when they have a header path.
func RenderChunks(chunks []mdchunk.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		body := strings.TrimSpace(c.Text)
		if body == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if bc := c.Breadcrumb(); bc != "" {
			b.WriteString("[" + bc + "]\n")
		}
		b.WriteString(body)
	}
	return b.String()
}

// Truncate returns text unchanged when it fits in max characters. Otherwise it cuts at the
// last blank line before the limit, then the last newline, then a hard rune boundary.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	cut, n := 0, 0
	for i := range text {
		if n == max {
			cut = i
			break
		}
		n++
	}
	head := text[:cut]
	if i := strings.LastIndex(head, "\n\n"); i > 0 {
		return strings.TrimRight(head[:i], " \t\r\n")
	}
	if i := strings.LastIndex(head, "\n"); i > 0 {
		return strings.TrimRight(head[:i], " \t\r\n")
	}
	return head
}
