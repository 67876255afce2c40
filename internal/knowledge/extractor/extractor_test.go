package extractor

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/yungbote/qalam-backend/internal/ingestion/mdchunk"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

type fakeLLM struct {
	text     string
	textErr  error
	obj      map[string]any
	objErr   error
	calls    int
	jsonCall int
	lastUser string
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastUser = user
	return f.text, f.textErr
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, name string, schema map[string]any) (map[string]any, error) {
	f.jsonCall++
	f.lastUser = user
	return f.obj, f.objErr
}

func TestExtractParsesFencedReply(t *testing.T) {
	llm := &fakeLLM{text: "```json\n{\"title\":\"Rihla\",\"themes\":[\"exile\"],\"characters\":[{\"name\":\"Ibn Battuta\",\"role\":\"traveler\"}],\"events\":[{\"title\":\"Departure\",\"timeline_position\":\"1325\"}],\"places\":[{\"name\":\"Tangier\"}],\"claims\":[{\"content\":\"He left at 21\",\"reliability\":\"80\"}]}\n```"}
	ex, err := New(nil, llm).Extract(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ex.Title != "Rihla" || len(ex.Characters) != 1 || ex.Characters[0].Role != "traveler" {
		t.Fatalf("unexpected extraction: %+v", ex)
	}
	if ex.Events[0].TimelinePosition != "1325" {
		t.Fatalf("snake_case timeline position not read: %+v", ex.Events)
	}
	if r := ex.Claims[0].Reliability; r == nil || *r != 0.8 {
		t.Fatalf("reliability=%v want 0.8", r)
	}
}

func TestExtractSalvagesEmbeddedObject(t *testing.T) {
	llm := &fakeLLM{text: "Sure! Here it is: {\"title\":\"T\",\"places\":[{\"name\":\"Fez\"}]} Hope that helps."}
	ex, err := New(nil, llm).Extract(context.Background(), "x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(ex.Places) != 1 || ex.Places[0].Name != "Fez" {
		t.Fatalf("places=%+v", ex.Places)
	}
	if ex.Characters == nil || ex.Events == nil || ex.Claims == nil || ex.Themes == nil {
		t.Fatalf("missing lists must be empty, not nil: %+v", ex)
	}
}

func TestExtractUnparseableReplyFails(t *testing.T) {
	llm := &fakeLLM{text: "I cannot help with that."}
	_, err := New(nil, llm).Extract(context.Background(), "x")
	if !errors.Is(err, apperrors.ErrExtractionFailed) {
		t.Fatalf("err=%v want ErrExtractionFailed", err)
	}
}

func TestExtractEmptyInputSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	ex, err := New(nil, llm).Extract(context.Background(), " \n\t ")
	if err != nil || !ex.IsEmpty() {
		t.Fatalf("ex=%+v err=%v", ex, err)
	}
	if llm.calls != 0 {
		t.Fatalf("llm called %d times for empty input", llm.calls)
	}
}

func TestExtractPropagatesTransientError(t *testing.T) {
	llm := &fakeLLM{textErr: apperrors.Wrap(apperrors.ErrTransientLLM, errors.New("429"))}
	_, err := New(nil, llm).Extract(context.Background(), "x")
	if !apperrors.IsTransient(err) {
		t.Fatalf("err=%v want transient", err)
	}
}

func TestStructuredFallsBackToText(t *testing.T) {
	llm := &fakeLLM{objErr: errors.New("schema rejected"), text: `{"title":"fallback"}`}
	x := New(nil, llm)
	x.Structured = true
	ex, err := x.Extract(context.Background(), "x")
	if err != nil || ex.Title != "fallback" {
		t.Fatalf("ex=%+v err=%v", ex, err)
	}
	if llm.jsonCall != 1 || llm.calls != 1 {
		t.Fatalf("jsonCall=%d calls=%d", llm.jsonCall, llm.calls)
	}

	ok := &fakeLLM{obj: map[string]any{"title": "structured"}}
	x = New(nil, ok)
	x.Structured = true
	if ex, err := x.Extract(context.Background(), "x"); err != nil || ex.Title != "structured" || ok.calls != 0 {
		t.Fatalf("ex=%+v err=%v textCalls=%d", ex, err, ok.calls)
	}
}

func TestTruncateAtParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 10) + "\n\n" + strings.Repeat("b", 10)
	if got := Truncate(text, 15); got != strings.Repeat("a", 10) {
		t.Fatalf("Truncate=%q", got)
	}
	if got := Truncate("short", 15); got != "short" {
		t.Fatalf("Truncate=%q", got)
	}
	if got := Truncate("ابجدهوز", 3); got != "ابج" {
		t.Fatalf("hard cut=%q", got)
	}
}

func TestExtractTruncatesLongInput(t *testing.T) {
	para := strings.Repeat("x", 1000)
	var parts []string
	for i := 0; i < 20; i++ {
		parts = append(parts, para)
	}
	llm := &fakeLLM{text: "{}"}
	if _, err := New(nil, llm).Extract(context.Background(), strings.Join(parts, "\n\n")); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if n := strings.Count(llm.lastUser, para); n != 14 {
		t.Fatalf("prompt carried %d paragraphs, want 14", n)
	}
}

func TestRenderChunksBreadcrumbs(t *testing.T) {
	got := RenderChunks([]mdchunk.Chunk{
		{Text: "intro", Headers: []string{}},
		{Text: "body", Headers: []string{"Book", "Chapter 1"}},
		{Text: "  ", Headers: []string{"X"}},
	})
	want := "intro\n\n[Book > Chapter 1]\nbody"
	if got != want {
		t.Fatalf("RenderChunks=%q want %q", got, want)
	}
}

func TestFromMapRoundTrip(t *testing.T) {
	r := 0.5
	ex := Empty()
	ex.Title = "t"
	ex.Claims = append(ex.Claims, Claim{Content: "c", Reliability: &r})
	m, err := ex.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	back := FromMap(m)
	if back.Title != "t" || len(back.Claims) != 1 || *back.Claims[0].Reliability != 0.5 {
		t.Fatalf("round trip lost data: %+v", back)
	}
	if !FromMap(nil).IsEmpty() {
		t.Fatalf("FromMap(nil) should be empty")
	}
}

func TestParseRejectsNonFiniteReliability(t *testing.T) {
	ex, err := Parse(`{"characters":[{"name":"يوسف"}],"claims":[{"content":"a","reliability":"NaN"},{"content":"b","reliability":"+Inf"},{"content":"c","reliability":"150%"}]}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ex.Characters) != 1 || len(ex.Claims) != 3 {
		t.Fatalf("unexpected extraction %+v", ex)
	}
	for _, c := range ex.Claims[:2] {
		if c.Reliability != nil {
			t.Fatalf("claim %q kept non-finite reliability %v", c.Content, *c.Reliability)
		}
	}
	if r := ex.Claims[2].Reliability; r == nil || *r != 1 {
		t.Fatalf("150%% should clamp to 1, got %v", r)
	}

	m, err := ex.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	back := FromMap(m)
	if len(back.Characters) != 1 || len(back.Claims) != 3 {
		t.Fatalf("round trip lost data: %+v", back)
	}
}

func TestToMapReportsUnencodableExtraction(t *testing.T) {
	nan := math.NaN()
	ex := Empty()
	ex.Claims = append(ex.Claims, Claim{Content: "x", Reliability: &nan})
	if _, err := ex.ToMap(); !errors.Is(err, apperrors.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}
