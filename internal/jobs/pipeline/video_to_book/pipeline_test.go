package video_to_book

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/ingestion/analyzers"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/pipelinetest"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/knowledge/correlator"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
)

func TestEmbeddedSpecParses(t *testing.T) {
	data, err := pipelineSpecFS.ReadFile("pipeline.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	stages, err := parseStages(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(stages) != len(fallbackStages) {
		t.Fatalf("got %d stages", len(stages))
	}
	for i, s := range stages {
		if s.Name != fallbackStages[i].Name || s.Artifact != fallbackStages[i].Artifact {
			t.Fatalf("stage %d = %+v, want %+v", i, s, fallbackStages[i])
		}
	}
	if stages[len(stages)-1].EndPct != 100 {
		t.Fatalf("last stage ends at %d", stages[len(stages)-1].EndPct)
	}
}

func TestParseStagesRejects(t *testing.T) {
	cases := map[string]string{
		"wrong pipeline": "pipeline: other\nstages:\n  - {name: text_cleanup, artifact: clean_text, start_pct: 0, end_pct: 10}\n",
		"no stages":      "pipeline: video_to_book\n",
		"unknown stage":  "pipeline: video_to_book\nstages:\n  - {name: dubbing, artifact: x, start_pct: 0, end_pct: 10}\n",
		"duplicate":      "pipeline: video_to_book\nstages:\n  - {name: text_cleanup, artifact: a, start_pct: 0, end_pct: 10}\n  - {name: text_cleanup, artifact: a, start_pct: 10, end_pct: 20}\n",
		"no artifact":    "pipeline: video_to_book\nstages:\n  - {name: text_cleanup, start_pct: 0, end_pct: 10}\n",
		"backwards":      "pipeline: video_to_book\nstages:\n  - {name: text_cleanup, artifact: a, start_pct: 20, end_pct: 40}\n  - {name: final_narrative, artifact: b, start_pct: 30, end_pct: 100}\n",
	}
	for name, doc := range cases {
		if _, err := parseStages([]byte(doc)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestSplitPieces(t *testing.T) {
	text := "one\n\ntwo\n\n" + strings.Repeat("x", 25) + "\n\nthree"
	got := SplitPieces(text, 10)
	want := []string{"one\n\ntwo", "xxxxxxxxxx", "xxxxxxxxxx", "xxxxx", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("piece %d = %q, want %q", i, got[i], want[i])
		}
	}
	if SplitPieces("  \n\n ", 10) != nil {
		t.Fatalf("blank text should yield no pieces")
	}
}

func TestParseChapters(t *testing.T) {
	out := ParseChapters("Prologue text.\n## The Road\nLine one.\nLine two.\n##   \n## The River\nWater.", 3)
	if len(out) != 3 {
		t.Fatalf("got %+v", out)
	}
	if out[0].Title != "Chapter 3" || out[0].Content != "Prologue text." {
		t.Fatalf("untitled lead = %+v", out[0])
	}
	if out[1].Title != "The Road" || out[1].Content != "Line one.\nLine two." {
		t.Fatalf("second = %+v", out[1])
	}
	if out[2].Title != "The River" {
		t.Fatalf("third = %+v", out[2])
	}
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, in analyzers.Input) *analyzers.Result {
	return &analyzers.Result{SourceID: in.SourceID.String(), Kind: in.Kind, Transcript: "um so Layla uh left Cairo at dawn"}
}

type fakeExtractor struct{ calls int }

func (f *fakeExtractor) Extract(_ context.Context, _ string) (*extractor.Extraction, error) {
	f.calls++
	ex := extractor.Empty()
	ex.Characters = append(ex.Characters, extractor.Character{Name: "Layla", Role: "traveler"})
	ex.Places = append(ex.Places, extractor.Place{Name: "Cairo"})
	return ex, nil
}

func bookLLM() *pipelinetest.LLM {
	return &pipelinetest.LLM{Text: func(system, _ string) (string, error) {
		switch {
		case strings.Contains(system, "clean raw transcripts"):
			return "Layla left Cairo at dawn.", nil
		case strings.Contains(system, "literary editor"):
			return "Close third person, spare imagery.", nil
		default:
			return "## The Road\nLayla left Cairo.\n\n## The River\nShe reached the Nile.", nil
		}
	}}
}

func runToEnd(t *testing.T, h *pipelinetest.Harness, id uuid.UUID, handlers []jobrt.Handler) *types.Task {
	t.Helper()
	for i := 0; i < 40; i++ {
		row := h.Get(t, id)
		if types.IsTerminal(row.Status) {
			return row
		}
		h.RunOnce(t, handlers...)
	}
	t.Fatalf("coordinator did not finish")
	return nil
}

func TestVideoToBookEndToEndAndResume(t *testing.T) {
	h := pipelinetest.New(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, ctx, h.DB, uuid.New())
	testutil.SeedSource(t, ctx, h.DB, project.ID, types.SourceKindVideo)

	asm, err := prompts.NewAssembler()
	if err != nil {
		t.Fatalf("assembler: %v", err)
	}
	llm := bookLLM()
	ex := &fakeExtractor{}
	deps := &StepDeps{
		Sources:   h.Repos.Sources,
		Artifacts: h.Repos.Artifacts,
		Chapters:  h.Repos.Chapters,
		Analyzer:  fakeAnalyzer{},
		Extractor: ex,
		Text:      generators.NewTextGenerator(h.Log, llm, asm),
		Loader:    pipelines.NewNarrativeLoader(h.Log, h.Repos.Projects, h.Repos.UKB, nil),
		Options:   correlator.DefaultOptions(),
	}
	coord := New(h.Log, h.Repos.Sources, h.Repos.Artifacts, h)
	coord.engine.MinPollInterval = 0
	handlers := append([]jobrt.Handler{coord}, NewSteps(h.Log, deps)...)

	first := h.Enqueue(t, pipelines.KindVideoToBook, &project.ID, nil)
	row := runToEnd(t, h, first.ID, handlers)
	if row.Status != types.TaskSucceeded || row.Progress != 100 {
		t.Fatalf("status=%q progress=%d", row.Status, row.Progress)
	}

	dbc := dbctx.Context{Ctx: ctx}
	chapters, err := h.Repos.Chapters.ListByProject(dbc, project.ID)
	if err != nil {
		t.Fatalf("chapters: %v", err)
	}
	if len(chapters) != 2 || chapters[0].Title != "The Road" || chapters[1].Title != "The River" {
		t.Fatalf("unexpected chapters %+v", chapters)
	}
	if chapters[1].Position <= chapters[0].Position {
		t.Fatalf("positions not increasing")
	}
	for _, kind := range []string{types.ArtifactTranscript, types.ArtifactCleanText, types.ArtifactExtraction, types.ArtifactStyleNotes, types.ArtifactNarrativeDraft} {
		arts, err := h.Repos.Artifacts.ListByProject(dbc, project.ID, kind)
		if err != nil || len(arts) != 1 {
			t.Fatalf("%s artifacts: %v %d", kind, err, len(arts))
		}
	}
	if llm.Calls("Known characters: Layla") != 1 {
		t.Fatalf("style notes did not see the extracted cast")
	}
	if llm.Calls("Close third person") != 1 {
		t.Fatalf("final narrative did not receive style notes")
	}

	calls := len(llm.Prompts)
	second := h.Enqueue(t, pipelines.KindVideoToBook, &project.ID, nil)
	row = runToEnd(t, h, second.ID, handlers)
	if row.Status != types.TaskSucceeded {
		t.Fatalf("rerun status=%q", row.Status)
	}
	if len(llm.Prompts) != calls || ex.calls != 1 {
		t.Fatalf("rerun regenerated: prompts %d -> %d, extractions %d", calls, len(llm.Prompts), ex.calls)
	}
	chapters, _ = h.Repos.Chapters.ListByProject(dbc, project.ID)
	if len(chapters) != 2 {
		t.Fatalf("rerun duplicated chapters: %d", len(chapters))
	}
}

func TestVideoToBookNoSourcesFails(t *testing.T) {
	h := pipelinetest.New(t)
	project := testutil.SeedProject(t, context.Background(), h.DB, uuid.New())
	coord := New(h.Log, h.Repos.Sources, h.Repos.Artifacts, h)

	row, _ := h.Run(t, coord, &project.ID, nil)
	if row.Status != types.TaskFailed {
		t.Fatalf("status=%q", row.Status)
	}
}
