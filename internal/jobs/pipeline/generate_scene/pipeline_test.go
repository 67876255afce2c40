package generate_scene

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

func newPipeline(t *testing.T, h *pipelinetest.Harness, llm *pipelinetest.LLM) *Pipeline {
	t.Helper()
	asm, err := prompts.NewAssembler()
	if err != nil {
		t.Fatalf("assembler: %v", err)
	}
	loader := pipelines.NewNarrativeLoader(h.Log, h.Repos.Projects, h.Repos.UKB, nil)
	return New(h.Log, loader, generators.NewTextGenerator(h.Log, llm, asm), h.Repos.Artifacts)
}

func TestGenerateSceneReportsAndSucceeds(t *testing.T) {
	h := pipelinetest.New(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, ctx, h.DB, uuid.New())
	llm := &pipelinetest.LLM{Text: func(_, _ string) (string, error) { return "The caravan left at dawn.", nil }}

	row, history := h.Run(t, newPipeline(t, h, llm), &project.ID, map[string]any{
		"scene_request": map[string]any{"scene_type": "new", "conflict": "a storm"},
	})
	if row.Status != types.TaskSucceeded || row.Progress != 100 {
		t.Fatalf("unexpected row status=%q progress=%d", row.Status, row.Progress)
	}

	seen := map[int]bool{}
	last := -1
	for _, s := range history {
		if s.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", s.Progress, last)
		}
		last = s.Progress
		seen[s.Progress] = true
	}
	for _, pct := range []int{10, 50, 100} {
		if !seen[pct] {
			t.Fatalf("progress %d never published: %+v", pct, history)
		}
	}
	final := history[len(history)-1]
	if final.State != progress.StateSucceeded {
		t.Fatalf("final state %q", final.State)
	}

	var res struct {
		Text       string `json:"text"`
		ArtifactID string `json:"artifact_id"`
	}
	pipelinetest.Result(t, row, &res)
	if res.Text != "The caravan left at dawn." {
		t.Fatalf("text=%q", res.Text)
	}
	arts, err := h.Repos.Artifacts.ListByProject(dbctx.Context{Ctx: ctx}, project.ID, types.ArtifactSceneText)
	if err != nil || len(arts) != 1 || arts[0].ID.String() != res.ArtifactID {
		t.Fatalf("artifact not stored: %v %+v", err, arts)
	}
	if arts[0].ProducedByTaskID == nil || *arts[0].ProducedByTaskID != row.ID {
		t.Fatalf("artifact not attributed to task")
	}
}

func TestGenerateSceneMissingProjectFails(t *testing.T) {
	h := pipelinetest.New(t)
	llm := &pipelinetest.LLM{}
	missing := uuid.New()

	row, history := h.Run(t, newPipeline(t, h, llm), &missing, nil)
	if row.Status != types.TaskFailed {
		t.Fatalf("status=%q", row.Status)
	}
	final := history[len(history)-1]
	if final.Error == nil || final.Error.Kind != apperrors.KindOf(apperrors.ErrNotFound) {
		t.Fatalf("unexpected error %+v", final.Error)
	}
	if llm.Calls("") != 0 {
		t.Fatalf("llm called for a missing project")
	}
}

func TestGenerateSceneEmptyOutputFails(t *testing.T) {
	h := pipelinetest.New(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, ctx, h.DB, uuid.New())
	llm := &pipelinetest.LLM{Text: func(_, _ string) (string, error) { return "   ", nil }}

	row, _ := h.Run(t, newPipeline(t, h, llm), &project.ID, nil)
	if row.Status != types.TaskFailed {
		t.Fatalf("status=%q", row.Status)
	}
	arts, _ := h.Repos.Artifacts.ListByProject(dbctx.Context{Ctx: ctx}, project.ID, types.ArtifactSceneText)
	if len(arts) != 0 {
		t.Fatalf("artifact stored for failed generation")
	}
}
