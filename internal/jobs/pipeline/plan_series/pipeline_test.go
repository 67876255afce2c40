package plan_series

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
)

func newPipeline(t *testing.T, h *pipelinetest.Harness, llm *pipelinetest.LLM) *Pipeline {
	t.Helper()
	asm, err := prompts.NewAssembler()
	if err != nil {
		t.Fatalf("assembler: %v", err)
	}
	loader := pipelines.NewNarrativeLoader(h.Log, h.Repos.Projects, h.Repos.UKB, nil)
	return New(h.Log, loader, generators.NewEpisodePlanner(h.Log, llm, asm), h.Repos.SeriesOutline)
}

func TestPlanSeriesPersistsOutline(t *testing.T) {
	h := pipelinetest.New(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, ctx, h.DB, uuid.New())
	llm := &pipelinetest.LLM{JSON: map[string]any{"title": "Sandstorm", "logline": "They cross.", "cliffhanger": "A wall of dust."}}

	row, history := h.Run(t, newPipeline(t, h, llm), &project.ID, map[string]any{
		"series": map[string]any{"numEpisodes": 3, "targetDurationMinutes": 22},
	})
	if row.Status != types.TaskSucceeded {
		t.Fatalf("status=%q", row.Status)
	}
	last := -1
	for _, s := range history {
		if s.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", s.Progress, last)
		}
		last = s.Progress
	}

	var res struct {
		SeriesOutlineID string               `json:"series_outline_id"`
		Plan            generators.SeriesPlan `json:"plan"`
	}
	pipelinetest.Result(t, row, &res)
	if len(res.Plan.Episodes) != 3 || res.Plan.Title != project.Title {
		t.Fatalf("unexpected plan %+v", res.Plan)
	}
	id, err := uuid.Parse(res.SeriesOutlineID)
	if err != nil {
		t.Fatalf("outline id %q", res.SeriesOutlineID)
	}
	outline, err := h.Repos.SeriesOutline.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil || outline.NumEpisodes != 3 {
		t.Fatalf("outline=%+v err=%v", outline, err)
	}
	var n int64
	if err := h.DB.Model(&types.EpisodeOutline{}).Where("series_outline_id = ?", id).Count(&n).Error; err != nil || n != 3 {
		t.Fatalf("episodes=%d err=%v", n, err)
	}
	arts, _ := h.Repos.Artifacts.ListByProject(dbctx.Context{Ctx: ctx}, project.ID, types.ArtifactEpisodePlan)
	if len(arts) != 1 {
		t.Fatalf("episode plan artifacts=%d", len(arts))
	}
}

func TestPlanSeriesRejectsEpisodeCount(t *testing.T) {
	h := pipelinetest.New(t)
	project := testutil.SeedProject(t, context.Background(), h.DB, uuid.New())
	llm := &pipelinetest.LLM{}

	for _, n := range []int{0, generators.MaxEpisodes + 1} {
		row, _ := h.Run(t, newPipeline(t, h, llm), &project.ID, map[string]any{
			"series": map[string]any{"numEpisodes": n},
		})
		if row.Status != types.TaskFailed {
			t.Fatalf("numEpisodes=%d: status=%q", n, row.Status)
		}
	}
	if len(llm.Prompts) != 0 {
		t.Fatalf("llm called for an invalid request")
	}
}
