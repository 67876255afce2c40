package rebuild_ukb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/knowledge/correlator"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/services"
)

func markAnalyzed(t *testing.T, h *pipelinetest.Harness, projectID uuid.UUID, names ...string) {
	t.Helper()
	ctx := context.Background()
	src := testutil.SeedSource(t, ctx, h.DB, projectID, types.SourceKindText)
	ex := extractor.Empty()
	for _, n := range names {
		ex.Characters = append(ex.Characters, extractor.Character{Name: n})
	}
	m, err := ex.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	b, err := json.Marshal(map[string]any{"source_id": src.ID.String(), "narrative_analysis": m})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := h.Repos.Sources.MarkAnalyzed(dbctx.Context{Ctx: ctx}, src.ID, datatypes.JSON(b)); err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}
}

func newPipeline(h *pipelinetest.Harness) *Pipeline {
	return New(h.Log, correlator.NewBuilder(h.Log, h.Repos.Sources, h.Repos.UKB, nil), h.Repos.Projects)
}

func TestRebuildUKBBumpsGeneration(t *testing.T) {
	h := pipelinetest.New(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	project := testutil.SeedProject(t, ctx, h.DB, uuid.New())
	markAnalyzed(t, h, project.ID, "Yusuf", "Yaqub")
	markAnalyzed(t, h, project.ID, "yusuf")
	p := newPipeline(h)

	row, _ := h.Run(t, p, &project.ID, nil)
	if row.Status != types.TaskSucceeded {
		t.Fatalf("status=%q message=%q", row.Status, row.Message)
	}
	var res struct {
		Generation      int `json:"generation"`
		CrossReferences int `json:"cross_references"`
	}
	pipelinetest.Result(t, row, &res)
	if res.Generation != 1 {
		t.Fatalf("generation=%d", res.Generation)
	}
	snap, err := h.Repos.UKB.Snapshot(dbc, project.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.UKB.Status != types.UKBReady || len(snap.ByKind(types.EntityCharacter)) != 2 {
		t.Fatalf("ukb status=%q characters=%d", snap.UKB.Status, len(snap.ByKind(types.EntityCharacter)))
	}
	if snap.UKB.BuiltByTaskID == nil || *snap.UKB.BuiltByTaskID != row.ID {
		t.Fatalf("built_by_task_id=%v", snap.UKB.BuiltByTaskID)
	}

	row, _ = h.Run(t, p, &project.ID, nil)
	pipelinetest.Result(t, row, &res)
	if row.Status != types.TaskSucceeded || res.Generation != 2 {
		t.Fatalf("second rebuild status=%q generation=%d", row.Status, res.Generation)
	}
}

func TestRebuildUKBChildrenCoalesce(t *testing.T) {
	h := pipelinetest.New(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, ctx, h.DB, uuid.New())
	markAnalyzed(t, h, project.ID, "Layla")
	p := newPipeline(h)

	reg := runtime.NewRegistry()
	reg.MustRegister(p)
	tasks := services.NewTaskService(h.DB, h.Log, h.Repos.Tasks, h.Store, reg, nil)

	kwargs := map[string]any{"project_id": project.ID.String(), "dedupe_key": project.ID.String()}
	first := h.Enqueue(t, pipelines.KindAnalyzeSources, &project.ID, nil)
	second := h.Enqueue(t, pipelines.KindAnalyzeSources, &project.ID, nil)
	a, err := tasks.SubmitChild(ctx, first, pipelines.KindRebuildUKB, kwargs)
	if err != nil {
		t.Fatalf("submit child: %v", err)
	}
	b, err := tasks.SubmitChild(ctx, second, pipelines.KindRebuildUKB, kwargs)
	if err != nil {
		t.Fatalf("submit child: %v", err)
	}
	if a != b {
		t.Fatalf("rebuilds for one project should coalesce: %s vs %s", a, b)
	}

	h.RunOnce(t, p)
	if row := h.Get(t, a); row.Status != types.TaskSucceeded {
		t.Fatalf("rebuild status=%q", row.Status)
	}

	// Once the rebuild is terminal a new request starts a fresh one.
	c, err := tasks.SubmitChild(ctx, second, pipelines.KindRebuildUKB, kwargs)
	if err != nil {
		t.Fatalf("submit child: %v", err)
	}
	if c == a {
		t.Fatalf("finished rebuild was reused")
	}
}
