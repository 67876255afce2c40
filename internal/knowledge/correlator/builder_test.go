package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

func analyzed(t *testing.T, src repos.SourceRepo, id uuid.UUID, ex *extractor.Extraction) {
	t.Helper()
	m, err := ex.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	b, err := json.Marshal(map[string]any{"source_id": id.String(), "narrative_analysis": m})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := src.MarkAnalyzed(dbctx.Context{Ctx: context.Background()}, id, datatypes.JSON(b)); err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}
}

func TestBuilderRebuildSwapsGenerations(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	p := testutil.SeedProject(t, ctx, db, uuid.New())

	s1 := testutil.SeedSource(t, ctx, db, p.ID, types.SourceKindText)
	s2 := testutil.SeedSource(t, ctx, db, p.ID, types.SourceKindPDF)
	s3 := testutil.SeedSource(t, ctx, db, p.ID, types.SourceKindImage)

	ex1 := chars("Yusuf")
	ex1.Places = append(ex1.Places, extractor.Place{Name: "Egypt"})
	analyzed(t, set.Sources, s1.ID, ex1)
	analyzed(t, set.Sources, s2.ID, chars("yusuf", "Yaqub"))
	if err := set.Sources.MarkError(dbctx.Context{Ctx: ctx}, s3.ID, datatypes.JSON([]byte(`{"error":"ocr missing"}`))); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	b := NewBuilder(log, set.Sources, set.UKB, nil)
	b.Options = DefaultOptions()
	taskID := uuid.New()
	res, gen, err := b.Rebuild(ctx, p.ID, &taskID)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if gen != 1 || len(res.Entities) != 3 {
		t.Fatalf("gen=%d entities=%d", gen, len(res.Entities))
	}

	snap, err := set.UKB.Snapshot(dbctx.Context{Ctx: ctx}, p.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.UKB.Status != types.UKBReady || snap.UKB.Generation != 1 || len(snap.Entities) != 3 {
		t.Fatalf("snapshot status=%q gen=%d entities=%d", snap.UKB.Status, snap.UKB.Generation, len(snap.Entities))
	}
	if snap.UKB.BuiltByTaskID == nil || *snap.UKB.BuiltByTaskID != taskID {
		t.Fatalf("built_by_task_id=%v", snap.UKB.BuiltByTaskID)
	}
	var yusuf *types.KnowledgeEntity
	for _, e := range snap.ByKind(types.EntityCharacter) {
		if e.NormalizedName == "yusuf" {
			yusuf = e
		}
	}
	if yusuf == nil || yusuf.MentionCount != 2 || len(yusuf.SourceIDList()) != 2 {
		t.Fatalf("yusuf=%+v", yusuf)
	}
	var scores types.ConfidenceScores
	if err := json.Unmarshal(snap.UKB.ConfidenceScores, &scores); err != nil || scores.Overall <= 0 {
		t.Fatalf("confidence scores=%s err=%v", snap.UKB.ConfidenceScores, err)
	}

	res, gen, err = b.Rebuild(ctx, p.ID, nil)
	if err != nil || gen != 2 {
		t.Fatalf("second Rebuild: gen=%d err=%v", gen, err)
	}
	snap, err = set.UKB.Snapshot(dbctx.Context{Ctx: ctx}, p.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Entities) != len(res.Entities) {
		t.Fatalf("generation mix: %d stored vs %d built", len(snap.Entities), len(res.Entities))
	}
	for _, e := range snap.Entities {
		if e.Generation != 2 {
			t.Fatalf("entity %s from generation %d", e.Name, e.Generation)
		}
	}
}

type failingSources struct{ repos.SourceRepo }

func (failingSources) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Source, error) {
	return nil, errors.New("database unavailable")
}

func TestBuilderRebuildFailureRestoresState(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	p := testutil.SeedProject(t, ctx, db, uuid.New())

	b := NewBuilder(log, failingSources{set.Sources}, set.UKB, nil)
	if _, _, err := b.Rebuild(ctx, p.ID, nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := set.UKB.Get(dbctx.Context{Ctx: ctx}, p.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("never-built ukb should be absent after failed build, got %v", err)
	}
}
