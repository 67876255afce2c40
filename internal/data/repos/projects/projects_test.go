package projects

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

func TestSourceRepoMarkAnalyzedRequiresResult(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	p := testutil.SeedProject(t, ctx, db, uuid.New())
	s := testutil.SeedSource(t, ctx, db, p.ID, types.SourceKindText)

	repo := NewSourceRepo(db, testutil.Logger(t))
	if err := repo.MarkProcessing(dbc, s.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := repo.MarkAnalyzed(dbc, s.ID, nil); !apperrors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("MarkAnalyzed(nil): expected invalid argument, got %v", err)
	}
	if err := repo.MarkAnalyzed(dbc, s.ID, datatypes.JSON([]byte("{}"))); err == nil {
		t.Fatalf("MarkAnalyzed({}): expected error")
	}
	got, err := repo.GetByID(dbc, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.SourceProcessing {
		t.Fatalf("status=%q want processing", got.Status)
	}

	if err := repo.MarkAnalyzed(dbc, s.ID, datatypes.JSON([]byte(`{"chunks":[{"text":"x"}]}`))); err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}
	got, _ = repo.GetByID(dbc, s.ID)
	if got.Status != types.SourceAnalyzed || got.AnalyzedAt == nil {
		t.Fatalf("expected analyzed with timestamp, got status=%q analyzed_at=%v", got.Status, got.AnalyzedAt)
	}

	if err := repo.MarkProcessing(dbc, uuid.New()); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("unknown source: expected not found, got %v", err)
	}
}

func TestProjectRepoDeleteCascades(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	owner := uuid.New()
	p := testutil.SeedProject(t, ctx, db, owner)
	other := testutil.SeedProject(t, ctx, db, owner)
	testutil.SeedSource(t, ctx, db, p.ID, types.SourceKindPDF)
	testutil.SeedSource(t, ctx, db, other.ID, types.SourceKindPDF)
	testutil.SeedEntity(t, ctx, db, p.ID, 1, types.EntityCharacter, "a")
	testutil.SeedChapter(t, ctx, db, p.ID, 0, "one", "text")

	repo := NewProjectRepo(db, testutil.Logger(t))
	if err := repo.IncrementSourcesCount(dbc, p.ID, 1); err != nil {
		t.Fatalf("IncrementSourcesCount: %v", err)
	}
	if err := repo.SetAnalysisProgress(dbc, p.ID, 1.7); err != nil {
		t.Fatalf("SetAnalysisProgress: %v", err)
	}
	got, err := repo.GetByID(dbc, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.SourcesCount != 1 || got.AnalysisProgress != 1 {
		t.Fatalf("sources_count=%d progress=%v", got.SourcesCount, got.AnalysisProgress)
	}

	if err := repo.Delete(dbc, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(dbc, p.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected deleted project to be gone, got %v", err)
	}
	var n int64
	db.Model(&types.Source{}).Unscoped().Where("project_id = ?", p.ID).Count(&n)
	if n != 0 {
		t.Fatalf("sources survived cascade: %d", n)
	}
	db.Model(&types.KnowledgeEntity{}).Where("project_id = ?", p.ID).Count(&n)
	if n != 0 {
		t.Fatalf("entities survived cascade: %d", n)
	}
	db.Model(&types.Source{}).Where("project_id = ?", other.ID).Count(&n)
	if n != 1 {
		t.Fatalf("sibling project lost its sources: %d", n)
	}
	if err := repo.Delete(dbc, p.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestChapterRepoNextPosition(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	p := testutil.SeedProject(t, ctx, db, uuid.New())
	repo := NewChapterRepo(db, testutil.Logger(t))

	pos, err := repo.NextPosition(dbc, p.ID)
	if err != nil || pos != 0 {
		t.Fatalf("empty project: pos=%d err=%v", pos, err)
	}
	testutil.SeedChapter(t, ctx, db, p.ID, 0, "one", "a")
	testutil.SeedChapter(t, ctx, db, p.ID, 4, "two", "b")
	pos, err = repo.NextPosition(dbc, p.ID)
	if err != nil || pos != 5 {
		t.Fatalf("pos=%d err=%v want 5", pos, err)
	}
	rows, err := repo.ListByProject(dbc, p.ID)
	if err != nil || len(rows) != 2 || rows[0].Title != "one" {
		t.Fatalf("ListByProject: err=%v rows=%v", err, rows)
	}
}
