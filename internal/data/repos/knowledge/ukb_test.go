package knowledge

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/qalam-backend/internal/data/db"
	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

func entity(kind, name string) *types.KnowledgeEntity {
	return &types.KnowledgeEntity{Kind: kind, Name: name, NormalizedName: name}
}

func TestUKBRepoSwapReplacesGeneration(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	p := testutil.SeedProject(t, ctx, db, uuid.New())
	repo := NewUKBRepo(db, testutil.Logger(t))

	if _, err := repo.Snapshot(dbc, p.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("absent ukb: expected not found, got %v", err)
	}
	if err := repo.MarkBuilding(dbc, p.ID); err != nil {
		t.Fatalf("MarkBuilding: %v", err)
	}
	row, err := repo.Get(dbc, p.ID)
	if err != nil || row.Status != types.UKBBuilding || row.Generation != 0 {
		t.Fatalf("after MarkBuilding: row=%+v err=%v", row, err)
	}

	gen, err := repo.Swap(dbc, p.ID, &UKBContent{
		Themes:   datatypes.JSON([]byte(`["loss"]`)),
		Entities: []*types.KnowledgeEntity{entity(types.EntityCharacter, "a"), entity(types.EntityPlace, "b")},
	})
	if err != nil || gen != 1 {
		t.Fatalf("first swap: gen=%d err=%v", gen, err)
	}

	if err := repo.MarkBuilding(dbc, p.ID); err != nil {
		t.Fatalf("MarkBuilding (rebuild): %v", err)
	}
	snap, err := repo.Snapshot(dbc, p.ID)
	if err != nil {
		t.Fatalf("Snapshot during rebuild: %v", err)
	}
	if len(snap.Entities) != 2 || snap.UKB.Status != types.UKBBuilding {
		t.Fatalf("readers should still see generation 1 while building: %d entities status=%q", len(snap.Entities), snap.UKB.Status)
	}

	gen, err = repo.Swap(dbc, p.ID, &UKBContent{
		Entities: []*types.KnowledgeEntity{entity(types.EntityCharacter, "a"), entity(types.EntityEvent, "c"), entity(types.EntityClaim, "d")},
	})
	if err != nil || gen != 2 {
		t.Fatalf("second swap: gen=%d err=%v", gen, err)
	}
	snap, err = repo.Snapshot(dbc, p.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.UKB.Status != types.UKBReady || snap.UKB.Generation != 2 {
		t.Fatalf("ukb=%+v", snap.UKB)
	}
	if len(snap.Entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(snap.Entities))
	}
	for _, e := range snap.Entities {
		if e.Generation != 2 {
			t.Fatalf("entity %q from generation %d leaked into snapshot", e.Name, e.Generation)
		}
	}
	if got := len(snap.ByKind(types.EntityPlace)); got != 0 {
		t.Fatalf("old place survived swap: %d", got)
	}

	entRepo := NewKnowledgeEntityRepo(db, testutil.Logger(t))
	cur, err := entRepo.ListCurrent(dbc, p.ID, types.EntityCharacter)
	if err != nil || len(cur) != 1 {
		t.Fatalf("ListCurrent: err=%v len=%d", err, len(cur))
	}
}

func TestUKBRepoAbortBuild(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewUKBRepo(db, testutil.Logger(t))

	fresh := testutil.SeedProject(t, ctx, db, uuid.New())
	if err := repo.MarkBuilding(dbc, fresh.ID); err != nil {
		t.Fatalf("MarkBuilding: %v", err)
	}
	if err := repo.AbortBuild(dbc, fresh.ID); err != nil {
		t.Fatalf("AbortBuild: %v", err)
	}
	if _, err := repo.Get(dbc, fresh.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("never-built ukb should be absent after abort, got %v", err)
	}

	built := testutil.SeedProject(t, ctx, db, uuid.New())
	if _, err := repo.Swap(dbc, built.ID, &UKBContent{}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	_ = repo.MarkBuilding(dbc, built.ID)
	if err := repo.AbortBuild(dbc, built.ID); err != nil {
		t.Fatalf("AbortBuild: %v", err)
	}
	row, err := repo.Get(dbc, built.ID)
	if err != nil || row.Status != types.UKBReady || row.Generation != 1 {
		t.Fatalf("row=%+v err=%v", row, err)
	}
}

func TestKnowledgeEntityRepoSetCoordinates(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	p := testutil.SeedProject(t, ctx, db, uuid.New())
	place := testutil.SeedEntity(t, ctx, db, p.ID, 0, types.EntityPlace, "Damascus")
	repo := NewKnowledgeEntityRepo(db, testutil.Logger(t))

	if err := repo.SetCoordinates(dbc, place.ID, 91, 0); !apperrors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("latitude 91: expected invalid argument, got %v", err)
	}
	if err := repo.SetCoordinates(dbc, place.ID, 33.51, 36.29); err != nil {
		t.Fatalf("SetCoordinates: %v", err)
	}
	got, err := repo.GetByID(dbc, place.ID)
	if err != nil || !got.ValidCoordinates() {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}

func TestUKBRepoSwapRejectsDuplicateIdentity(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	p := testutil.SeedProject(t, ctx, gdb, uuid.New())
	repo := NewUKBRepo(gdb, testutil.Logger(t))

	_, err := repo.Swap(dbc, p.ID, &UKBContent{
		Entities: []*types.KnowledgeEntity{entity(types.EntityCharacter, "a"), entity(types.EntityCharacter, "a")},
	})
	if err == nil || !db.IsUniqueViolation(err) {
		t.Fatalf("expected a unique violation, got %v", err)
	}
	if _, err := repo.Get(dbc, p.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("failed swap left a ukb row: %v", err)
	}
}
