package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) *types.Project {
	tb.Helper()
	p := &types.Project{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		Title:       "project",
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedSource(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, kind string) *types.Source {
	tb.Helper()
	s := &types.Source{
		ID:          uuid.New(),
		ProjectID:   projectID,
		DisplayName: "source." + kind,
		StoragePath: "projects/" + projectID.String() + "/source." + kind,
		Kind:        kind,
		Status:      types.SourceUploaded,
		Metadata:    datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed source: %v", err)
	}
	return s
}

// SeedEntity inserts an entity into the project's current generation.
func SeedEntity(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, generation int, kind, name string) *types.KnowledgeEntity {
	tb.Helper()
	e := &types.KnowledgeEntity{
		ID:                  uuid.New(),
		ProjectID:           projectID,
		Generation:          generation,
		Kind:                kind,
		Name:                name,
		NormalizedName:      name,
		Aliases:             datatypes.JSON([]byte("[]")),
		RelatedCharacterIDs: datatypes.JSON([]byte("[]")),
		SourceIDs:           datatypes.JSON([]byte("[]")),
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed entity: %v", err)
	}
	return e
}

func SeedChapter(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, position int, title, content string) *types.Chapter {
	tb.Helper()
	c := &types.Chapter{
		ID:        uuid.New(),
		ProjectID: projectID,
		Position:  position,
		Title:     title,
		Content:   content,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chapter: %v", err)
	}
	return c
}
