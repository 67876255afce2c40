package artifacts

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type ArtifactRepo interface {
	Create(dbc dbctx.Context, a *types.Artifact) (*types.Artifact, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Artifact, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID, kind string) ([]*types.Artifact, error)
	// FindByStage returns the newest artifact recorded for a coordinator stage key, or nil.
	FindByStage(dbc dbctx.Context, projectID uuid.UUID, stageKey string) (*types.Artifact, error)
}

type artifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{db: db, log: baseLog.With("repo", "ArtifactRepo")}
}

func (r *artifactRepo) Create(dbc dbctx.Context, a *types.Artifact) (*types.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if a == nil || a.ProjectID == uuid.Nil || a.Kind == "" {
		return nil, apperrors.ErrInvalidArgument
	}
	if len(a.Payload) == 0 && a.PayloadRef == "" {
		return nil, apperrors.ErrInvalidArgument
	}
	if err := transaction.WithContext(dbc.Ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

func (r *artifactRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var a types.Artifact
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *artifactRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID, kind string) ([]*types.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Where("project_id = ?", projectID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []*types.Artifact
	if err := q.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) FindByStage(dbc dbctx.Context, projectID uuid.UUID, stageKey string) (*types.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if stageKey == "" {
		return nil, nil
	}
	var out []*types.Artifact
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND stage_key = ?", projectID, stageKey).
		Order("created_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}
