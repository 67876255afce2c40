package projects

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/qalam-backend/internal/domain"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type ProjectRepo interface {
	Create(dbc dbctx.Context, p *types.Project) (*types.Project, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.Project, error)
	IncrementSourcesCount(dbc dbctx.Context, id uuid.UUID, delta int) error
	SetAnalysisProgress(dbc dbctx.Context, id uuid.UUID, progress float64) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) Create(dbc dbctx.Context, p *types.Project) (*types.Project, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if p == nil {
		return nil, apperrors.ErrInvalidArgument
	}
	if err := transaction.WithContext(dbc.Ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var p types.Project
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.Project, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Project
	if err := transaction.WithContext(dbc.Ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRepo) IncrementSourcesCount(dbc dbctx.Context, id uuid.UUID, delta int) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sources_count": gorm.Expr("sources_count + ?", delta),
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *projectRepo) SetAnalysisProgress(dbc dbctx.Context, id uuid.UUID, progress float64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"analysis_progress": types.ClampUnit(progress),
			"updated_at":        time.Now().UTC(),
		}).Error
}

// Delete removes the project and everything it owns. Tasks are left alone; they only
// reference the project weakly.
func (r *projectRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		owned := []interface{}{
			&types.EpisodeOutline{},
			&types.SeriesOutline{},
			&types.Artifact{},
			&types.WritingSession{},
			&types.UserEdit{},
			&types.KnowledgeEntity{},
			&types.UnifiedKnowledgeBase{},
			&types.Chapter{},
			&types.Source{},
		}
		for _, m := range owned {
			if err := txx.Unscoped().Where("project_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		res := txx.Unscoped().Where("id = ?", id).Delete(&types.Project{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}
