package projects

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type ChapterRepo interface {
	Create(dbc dbctx.Context, chapters []*types.Chapter) ([]*types.Chapter, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Chapter, error)
	NextPosition(dbc dbctx.Context, projectID uuid.UUID) (int, error)
}

type chapterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return &chapterRepo{db: db, log: baseLog.With("repo", "ChapterRepo")}
}

func (r *chapterRepo) Create(dbc dbctx.Context, chapters []*types.Chapter) ([]*types.Chapter, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chapters) == 0 {
		return []*types.Chapter{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&chapters).Error; err != nil {
		return nil, err
	}
	return chapters, nil
}

func (r *chapterRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Chapter, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Chapter
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("position ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterRepo) NextPosition(dbc dbctx.Context, projectID uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var maxPos int
	row := transaction.WithContext(dbc.Ctx).
		Model(&types.Chapter{}).
		Where("project_id = ?", projectID).
		Select("COALESCE(MAX(position), -1)").
		Row()
	if err := row.Scan(&maxPos); err != nil {
		return 0, err
	}
	return maxPos + 1, nil
}
