package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type KnowledgeEntityRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeEntity, error)
	// ListCurrent returns entities of the project's current UKB generation, optionally
	// filtered by kind ("" means all kinds).
	ListCurrent(dbc dbctx.Context, projectID uuid.UUID, kind string) ([]*types.KnowledgeEntity, error)
	SetCoordinates(dbc dbctx.Context, id uuid.UUID, lat, lng float64) error
}

type knowledgeEntityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeEntityRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeEntityRepo {
	return &knowledgeEntityRepo{db: db, log: baseLog.With("repo", "KnowledgeEntityRepo")}
}

func (r *knowledgeEntityRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeEntity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var e types.KnowledgeEntity
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *knowledgeEntityRepo) ListCurrent(dbc dbctx.Context, projectID uuid.UUID, kind string) ([]*types.KnowledgeEntity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	current := transaction.Model(&types.UnifiedKnowledgeBase{}).
		Select("generation").
		Where("project_id = ?", projectID)
	q := transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND generation = (?)", projectID, current)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []*types.KnowledgeEntity
	if err := q.Order("name ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SetCoordinates stores geocoded coordinates for a place. Out-of-range values are rejected.
func (r *knowledgeEntityRepo) SetCoordinates(dbc dbctx.Context, id uuid.UUID, lat, lng float64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if !types.ValidLatLng(lat, lng) {
		return apperrors.ErrInvalidArgument
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.KnowledgeEntity{}).
		Where("id = ? AND kind = ?", id, types.EntityPlace).
		Updates(map[string]interface{}{
			"latitude":   lat,
			"longitude":  lng,
			"updated_at": time.Now().UTC(),
		}).Error
}
