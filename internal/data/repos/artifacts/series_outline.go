package artifacts

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type SeriesOutlineRepo interface {
	// CreateWithEpisodes persists the outline, its episodes and the episode-plan artifact
	// in one transaction.
	CreateWithEpisodes(dbc dbctx.Context, series *types.SeriesOutline, episodes []*types.EpisodeOutline, artifact *types.Artifact) (*types.SeriesOutline, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SeriesOutline, error)
}

type seriesOutlineRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSeriesOutlineRepo(db *gorm.DB, baseLog *logger.Logger) SeriesOutlineRepo {
	return &seriesOutlineRepo{db: db, log: baseLog.With("repo", "SeriesOutlineRepo")}
}

func (r *seriesOutlineRepo) CreateWithEpisodes(dbc dbctx.Context, series *types.SeriesOutline, episodes []*types.EpisodeOutline, artifact *types.Artifact) (*types.SeriesOutline, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if series == nil || series.ProjectID == uuid.Nil {
		return nil, apperrors.ErrInvalidArgument
	}
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if artifact != nil {
			if err := txx.Create(artifact).Error; err != nil {
				return err
			}
			series.ArtifactID = &artifact.ID
		}
		series.NumEpisodes = len(episodes)
		if err := txx.Omit("Episodes").Create(series).Error; err != nil {
			return err
		}
		for i, ep := range episodes {
			ep.SeriesOutlineID = series.ID
			ep.ProjectID = series.ProjectID
			if ep.Number == 0 {
				ep.Number = i + 1
			}
			if len(ep.EventIDs) == 0 {
				ep.EventIDs = datatypes.JSON([]byte("[]"))
			}
		}
		if len(episodes) > 0 {
			if err := txx.Create(&episodes).Error; err != nil {
				return err
			}
		}
		series.Episodes = episodes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return series, nil
}

func (r *seriesOutlineRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SeriesOutline, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.SeriesOutline
	err := transaction.WithContext(dbc.Ctx).
		Preload("Episodes", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Where("id = ?", id).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
