package projects

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type SourceRepo interface {
	Create(dbc dbctx.Context, s *types.Source) (*types.Source, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Source, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Source, error)
	MarkProcessing(dbc dbctx.Context, id uuid.UUID) error
	MarkAnalyzed(dbc dbctx.Context, id uuid.UUID, analysisResult datatypes.JSON) error
	MarkError(dbc dbctx.Context, id uuid.UUID, analysisResult datatypes.JSON) error
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return &sourceRepo{db: db, log: baseLog.With("repo", "SourceRepo")}
}

func (r *sourceRepo) Create(dbc dbctx.Context, s *types.Source) (*types.Source, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if s == nil || s.ProjectID == uuid.Nil {
		return nil, apperrors.ErrInvalidArgument
	}
	if len(s.Metadata) == 0 {
		s.Metadata = datatypes.JSON([]byte("{}"))
	}
	if err := transaction.WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sourceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Source, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.Source
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sourceRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Source, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Source
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceRepo) MarkProcessing(dbc dbctx.Context, id uuid.UUID) error {
	return r.setStatus(dbc, id, map[string]interface{}{
		"status": types.SourceProcessing,
	})
}

// MarkAnalyzed refuses an empty analysis result; an analyzed source always carries one.
func (r *sourceRepo) MarkAnalyzed(dbc dbctx.Context, id uuid.UUID, analysisResult datatypes.JSON) error {
	if isEmptyJSON(analysisResult) {
		return fmt.Errorf("mark source %s analyzed: %w: empty analysis result", id, apperrors.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	return r.setStatus(dbc, id, map[string]interface{}{
		"status":          types.SourceAnalyzed,
		"analysis_result": analysisResult,
		"analyzed_at":     now,
	})
}

func (r *sourceRepo) MarkError(dbc dbctx.Context, id uuid.UUID, analysisResult datatypes.JSON) error {
	updates := map[string]interface{}{"status": types.SourceError}
	if !isEmptyJSON(analysisResult) {
		updates["analysis_result"] = analysisResult
	}
	return r.setStatus(dbc, id, updates)
}

func (r *sourceRepo) setStatus(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates["updated_at"] = time.Now().UTC()
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Source{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func isEmptyJSON(raw datatypes.JSON) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("{}")) || bytes.Equal(t, []byte("[]"))
}
