package writing

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

type SessionTotals struct {
	WordsWritten  int
	EditsMade     int
	ActiveSeconds int
	QualityScore  *float64
	Stage         string
}

type WritingSessionRepo interface {
	Start(dbc dbctx.Context, userID, projectID uuid.UUID) (*types.WritingSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WritingSession, error)
	End(dbc dbctx.Context, id uuid.UUID, totals SessionTotals) (*types.WritingSession, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*types.WritingSession, error)
}

type writingSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWritingSessionRepo(db *gorm.DB, baseLog *logger.Logger) WritingSessionRepo {
	return &writingSessionRepo{db: db, log: baseLog.With("repo", "WritingSessionRepo")}
}

func (r *writingSessionRepo) Start(dbc dbctx.Context, userID, projectID uuid.UUID) (*types.WritingSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	s := &types.WritingSession{
		UserID:    userID,
		ProjectID: projectID,
		StartedAt: time.Now().UTC(),
	}
	if err := transaction.WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *writingSessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WritingSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.WritingSession
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

// End closes an open session. Ending an already-ended session returns it unchanged.
func (r *writingSessionRepo) End(dbc dbctx.Context, id uuid.UUID, totals SessionTotals) (*types.WritingSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.WritingSession
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("id = ?", id).First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}
		if out.EndedAt != nil {
			return nil
		}
		now := time.Now().UTC()
		active := totals.ActiveSeconds
		if active <= 0 {
			active = int(now.Sub(out.StartedAt).Seconds())
		}
		updates := map[string]interface{}{
			"ended_at":       now,
			"words_written":  maxInt(totals.WordsWritten, 0),
			"edits_made":     maxInt(totals.EditsMade, 0),
			"active_seconds": maxInt(active, 0),
			"stage_snapshot": totals.Stage,
			"updated_at":     now,
		}
		if totals.QualityScore != nil {
			updates["quality_score_snapshot"] = *totals.QualityScore
		}
		if err := txx.Model(&types.WritingSession{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return txx.Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *writingSessionRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*types.WritingSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*types.WritingSession
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
