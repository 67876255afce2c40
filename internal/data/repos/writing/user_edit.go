package writing

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type UserEditRepo interface {
	Create(dbc dbctx.Context, e *types.UserEdit) (*types.UserEdit, error)
	// ListRecent returns the user's newest edits of the given kinds, newest first.
	ListRecent(dbc dbctx.Context, userID uuid.UUID, kinds []string, limit int) ([]*types.UserEdit, error)
}

type userEditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserEditRepo(db *gorm.DB, baseLog *logger.Logger) UserEditRepo {
	return &userEditRepo{db: db, log: baseLog.With("repo", "UserEditRepo")}
}

func (r *userEditRepo) Create(dbc dbctx.Context, e *types.UserEdit) (*types.UserEdit, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if e == nil || e.UserID == uuid.Nil {
		return nil, apperrors.ErrInvalidArgument
	}
	if len(e.ContextTags) == 0 {
		e.ContextTags = datatypes.JSON([]byte("[]"))
	}
	if err := transaction.WithContext(dbc.Ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

func (r *userEditRepo) ListRecent(dbc dbctx.Context, userID uuid.UUID, kinds []string, limit int) ([]*types.UserEdit, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 3
	}
	q := transaction.WithContext(dbc.Ctx).Where("user_id = ?", userID)
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}
	var out []*types.UserEdit
	if err := q.Order("edited_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
