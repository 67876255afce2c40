package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type TaskRepo interface {
	Create(dbc dbctx.Context, tasks []*types.Task) ([]*types.Task, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Task, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Task, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*types.Task, error)
	ListChildren(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Task, error)
	CountQueued(dbc dbctx.Context, kind string) (int64, error)
	FindActiveByDedupe(dbc dbctx.Context, kind, dedupeKey string) (*types.Task, error)
	ClaimNextRunnable(dbc dbctx.Context, kinds []string, retryDelay time.Duration, staleRunning time.Duration) (*types.Task, error)
	// ClaimByID claims one specific task if it is runnable; nil when it is not.
	ClaimByID(dbc dbctx.Context, id uuid.UUID, retryDelay time.Duration, staleRunning time.Duration) (*types.Task, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	// RequestCancel revokes a queued task outright and flags a running one. Terminal tasks
	// are returned unchanged.
	RequestCancel(dbc dbctx.Context, id uuid.UUID) (*types.Task, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{
		db:  db,
		log: baseLog.With("repo", "TaskRepo"),
	}
}

func (r *taskRepo) Create(dbc dbctx.Context, tasks []*types.Task) ([]*types.Task, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(tasks) == 0 {
		return []*types.Task{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Task, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var t types.Task
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taskRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Task, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Task
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*types.Task, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Task
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CountQueued counts tasks of kind that have not been picked up yet. Coordinators that
// yielded back to the queue mid-run are not counted.
func (r *taskRepo) ListChildren(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Task, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Task
	if parentID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *taskRepo) CountQueued(dbc dbctx.Context, kind string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Task{}).
		Where("kind = ? AND status = ? AND attempts = 0", kind, types.TaskQueued).
		Count(&n).Error
	return n, err
}

func (r *taskRepo) FindActiveByDedupe(dbc dbctx.Context, kind, dedupeKey string) (*types.Task, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if kind == "" || dedupeKey == "" {
		return nil, nil
	}
	var out []*types.Task
	if err := transaction.WithContext(dbc.Ctx).
		Where("kind = ? AND dedupe_key = ? AND status IN ?", kind, dedupeKey, []string{types.TaskQueued, types.TaskRunning}).
		Order("created_at ASC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

const runnableClause = `
  (
    (status = ? AND cancel_requested = ?)
    OR (
      status = ?
      AND attempts < max_attempts
      AND (last_error_at IS NULL OR last_error_at < ?)
    )
    OR (
      status = ?
      AND heartbeat_at IS NOT NULL
      AND heartbeat_at < ?
    )
  )
`

func (r *taskRepo) ClaimNextRunnable(dbc dbctx.Context, kinds []string, retryDelay time.Duration, staleRunning time.Duration) (*types.Task, error) {
	return r.claim(dbc, retryDelay, staleRunning, func(q *gorm.DB) *gorm.DB {
		if len(kinds) > 0 {
			q = q.Where("kind IN ?", kinds)
		}
		return q.Order("updated_at ASC")
	})
}

func (r *taskRepo) ClaimByID(dbc dbctx.Context, id uuid.UUID, retryDelay time.Duration, staleRunning time.Duration) (*types.Task, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.claim(dbc, retryDelay, staleRunning, func(q *gorm.DB) *gorm.DB {
		return q.Where("id = ?", id)
	})
}

func (r *taskRepo) claim(dbc dbctx.Context, retryDelay, staleRunning time.Duration, scope func(*gorm.DB) *gorm.DB) (*types.Task, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.Task
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var task types.Task
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(runnableClause, types.TaskQueued, false, types.TaskFailed, retryCutoff, types.TaskRunning, staleCutoff)
		qErr := scope(q).First(&task).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.Task{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":       types.TaskRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		task.Status = types.TaskRunning
		task.Attempts++
		task.LockedAt = &now
		task.HeartbeatAt = &now
		task.UpdatedAt = now
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *taskRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Task{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *taskRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	q := transaction.WithContext(dbc.Ctx).
		Model(&types.Task{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *taskRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Task{}).
		Where("id = ? AND status = ?", id, types.TaskRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *taskRepo) RequestCancel(dbc dbctx.Context, id uuid.UUID) (*types.Task, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Task
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}
		now := time.Now().UTC()
		switch out.Status {
		case types.TaskQueued:
			out.Status = types.TaskRevoked
			out.Message = "cancelled before start"
			out.UpdatedAt = now
			return txx.Model(&types.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
				"status":     types.TaskRevoked,
				"message":    "cancelled before start",
				"updated_at": now,
			}).Error
		case types.TaskRunning:
			out.CancelRequested = true
			return txx.Model(&types.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
				"cancel_requested": true,
				"updated_at":       now,
			}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
