package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	datadb "github.com/yungbote/qalam-backend/internal/data/db"
	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/ctxutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// TaskDispatcher hands a freshly created task to an external executor (Temporal).
// When none is configured the polling worker picks tasks up from the table.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, taskID uuid.UUID) error
}

type SubmitOptions struct {
	ProjectID   *uuid.UUID
	OwnerUserID uuid.UUID
	// DedupeKey coalesces submissions: while a queued or running task of the same kind
	// carries the key, Submit returns that task's id.
	DedupeKey string
	ParentID  *uuid.UUID
	// BypassCap is set for child tasks of a coordinator that already passed admission.
	BypassCap bool
}

type TaskService interface {
	Submit(dbc dbctx.Context, kind string, args []any, kwargs map[string]any, opts SubmitOptions) (uuid.UUID, error)
	GetStatus(dbc dbctx.Context, taskID uuid.UUID) (*progress.Snapshot, error)
	Cancel(dbc dbctx.Context, taskID uuid.UUID) error
	ListTasks(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*progress.Snapshot, error)
	SubmitChild(ctx context.Context, parent *types.Task, kind string, kwargs map[string]any) (uuid.UUID, error)
}

type taskService struct {
	db         *gorm.DB
	log        *logger.Logger
	repo       repos.TaskRepo
	store      progress.Store
	registry   *runtime.Registry
	dispatcher TaskDispatcher
}

func NewTaskService(db *gorm.DB, baseLog *logger.Logger, repo repos.TaskRepo, store progress.Store, registry *runtime.Registry, dispatcher TaskDispatcher) TaskService {
	return &taskService{
		db:         db,
		log:        baseLog.With("service", "TaskService"),
		repo:       repo,
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
	}
}

func (s *taskService) Submit(dbc dbctx.Context, kind string, args []any, kwargs map[string]any, opts SubmitOptions) (uuid.UUID, error) {
	kind = strings.TrimSpace(kind)
	if _, ok := s.registry.Get(kind); !ok {
		return uuid.Nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownKind, kind)
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	if opts.ProjectID != nil {
		if _, ok := kwargs["project_id"]; !ok {
			kwargs["project_id"] = opts.ProjectID.String()
		}
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := kwargs["trace_id"]; !ok {
				kwargs["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := kwargs["request_id"]; !ok {
				kwargs["request_id"] = td.RequestID
			}
		}
	}
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(runtime.Payload{Args: args, Kwargs: kwargs})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: encode task arguments: %v", apperrors.ErrInvalidArgument, err)
	}
	spec := s.registry.Spec(kind)

	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}

	var (
		task      *types.Task
		coalesced bool
	)
	err = transaction.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if opts.DedupeKey != "" {
			if err := datadb.AdvisoryXactLock(tx, "task:"+kind+":"+opts.DedupeKey); err != nil {
				return err
			}
			existing, err := s.repo.FindActiveByDedupe(inner, kind, opts.DedupeKey)
			if err != nil {
				return err
			}
			if existing != nil {
				task = existing
				coalesced = true
				return nil
			}
		}
		if !opts.BypassCap {
			if err := datadb.AdvisoryXactLock(tx, "task-cap:"+kind); err != nil {
				return err
			}
			n, err := s.repo.CountQueued(inner, kind)
			if err != nil {
				return err
			}
			if n >= int64(spec.QueueCap) {
				return fmt.Errorf("%w: %d %s tasks pending (cap %d)", apperrors.ErrQueueFull, n, kind, spec.QueueCap)
			}
		}
		now := time.Now().UTC()
		task = &types.Task{
			ID:          uuid.New(),
			Kind:        kind,
			ProjectID:   opts.ProjectID,
			OwnerUserID: opts.OwnerUserID,
			ParentID:    opts.ParentID,
			DedupeKey:   opts.DedupeKey,
			Status:      types.TaskQueued,
			Stage:       "queued",
			Message:     "Queued",
			MaxAttempts: spec.MaxAttempts,
			Payload:     datatypes.JSON(payload),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := s.repo.Create(inner, []*types.Task{task}); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if coalesced {
		s.log.Info("submission coalesced", "task_kind", kind, "task_id", task.ID, "dedupe_key", opts.DedupeKey)
		return task.ID, nil
	}

	if s.store != nil {
		if perr := s.store.Publish(ctx, runtime.SnapshotOf(task)); perr != nil {
			s.log.Warn("initial snapshot publish failed", "task_id", task.ID, "error", perr)
		}
	}
	if s.dispatcher != nil && !isDBTransaction(dbc.Tx) {
		if derr := s.dispatcher.Dispatch(ctx, task.ID); derr != nil {
			s.markDispatchFailed(ctx, task, derr)
			return uuid.Nil, fmt.Errorf("dispatch task: %w", derr)
		}
	}
	return task.ID, nil
}

func (s *taskService) SubmitChild(ctx context.Context, parent *types.Task, kind string, kwargs map[string]any) (uuid.UUID, error) {
	if parent == nil {
		return uuid.Nil, fmt.Errorf("%w: missing parent task", apperrors.ErrInvalidArgument)
	}
	parentID := parent.ID
	// A child may coalesce with an unrelated active task of the same kind (UKB rebuilds).
	dedupe, _ := kwargs["dedupe_key"].(string)
	return s.Submit(dbctx.Context{Ctx: ctx}, kind, nil, kwargs, SubmitOptions{
		ProjectID:   parent.ProjectID,
		OwnerUserID: parent.OwnerUserID,
		ParentID:    &parentID,
		DedupeKey:   dedupe,
		BypassCap:   true,
	})
}

func (s *taskService) markDispatchFailed(ctx context.Context, task *types.Task, err error) {
	now := time.Now().UTC()
	detail := apperrors.NewDetail("dispatch", err)
	b, _ := json.Marshal(detail)
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx}, task.ID, map[string]interface{}{
		"status":        types.TaskFailed,
		"stage":         "dispatch",
		"message":       detail.Message,
		"error_detail":  datatypes.JSON(b),
		"attempts":      task.MaxAttempts,
		"seq":           task.Seq + 1,
		"last_error_at": now,
		"updated_at":    now,
	})
	if s.store != nil {
		task.Status = types.TaskFailed
		task.Attempts = task.MaxAttempts
		task.Seq++
		task.ErrorDetail = datatypes.JSON(b)
		_ = s.store.Publish(ctx, runtime.SnapshotOf(task))
	}
}

// GetStatus prefers the live snapshot and falls back to the durable row once the
// snapshot has expired.
func (s *taskService) GetStatus(dbc dbctx.Context, taskID uuid.UUID) (*progress.Snapshot, error) {
	if taskID == uuid.Nil {
		return nil, apperrors.ErrNotFound
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if s.store != nil {
		snap, err := s.store.Get(ctx, taskID)
		if err != nil {
			s.log.Warn("snapshot read failed; using durable row", "task_id", taskID, "error", err)
		} else if snap != nil {
			return snap, nil
		}
	}
	row, err := s.repo.GetByID(dbc, taskID)
	if err != nil {
		return nil, err
	}
	return runtime.SnapshotOf(row), nil
}

func (s *taskService) Cancel(dbc dbctx.Context, taskID uuid.UUID) error {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	row, err := s.repo.RequestCancel(dbc, taskID)
	if err != nil {
		return err
	}
	switch {
	case row.Status == types.TaskRevoked:
		row.Seq++
		_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx}, row.ID, map[string]interface{}{"seq": row.Seq})
		if s.store != nil {
			_ = s.store.Publish(ctx, runtime.SnapshotOf(row))
		}
	case row.Status == types.TaskRunning && row.CancelRequested:
		if s.store != nil {
			if perr := s.store.PublishCancel(ctx, row.ID); perr != nil {
				s.log.Warn("cancel broadcast failed; workers will see the row flag", "task_id", row.ID, "error", perr)
			}
		}
	}
	s.log.Info("cancel requested", "task_id", row.ID, "status", row.Status)

	children, err := s.repo.ListChildren(dbctx.Context{Ctx: ctx}, row.ID)
	if err != nil {
		return nil
	}
	for _, child := range children {
		if types.IsTerminal(child.Status) {
			continue
		}
		if cerr := s.Cancel(dbctx.Context{Ctx: ctx}, child.ID); cerr != nil {
			s.log.Warn("child cancel failed", "task_id", child.ID, "error", cerr)
		}
	}
	return nil
}

func (s *taskService) ListTasks(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*progress.Snapshot, error) {
	rows, err := s.repo.ListByProject(dbc, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*progress.Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, runtime.SnapshotOf(r))
	}
	return out, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

// isDBTransaction detects a real transaction; gorm clones make pointer comparison unreliable.
func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}
