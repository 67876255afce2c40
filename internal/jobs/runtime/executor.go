package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// Executor runs one claimed task to a settled state. The polling worker and the
// Temporal activity both go through it so the lifecycle rules live in one place.
type Executor struct {
	DB       *gorm.DB
	Repo     repos.TaskRepo
	Store    progress.Store
	Registry *Registry
	Log      *logger.Logger

	// HeartbeatEvery controls row heartbeats and cancel probes while the handler runs.
	HeartbeatEvery time.Duration

	running sync.Map // uuid.UUID -> context.CancelCauseFunc
}

// Cancel interrupts a task running in this process. It reports whether one was found.
func (e *Executor) Cancel(taskID uuid.UUID) bool {
	v, ok := e.running.Load(taskID)
	if !ok {
		return false
	}
	v.(context.CancelCauseFunc)(apperrors.ErrCancellationRequested)
	return true
}

/*
Execute runs the handler for task under ctx.
  - The handler context carries the kind's timeout and is cancelled with
    ErrCancellationRequested as soon as the row shows a cancel request.
  - Panics become failures with a generic message.
  - A handler that returns nil without finishing is marked succeeded.
*/
func (e *Executor) Execute(ctx context.Context, task *types.Task) *Context {
	log := e.Log
	if log == nil {
		log = logger.NewNop()
	}
	spec := e.Registry.Spec(task.Kind)

	ctx, span := otel.Tracer("qalam/jobs").Start(ctx, "task.run")
	span.SetAttributes(
		attribute.String("task.kind", task.Kind),
		attribute.String("task.id", task.ID.String()),
		attribute.Int("task.attempt", task.Attempts),
	)
	defer span.End()

	runCtx, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)
	e.running.Store(task.ID, cancelCause)
	defer e.running.Delete(task.ID)
	runCtx, cancelTimeout := context.WithTimeoutCause(runCtx, spec.Timeout, fmt.Errorf("task exceeded %s: %w", spec.Timeout, context.DeadlineExceeded))
	defer cancelTimeout()

	jc := NewContext(runCtx, e.DB, task, e.Repo, e.Store, log)

	h, ok := e.Registry.Get(task.Kind)
	if !ok {
		jc.Fail("dispatch", fmt.Errorf("%w: %s", apperrors.ErrUnknownKind, task.Kind))
		span.SetStatus(codes.Error, "unknown kind")
		return jc
	}

	if task.CancelRequested {
		jc.Revoke("cancelled")
		return jc
	}

	jc.Start()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.watch(runCtx, jc, cancelCause, stop)
	}()

	runErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("task handler panic", "task_id", task.ID, "task_kind", task.Kind, "panic", r)
				err = errPanic
			}
		}()
		return h.Run(jc)
	}()
	close(stop)
	<-done

	switch {
	case jc.Settled():
	case runErr == nil:
		jc.Succeed(jc.Task.Stage, nil)
	case errors.Is(runErr, apperrors.ErrCancellationRequested) || errors.Is(context.Cause(runCtx), apperrors.ErrCancellationRequested):
		jc.Revoke("cancelled")
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		jc.Fail(jc.Task.Stage, context.Cause(runCtx))
	default:
		jc.Fail(stageOr(jc.Task.Stage, "run"), runErr)
	}

	if runErr != nil && !errors.Is(runErr, apperrors.ErrCancellationRequested) {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, apperrors.KindOf(runErr))
	}
	span.SetAttributes(attribute.String("task.status", jc.Task.Status))
	return jc
}

func (e *Executor) watch(ctx context.Context, jc *Context, cancel context.CancelCauseFunc, stop <-chan struct{}) {
	every := e.HeartbeatEvery
	if every <= 0 {
		every = 5 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			if e.Repo == nil {
				continue
			}
			dbc := dbctx.Context{Ctx: ctx}
			if err := e.Repo.Heartbeat(dbc, jc.Task.ID); err != nil {
				jc.Log.Warn("heartbeat failed", "error", err)
			}
			row, err := e.Repo.GetByID(dbc, jc.Task.ID)
			if err == nil && (row.CancelRequested || row.Status == types.TaskRevoked) {
				cancel(apperrors.ErrCancellationRequested)
				return
			}
		}
	}
}

var errPanic = errors.New("task handler panicked")

func stageOr(stage, def string) string {
	if stage == "" {
		return def
	}
	return stage
}
