package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/platform/ctxutil"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

/*
Context is the execution handle a handler gets for one task run.
It wraps the task row, the durable repo and the snapshot store, and is the only
sanctioned way for handler code to report progress or finish the task.
Handlers never touch task_run directly.
*/
type Context struct {
	Ctx   context.Context
	DB    *gorm.DB
	Task  *types.Task
	Repo  repos.TaskRepo
	Store progress.Store
	Log   *logger.Logger

	mu        sync.Mutex
	seq       int64
	lastPct   int
	finalized bool
	yielded   bool
	args      []any
	kwargs    map[string]any
}

// Payload layout stored on task_run.payload.
type Payload struct {
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

func NewContext(ctx context.Context, db *gorm.DB, task *types.Task, repo repos.TaskRepo, store progress.Store, log *logger.Logger) *Context {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Context{
		Ctx:   ctx,
		DB:    db,
		Task:  task,
		Repo:  repo,
		Store: store,
		Log:   log,
	}
	if task != nil {
		c.seq = task.Seq
		c.lastPct = task.Progress
		c.Log = log.With("task_id", task.ID.String(), "task_kind", task.Kind)
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	c.kwargs = map[string]any{}
	if c.Task == nil || len(c.Task.Payload) == 0 {
		return nil
	}
	var p Payload
	if err := json.Unmarshal(c.Task.Payload, &p); err != nil {
		return err
	}
	c.args = p.Args
	if p.Kwargs != nil {
		c.kwargs = p.Kwargs
	}
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	traceID := strings.TrimSpace(fmt.Sprint(c.kwargs["trace_id"]))
	reqID := strings.TrimSpace(fmt.Sprint(c.kwargs["request_id"]))
	if c.kwargs["trace_id"] == nil {
		traceID = ""
	}
	if c.kwargs["request_id"] == nil {
		reqID = ""
	}
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: traceID, RequestID: reqID})
}

// Args returns the positional submission arguments.
func (c *Context) Args() []any { return c.args }

// Kwargs never returns nil.
func (c *Context) Kwargs() map[string]any {
	if c.kwargs == nil {
		c.kwargs = map[string]any{}
	}
	return c.kwargs
}

// DecodeKwargs re-marshals the keyword arguments into dst.
func (c *Context) DecodeKwargs(dst any) error {
	b, err := json.Marshal(c.Kwargs())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: decode task arguments: %v", apperrors.ErrInvalidArgument, err)
	}
	return nil
}

// KwargUUID parses a keyword argument as a non-nil UUID.
func (c *Context) KwargUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Kwargs()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// ProjectID returns the task's project, falling back to the project_id keyword argument.
func (c *Context) ProjectID() (uuid.UUID, bool) {
	if c.Task != nil && c.Task.ProjectID != nil && *c.Task.ProjectID != uuid.Nil {
		return *c.Task.ProjectID, true
	}
	return c.KwargUUID("project_id")
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Update writes arbitrary fields on the task row unless the task was revoked.
func (c *Context) Update(updates map[string]any) error {
	if c.Task == nil || c.Task.ID == uuid.Nil || c.Repo == nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.context()}, c.Task.ID, []string{types.TaskRevoked}, toIfaceMap(updates))
	return err
}

/*
Report publishes a non-terminal progress update and probes for cancellation.
  - pct is clamped to [last reported, 100] so observers never see progress go backwards.
  - The row is updated (unless revoked) and a snapshot with the next sequence number is published.
  - Returns ErrCancellationRequested when the task was revoked, cancel was requested, or the
    handler context was cancelled for that reason. Handlers must stop and return it.
*/
func (c *Context) Report(step string, pct int, msg string) error {
	if c == nil {
		return nil
	}
	ctx := c.context()
	now := time.Now().UTC()

	c.mu.Lock()
	if pct > 100 {
		pct = 100
	}
	if pct < c.lastPct {
		pct = c.lastPct
	}
	c.lastPct = pct
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	if c.Repo != nil && c.Task != nil && c.Task.ID != uuid.Nil {
		ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{types.TaskRevoked, types.TaskSucceeded, types.TaskFailed}, map[string]interface{}{
			"stage":        step,
			"progress":     pct,
			"message":      msg,
			"seq":          seq,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if err != nil {
			c.Log.Warn("progress update failed", "error", err)
		} else if !ok {
			return apperrors.ErrCancellationRequested
		}
	}

	if c.Task != nil {
		c.Task.Stage = step
		c.Task.Progress = pct
		c.Task.Message = msg
		c.Task.Seq = seq
		c.Task.HeartbeatAt = &now
		c.Task.UpdatedAt = now
	}
	c.publish(ctx, progress.StateRunning, nil, nil)

	return c.probeCancel(ctx)
}

// Start records that the run began and publishes the first running snapshot.
func (c *Context) Start() {
	if c == nil || c.Task == nil {
		return
	}
	ctx := c.context()
	seq := c.nextSeq()
	if c.Repo != nil && c.Task.ID != uuid.Nil {
		if _, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{types.TaskRevoked}, map[string]interface{}{
			"seq": seq,
		}); err != nil {
			c.Log.Warn("start update failed", "error", err)
		}
	}
	c.Task.Seq = seq
	c.publish(ctx, progress.StateRunning, nil, nil)
}

// Progress is Report without the cancellation result, for callers that check elsewhere.
func (c *Context) Progress(step string, pct int, msg string) {
	_ = c.Report(step, pct, msg)
}

// Cancelled reports whether cancellation was requested for this run.
func (c *Context) Cancelled() bool {
	return errors.Is(c.probeCancel(c.context()), apperrors.ErrCancellationRequested)
}

func (c *Context) probeCancel(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, apperrors.ErrCancellationRequested) {
		return apperrors.ErrCancellationRequested
	}
	if c.Repo == nil || c.Task == nil || c.Task.ID == uuid.Nil {
		return nil
	}
	row, err := c.Repo.GetByID(dbctx.Context{Ctx: ctx}, c.Task.ID)
	if err != nil {
		return nil
	}
	if row.CancelRequested || row.Status == types.TaskRevoked {
		c.Task.CancelRequested = true
		return apperrors.ErrCancellationRequested
	}
	return nil
}

/*
Fail marks the task failed with a structured, redacted error detail.
A cancellation error is routed to Revoke instead. If the kind's retry policy still has
attempts left the row stays claimable and the public state goes back to pending.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	if errors.Is(err, apperrors.ErrCancellationRequested) {
		c.Revoke("cancelled")
		return
	}
	ctx := context.WithoutCancel(c.context())
	now := time.Now().UTC()
	detail := apperrors.NewDetail(stage, err)
	detailJSON, _ := json.Marshal(detail)
	seq := c.nextSeq()

	if c.Repo != nil && c.Task != nil && c.Task.ID != uuid.Nil {
		ok, uerr := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{types.TaskRevoked}, map[string]interface{}{
			"status":        types.TaskFailed,
			"stage":         stage,
			"message":       detail.Message,
			"error_detail":  datatypes.JSON(detailJSON),
			"seq":           seq,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if uerr != nil {
			c.Log.Error("failed to persist task failure", "error", uerr)
		}
		if !ok {
			c.markFinalized()
			return
		}
	}

	if c.Task != nil {
		c.Task.Status = types.TaskFailed
		c.Task.Stage = stage
		c.Task.Message = detail.Message
		c.Task.ErrorDetail = datatypes.JSON(detailJSON)
		c.Task.Seq = seq
		c.Task.LastErrorAt = &now
		c.Task.LockedAt = nil
		c.Task.UpdatedAt = now
	}
	c.markFinalized()

	state := progress.StateFailed
	if c.Task != nil && c.Task.Attempts < c.Task.MaxAttempts && apperrors.KindOf(err) != apperrors.KindCancellationRequested {
		state = progress.StatePending
	}
	c.publish(ctx, state, nil, &detail)
	c.Log.Warn("task failed", "stage", stage, "error_kind", detail.Kind, "error", err)
}

// Succeed marks the task succeeded with result. A revoked task stays revoked.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	ctx := context.WithoutCancel(c.context())
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	seq := c.nextSeq()

	if c.Repo != nil && c.Task != nil && c.Task.ID != uuid.Nil {
		ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{types.TaskRevoked}, map[string]interface{}{
			"status":       types.TaskSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"result":       res,
			"seq":          seq,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if err != nil {
			c.Log.Error("failed to persist task success", "error", err)
		}
		if !ok {
			c.markFinalized()
			return
		}
	}

	if c.Task != nil {
		c.Task.Status = types.TaskSucceeded
		c.Task.Stage = finalStage
		c.Task.Progress = 100
		c.Task.Message = ""
		c.Task.Result = res
		c.Task.Seq = seq
		c.Task.LockedAt = nil
		c.Task.HeartbeatAt = &now
		c.Task.UpdatedAt = now
	}
	c.mu.Lock()
	c.lastPct = 100
	c.mu.Unlock()
	c.markFinalized()
	c.publish(ctx, progress.StateSucceeded, res, nil)
}

// Revoke moves the task to revoked. Already-persisted artifacts are left in place.
func (c *Context) Revoke(msg string) {
	if c == nil {
		return
	}
	ctx := context.WithoutCancel(c.context())
	now := time.Now().UTC()
	seq := c.nextSeq()
	if c.Repo != nil && c.Task != nil && c.Task.ID != uuid.Nil {
		_, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{types.TaskSucceeded, types.TaskFailed}, map[string]interface{}{
			"status":     types.TaskRevoked,
			"message":    msg,
			"seq":        seq,
			"locked_at":  nil,
			"updated_at": now,
		})
		if err != nil {
			c.Log.Error("failed to persist revocation", "error", err)
		}
	}
	if c.Task != nil {
		c.Task.Status = types.TaskRevoked
		c.Task.Message = msg
		c.Task.Seq = seq
		c.Task.LockedAt = nil
		c.Task.UpdatedAt = now
	}
	c.markFinalized()
	detail := apperrors.Detail{Kind: apperrors.KindCancellationRequested, Message: msg}
	c.publish(ctx, progress.StateRevoked, nil, &detail)
}

// Yield hands the task back to the queue without finishing it. Coordinators use this
// between polls of their child tasks.
func (c *Context) Yield(stage string) error {
	if c == nil || c.Task == nil || c.Repo == nil {
		return nil
	}
	ctx := context.WithoutCancel(c.context())
	now := time.Now().UTC()
	c.mu.Lock()
	pct := c.lastPct
	c.mu.Unlock()
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{types.TaskRevoked, types.TaskSucceeded, types.TaskFailed}, map[string]interface{}{
		"status":       types.TaskQueued,
		"stage":        stage,
		"progress":     pct,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return err
	}
	if ok {
		c.Task.Status = types.TaskQueued
		c.Task.Stage = stage
	}
	c.mu.Lock()
	c.yielded = true
	c.mu.Unlock()
	return nil
}

// Settled reports whether the run ended in a terminal transition or a yield.
func (c *Context) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized || c.yielded
}

func (c *Context) nextSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *Context) markFinalized() {
	c.mu.Lock()
	c.finalized = true
	c.mu.Unlock()
}

func (c *Context) publish(ctx context.Context, state string, result datatypes.JSON, detail *apperrors.Detail) {
	if c.Store == nil || c.Task == nil {
		return
	}
	snap := SnapshotOf(c.Task)
	snap.State = state
	if len(result) > 0 {
		snap.Result = json.RawMessage(result)
	}
	if detail != nil {
		snap.Error = detail
	}
	if err := c.Store.Publish(ctx, snap); err != nil {
		c.Log.Warn("snapshot publish failed", "error", err)
	}
}

// SnapshotOf builds the public snapshot of a durable task row.
func SnapshotOf(t *types.Task) *progress.Snapshot {
	if t == nil {
		return nil
	}
	snap := &progress.Snapshot{
		TaskID:    t.ID,
		Kind:      t.Kind,
		ProjectID: t.ProjectID,
		State:     PublicState(t),
		Progress:  t.Progress,
		Step:      t.Stage,
		Message:   t.Message,
		Seq:       t.Seq,
		UpdatedAt: t.UpdatedAt,
	}
	if t.Status == types.TaskSucceeded && len(t.Result) > 0 {
		snap.Result = json.RawMessage(t.Result)
	}
	if len(t.ErrorDetail) > 0 && string(t.ErrorDetail) != "null" {
		var d apperrors.Detail
		if err := json.Unmarshal(t.ErrorDetail, &d); err == nil && d.Kind != "" {
			snap.Error = &d
		}
	}
	return snap
}

// PublicState maps stored statuses to the externally visible state machine.
func PublicState(t *types.Task) string {
	switch t.Status {
	case types.TaskQueued:
		if t.Attempts > 0 {
			return progress.StateRunning
		}
		return progress.StatePending
	case types.TaskRunning:
		return progress.StateRunning
	case types.TaskSucceeded:
		return progress.StateSucceeded
	case types.TaskRevoked:
		return progress.StateRevoked
	case types.TaskFailed:
		if t.Attempts < t.MaxAttempts {
			return progress.StatePending
		}
		return progress.StateFailed
	}
	return t.Status
}

func toIfaceMap(in map[string]any) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
