package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/qalam-backend/internal/domain"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

type RetryPolicy struct {
	MaxAttempts int
	Retryable   func(err error) bool

	MinBackoff time.Duration // default 1s
	MaxBackoff time.Duration // default 30s
	JitterFrac float64       // default 0.20
}

type Stage struct {
	Name     string
	Mode     StageMode
	StartPct int
	EndPct   int
	StartMsg string
	DoneMsg  string
	Retry    RetryPolicy

	// IsDone lets a stage be skipped when its output already exists (resume after restart).
	IsDone func(ctx *jobrt.Context, st *State) (bool, error)
	Run    func(ctx *jobrt.Context, st *State) (map[string]any, error)

	ChildKind   string
	ChildKwargs func(ctx *jobrt.Context, st *State) (map[string]any, error)
}

// ChildSubmitter creates child tasks on behalf of a coordinator.
type ChildSubmitter interface {
	SubmitChild(ctx context.Context, parent *types.Task, kind string, kwargs map[string]any) (uuid.UUID, error)
}

type Engine struct {
	Children ChildSubmitter

	MinPollInterval time.Duration
	MaxPollInterval time.Duration
}

func NewEngine(children ChildSubmitter) *Engine {
	return &Engine{
		Children:        children,
		MinPollInterval: 2 * time.Second,
		MaxPollInterval: 10 * time.Second,
	}
}

/*
Run advances a linear stage list for one coordinator task.
Each invocation does as much as it can without blocking on a child, then either
yields the task back to the queue (waiting on a child or a retry) or settles it.
Stage state lives in the task result so a reclaimed task resumes where it stopped.
*/
func (e *Engine) Run(ctx *jobrt.Context, stages []Stage, finalResult map[string]any) error {
	if ctx == nil || ctx.Task == nil {
		return nil
	}
	if len(stages) == 0 {
		ctx.Succeed("done", finalResult)
		return nil
	}
	if err := validateStages(stages); err != nil {
		ctx.Fail("validate", err)
		return nil
	}
	st := LoadState(ctx)
	if e.waitGate(ctx, st, st.WaitUntil, "waiting") {
		return nil
	}
	st.WaitUntil = nil

	for i := range stages {
		def := stages[i]
		ss := st.EnsureStage(def.Name, effectiveMode(def))
		if ss.Status == StageSucceeded || ss.Status == StageSkipped {
			continue
		}
		if e.waitGate(ctx, st, ss.NextRunAt, "retry_"+def.Name) {
			return nil
		}
		ss.NextRunAt = nil

		if ss.Status == StagePending && def.IsDone != nil {
			done, err := def.IsDone(ctx, st)
			if err != nil {
				e.stageErr(ctx, st, ss, def, err)
				return nil
			}
			if done {
				ss.Status = StageSkipped
				markFinished(ss, "")
				e.setProgress(ctx, st, def.Name, def.EndPct, "Reusing "+def.Name)
				SaveState(ctx, st)
				continue
			}
		}

		if ss.Status == StagePending || ss.Status == StageFailed {
			if err := e.setProgressChecked(ctx, st, def.Name, def.StartPct, msgOr(def.StartMsg, "Starting "+def.Name)); err != nil {
				return err
			}
			ss.Status = StageRunning
			markStarted(ss)
			SaveState(ctx, st)
		}

		var yielded bool
		switch ss.Mode {
		case ModeInline:
			yielded = e.runInline(ctx, st, def, ss)
		case ModeChild:
			yielded = e.runChild(ctx, st, def, ss)
		default:
			ctx.Fail(def.Name, fmt.Errorf("stage %q: unknown mode %q", def.Name, ss.Mode))
			return nil
		}
		if yielded {
			return nil
		}
	}
	e.succeed(ctx, st, stages, finalResult)
	return nil
}

func (e *Engine) waitGate(ctx *jobrt.Context, st *State, until *time.Time, stage string) bool {
	if until == nil {
		return false
	}
	now := time.Now()
	if !now.Before(*until) {
		return false
	}
	e.sleep(ctx, clampDuration(until.Sub(now), e.MinPollInterval, e.MaxPollInterval))
	SaveState(ctx, st)
	_ = ctx.Yield(stage)
	return true
}

func (e *Engine) runInline(ctx *jobrt.Context, st *State, def Stage, ss *StageState) bool {
	if def.Run == nil {
		ctx.Fail(def.Name, fmt.Errorf("stage %q: Run is nil", def.Name))
		return true
	}
	outs, err := def.Run(ctx, st)
	if err != nil {
		e.stageErr(ctx, st, ss, def, err)
		return true
	}
	mergeOutputs(ss, outs)
	ss.Status = StageSucceeded
	markFinished(ss, "")
	e.setProgress(ctx, st, def.Name, def.EndPct, msgOr(def.DoneMsg, "Done "+def.Name))
	SaveState(ctx, st)
	return false
}

func (e *Engine) runChild(ctx *jobrt.Context, st *State, def Stage, ss *StageState) bool {
	if e.Children == nil {
		ctx.Fail(def.Name, fmt.Errorf("stage %q needs a child submitter", def.Name))
		return true
	}
	if ss.ChildTaskID == "" {
		kwargs := map[string]any{}
		if def.ChildKwargs != nil {
			k, err := def.ChildKwargs(ctx, st)
			if err != nil {
				e.stageErr(ctx, st, ss, def, err)
				return true
			}
			kwargs = k
		}
		id, err := e.Children.SubmitChild(ctx.Ctx, ctx.Task, def.ChildKind, kwargs)
		if err != nil {
			e.stageErr(ctx, st, ss, def, err)
			return true
		}
		ss.ChildTaskID = id.String()
		ss.ChildKind = def.ChildKind
		ss.ChildStatus = types.TaskQueued
		ss.Status = StageWaitingChild
		return e.yield(ctx, st, "waiting_"+def.Name)
	}

	childID, err := uuid.Parse(ss.ChildTaskID)
	if err != nil {
		e.stageErr(ctx, st, ss, def, fmt.Errorf("stage %q: invalid child_task_id %q", def.Name, ss.ChildTaskID))
		return true
	}
	child, err := ctx.Repo.GetByID(dbctx.Context{Ctx: ctx.Ctx}, childID)
	if err != nil {
		e.stageErr(ctx, st, ss, def, fmt.Errorf("stage %q: load child: %w", def.Name, err))
		return true
	}
	ss.ChildStatus = child.Status
	ss.ChildProgress = child.Progress

	switch child.Status {
	case types.TaskSucceeded:
		var obj map[string]any
		if len(child.Result) > 0 && string(child.Result) != "null" {
			if err := json.Unmarshal(child.Result, &obj); err == nil {
				mergeOutputs(ss, map[string]any{"child_result": obj})
			}
		}
		ss.Status = StageSucceeded
		markFinished(ss, "")
		e.setProgress(ctx, st, def.Name, def.EndPct, msgOr(def.DoneMsg, "Done "+def.Name))
		SaveState(ctx, st)
		return false
	case types.TaskRevoked:
		SaveState(ctx, st)
		ctx.Revoke("child " + def.Name + " was cancelled")
		return true
	case types.TaskFailed:
		if child.Attempts < child.MaxAttempts {
			return e.yield(ctx, st, "waiting_"+def.Name)
		}
		msg := child.Message
		var d apperrors.Detail
		if json.Unmarshal(child.ErrorDetail, &d) == nil && d.Message != "" {
			msg = d.Message
		}
		ss.ChildTaskID, ss.ChildStatus = "", ""
		e.stageErr(ctx, st, ss, def, fmt.Errorf("stage %s failed: %s", def.Name, stringsOr(msg, "unknown error")))
		return true
	default:
		// Map the child's own progress into this stage's band.
		span := def.EndPct - def.StartPct
		pct := def.StartPct + span*child.Progress/100
		if err := e.setProgressChecked(ctx, st, def.Name, pct, stringsOr(child.Message, "Waiting on "+def.Name)); err != nil {
			SaveState(ctx, st)
			ctx.Revoke("cancelled")
			return true
		}
		return e.yield(ctx, st, "waiting_"+def.Name)
	}
}

func (e *Engine) yield(ctx *jobrt.Context, st *State, stage string) bool {
	st.WaitUntil = ptrTime(time.Now().Add(e.MinPollInterval))
	SaveState(ctx, st)
	_ = ctx.Yield(stage)
	return true
}

func (e *Engine) succeed(ctx *jobrt.Context, st *State, stages []Stage, finalResult map[string]any) {
	out := map[string]any{}
	for _, sdef := range stages {
		if ss := st.Stages[sdef.Name]; ss != nil && len(ss.Outputs) > 0 {
			out[sdef.Name] = ss.Outputs
		}
	}
	final := map[string]any{
		"orchestrator": st,
		"outputs":      out,
	}
	for k, v := range finalResult {
		final[k] = v
	}
	ctx.Succeed("done", final)
}

func (e *Engine) stageErr(ctx *jobrt.Context, st *State, ss *StageState, def Stage, err error) {
	ss.Attempts++
	ss.LastError = apperrors.NewDetail(def.Name, err).Message
	ss.Status = StageFailed
	markFinished(ss, ss.LastError)
	if shouldRetry(def.Retry, ss.Attempts, err) {
		when := time.Now().Add(computeBackoff(def.Retry, ss.Attempts))
		ss.NextRunAt = &when
		SaveState(ctx, st)
		_ = ctx.Yield("retry_" + def.Name)
		return
	}
	SaveState(ctx, st)
	ctx.Fail(def.Name, err)
}

func (e *Engine) sleep(ctx *jobrt.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Ctx.Done():
	case <-t.C:
	}
}

func (e *Engine) setProgress(ctx *jobrt.Context, st *State, stage string, pct int, msg string) {
	_ = e.setProgressChecked(ctx, st, stage, pct, msg)
}

func (e *Engine) setProgressChecked(ctx *jobrt.Context, st *State, stage string, pct int, msg string) error {
	if pct < st.LastProgress {
		pct = st.LastProgress
	}
	st.LastProgress = pct
	return ctx.Report(stage, pct, msg)
}

// LoadState reads coordinator state from the task result. Unknown layouts start fresh.
func LoadState(ctx *jobrt.Context) *State {
	st := &State{}
	raw := ctx.Task.Result
	if len(raw) > 0 && string(raw) != "null" {
		var wrapped struct {
			Orchestrator *State `json:"orchestrator"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Orchestrator != nil {
			st = wrapped.Orchestrator
		} else if err := json.Unmarshal(raw, st); err != nil {
			st = &State{}
		}
	}
	st.ensure()
	return st
}

func SaveState(ctx *jobrt.Context, st *State) {
	st.ensure()
	b, _ := json.Marshal(st)
	_ = ctx.Update(map[string]any{"result": datatypes.JSON(b)})
	ctx.Task.Result = datatypes.JSON(b)
}

func validateStages(stages []Stage) error {
	seen := map[string]bool{}
	lastEnd := -1
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage missing Name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true
		if s.StartPct < 0 || s.EndPct > 100 || s.EndPct < s.StartPct {
			return fmt.Errorf("stage %q: progress band must be within 0..100", s.Name)
		}
		if s.EndPct < lastEnd {
			return fmt.Errorf("stage %q: EndPct must be >= previous stage EndPct", s.Name)
		}
		if effectiveMode(s) == ModeChild && strings.TrimSpace(s.ChildKind) == "" {
			return fmt.Errorf("stage %q: missing ChildKind", s.Name)
		}
		lastEnd = s.EndPct
	}
	return nil
}

func effectiveMode(s Stage) StageMode {
	if s.Mode == "" {
		if s.ChildKind != "" {
			return ModeChild
		}
		return ModeInline
	}
	return s.Mode
}

func markStarted(ss *StageState) {
	if ss.StartedAt != nil {
		return
	}
	now := time.Now().UTC()
	ss.StartedAt = &now
}

func markFinished(ss *StageState, lastErr string) {
	now := time.Now().UTC()
	ss.FinishedAt = &now
	if strings.TrimSpace(lastErr) != "" {
		ss.LastError = lastErr
	}
}

func mergeOutputs(ss *StageState, outs map[string]any) {
	if outs == nil {
		return
	}
	if ss.Outputs == nil {
		ss.Outputs = map[string]any{}
	}
	for k, v := range outs {
		ss.Outputs[k] = v
	}
}

func shouldRetry(r RetryPolicy, attempts int, err error) bool {
	if errorsIsCancel(err) || r.MaxAttempts <= 0 || attempts >= r.MaxAttempts {
		return false
	}
	if r.Retryable == nil {
		return apperrors.IsTransient(err)
	}
	return r.Retryable(err)
}

func errorsIsCancel(err error) bool {
	return apperrors.Is(err, apperrors.ErrCancellationRequested)
}

func computeBackoff(r RetryPolicy, attempts int) time.Duration {
	minB, maxB, j := r.MinBackoff, r.MaxBackoff, r.JitterFrac
	if minB <= 0 {
		minB = time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	if j <= 0 {
		j = 0.20
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempts-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * j
	low := math.Max(0, float64(d)-delta)
	high := float64(d) + delta
	return time.Duration(low + rand.Float64()*(high-low))
}

func clampDuration(d, minD, maxD time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if minD > 0 && d < minD {
		return minD
	}
	if maxD > 0 && d > maxD {
		return maxD
	}
	return d
}

func ptrTime(t time.Time) *time.Time { return &t }

func msgOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func stringsOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
