package taskrun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Activities struct {
	Log      *logger.Logger
	Tasks    repos.TaskRepo
	Executor *runtime.Executor

	RetryDelay   time.Duration
	StaleRunning time.Duration
}

// Tick claims the task if it is runnable, runs it through the shared executor and reports
// where it ended up. A task that is not claimable (retry delay pending, another owner)
// is reported as-is so the workflow polls again.
func (a *Activities) Tick(ctx context.Context, taskID string) (TickResult, error) {
	res := TickResult{TaskID: strings.TrimSpace(taskID)}
	if a == nil || a.Tasks == nil || a.Executor == nil {
		return res, fmt.Errorf("taskrun: activity not configured")
	}
	id, err := uuid.Parse(res.TaskID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("taskrun: invalid task_id")
	}
	dbc := dbctx.Context{Ctx: ctx}

	task, err := a.Tasks.GetByID(dbc, id)
	if err != nil {
		return res, err
	}
	if !types.IsTerminal(task.Status) || retryable(task) {
		stale := a.StaleRunning
		if stale <= 0 {
			stale = 30 * time.Minute
		}
		claimed, err := a.Tasks.ClaimByID(dbc, id, a.RetryDelay, stale)
		if err != nil {
			return res, err
		}
		if claimed != nil {
			stop := heartbeat(ctx)
			a.Executor.Execute(ctx, claimed)
			stop()
			if task, err = a.Tasks.GetByID(dbc, id); err != nil {
				return res, err
			}
		}
	}

	res.Status = task.Status
	res.Stage = task.Stage
	res.Progress = task.Progress
	res.Message = task.Message
	res.Retryable = retryable(task)
	res.WaitUntil = extractWaitUntil(task.Result)
	return res, nil
}

func retryable(t *types.Task) bool {
	return t.Status == types.TaskFailed && t.Attempts < t.MaxAttempts
}

func heartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

// extractWaitUntil reads the coordinator's next poll time from its persisted state.
func extractWaitUntil(raw []byte) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var obj struct {
		WaitUntil *time.Time `json:"wait_until"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj.WaitUntil
}
