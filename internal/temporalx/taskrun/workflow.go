package taskrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

const (
	defaultPollInterval  = 2 * time.Second
	retryPollInterval    = 30 * time.Second
	continueTickLimit    = 2000
	continueHistoryLimit = 15000
)

// Workflow ticks the task until it settles. The workflow id is the task id.
func Workflow(ctx workflow.Context) error {
	taskID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if taskID == "" {
		return fmt.Errorf("taskrun: missing task_id")
	}

	// Retries belong to the task's own policy, so activity retries stay off.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    30 * time.Second,
	})

	for ticks := 1; ; ticks++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, taskID).Get(ctx, &out); err != nil {
			return err
		}
		switch out.Status {
		case "succeeded", "revoked":
			return nil
		case "failed":
			if !out.Retryable {
				return fmt.Errorf("task failed (stage=%s)", out.Stage)
			}
			if err := workflow.Sleep(ctx, retryPollInterval); err != nil {
				return err
			}
		default:
			if d := nextWait(ctx, out.WaitUntil, defaultPollInterval); d > 0 {
				if err := workflow.Sleep(ctx, d); err != nil {
					return err
				}
			}
		}
		if shouldContinueAsNew(ctx, ticks) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func nextWait(ctx workflow.Context, waitUntil *time.Time, def time.Duration) time.Duration {
	if waitUntil == nil || waitUntil.IsZero() {
		return def
	}
	d := waitUntil.Sub(workflow.Now(ctx))
	if d <= 0 {
		return def
	}
	if d > 15*time.Minute {
		return 15 * time.Minute
	}
	return d
}

func shouldContinueAsNew(ctx workflow.Context, ticks int) bool {
	if ticks >= continueTickLimit {
		return true
	}
	info := workflow.GetInfo(ctx)
	return info != nil && info.GetCurrentHistoryLength() >= continueHistoryLimit
}
