package temporalx

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/qalam-backend/internal/temporalx/taskrun"
)

// Dispatcher starts one taskrun workflow per task, keyed by the task id so a
// duplicate dispatch is a no-op.
type Dispatcher struct {
	Client    temporalsdkclient.Client
	TaskQueue string
}

func (d *Dispatcher) Dispatch(ctx context.Context, taskID uuid.UUID) error {
	if d == nil || d.Client == nil {
		return fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	if taskID == uuid.Nil {
		return fmt.Errorf("missing task id")
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    taskID.String(),
		TaskQueue:             d.TaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	_, err := d.Client.ExecuteWorkflow(ctx, opts, taskrun.WorkflowName)
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}
	return err
}
