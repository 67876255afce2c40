package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/temporalx"
	"github.com/yungbote/qalam-backend/internal/temporalx/taskrun"
)

// Runner hosts the taskrun workflow and activity and forwards cancel notices to the
// executor so in-flight activities stop at their next checkpoint.
type Runner struct {
	log   *logger.Logger
	cfg   temporalx.Config
	tc    temporalsdkclient.Client
	tasks repos.TaskRepo
	store progress.Store
	exec  *jobrt.Executor
}

func NewRunner(log *logger.Logger, cfg temporalx.Config, tc temporalsdkclient.Client, tasks repos.TaskRepo, store progress.Store, exec *jobrt.Executor) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if tasks == nil || exec == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{
		log:   log.With("component", "TemporalRunner"),
		cfg:   cfg,
		tc:    tc,
		tasks: tasks,
		store: store,
		exec:  exec,
	}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)
	maxWait := envutil.Seconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60*time.Second)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			go r.forwardCancels(ctx)
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && r.cfg.AutoRegisterNamespace {
			_ = temporalx.EnsureNamespace(ctx, r.cfg, r.log)
		}
		if maxWait <= 0 || time.Now().After(deadline) {
			if errors.As(startErr, &nfe) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		time.Sleep(temporalx.Backoff(r.cfg.BackoffBase, r.cfg.BackoffMax, attempt))
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	acts := &taskrun.Activities{
		Log:          r.log,
		Tasks:        r.tasks,
		Executor:     r.exec,
		RetryDelay:   envutil.Seconds("WORKER_RETRY_DELAY_SECONDS", 30*time.Second),
		StaleRunning: envutil.Seconds("WORKER_STALE_RUNNING_SECONDS", 30*time.Minute),
	}
	w.RegisterWorkflowWithOptions(taskrun.Workflow, workflow.RegisterOptions{Name: taskrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: taskrun.ActivityTick})
	return w
}

func (r *Runner) forwardCancels(ctx context.Context) {
	if r.store == nil {
		return
	}
	ch, err := r.store.SubscribeCancel(ctx)
	if err != nil {
		r.log.Warn("cancel subscription failed; relying on row probes", "error", err)
		return
	}
	for id := range ch {
		r.exec.Cancel(id)
	}
}
