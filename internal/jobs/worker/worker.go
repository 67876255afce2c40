package worker

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Config struct {
	Concurrency    int
	PollInterval   time.Duration
	RetryDelay     time.Duration
	StaleRunning   time.Duration
	HeartbeatEvery time.Duration
	// Kinds restricts claiming; empty means every registered kind.
	Kinds []string
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:    envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval:   envutil.Seconds("WORKER_POLL_SECONDS", time.Second),
		RetryDelay:     envutil.Seconds("WORKER_RETRY_DELAY_SECONDS", 30*time.Second),
		StaleRunning:   envutil.Seconds("WORKER_STALE_RUNNING_SECONDS", 30*time.Minute),
		HeartbeatEvery: envutil.Seconds("WORKER_HEARTBEAT_SECONDS", 5*time.Second),
	}
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.TaskRepo
	store    progress.Store
	registry *runtime.Registry
	exec     *runtime.Executor
	cfg      Config
	wg       sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.TaskRepo, store progress.Store, registry *runtime.Registry, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = 30 * time.Minute
	}
	log := baseLog.With("component", "TaskWorker")
	return &Worker{
		db:       db,
		log:      log,
		repo:     repo,
		store:    store,
		registry: registry,
		cfg:      cfg,
		exec: &runtime.Executor{
			DB:             db,
			Repo:           repo,
			Store:          store,
			Registry:       registry,
			Log:            log,
			HeartbeatEvery: cfg.HeartbeatEvery,
		},
	}
}

// Executor exposes the shared executor so other dispatchers reuse the same cancel table.
func (w *Worker) Executor() *runtime.Executor { return w.exec }

// Start launches the pool and the cancel listener. It returns immediately; Wait blocks
// until every loop has drained after ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting task worker pool", "concurrency", w.cfg.Concurrency, "kinds", w.kinds())
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.listenCancels(ctx)
	}()
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain whatever is runnable before sleeping again.
			for {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce claims at most one task and runs it to a settled state.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.kinds(), w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	jc := w.exec.Execute(ctx, task)
	w.log.Debug("task settled", "task_id", task.ID, "task_kind", task.Kind, "status", jc.Task.Status)
	return true, nil
}

func (w *Worker) listenCancels(ctx context.Context) {
	if w.store == nil {
		return
	}
	ch, err := w.store.SubscribeCancel(ctx)
	if err != nil {
		w.log.Warn("cancel subscription failed; relying on row probes", "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ch:
			if !ok {
				return
			}
			if w.exec.Cancel(id) {
				w.log.Info("cancellation delivered", "task_id", id)
			}
		}
	}
}

func (w *Worker) kinds() []string {
	if len(w.cfg.Kinds) > 0 {
		return w.cfg.Kinds
	}
	return w.registry.Kinds()
}
