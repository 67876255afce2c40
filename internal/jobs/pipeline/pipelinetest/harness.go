// Package pipelinetest runs a single handler through the real worker against a throwaway
// SQLite database.
package pipelinetest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/jobs/worker"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Harness struct {
	DB    *gorm.DB
	Log   *logger.Logger
	Repos *repos.Set
	Store *progress.MemoryStore
}

func New(tb testing.TB) *Harness {
	tb.Helper()
	db := testutil.DB(tb)
	log := testutil.Logger(tb)
	return &Harness{
		DB:    db,
		Log:   log,
		Repos: repos.NewSet(db, log),
		Store: progress.NewMemoryStore(time.Hour),
	}
}

// Enqueue creates a queued task row carrying kwargs.
func (h *Harness) Enqueue(tb testing.TB, kind string, projectID *uuid.UUID, kwargs map[string]any) *types.Task {
	tb.Helper()
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	if projectID != nil {
		kwargs["project_id"] = projectID.String()
	}
	b, err := json.Marshal(runtime.Payload{Args: []any{}, Kwargs: kwargs})
	if err != nil {
		tb.Fatalf("encode payload: %v", err)
	}
	task := &types.Task{
		Kind:        kind,
		ProjectID:   projectID,
		MaxAttempts: 1,
		Payload:     datatypes.JSON(b),
	}
	if _, err := h.Repos.Tasks.Create(dbctx.Context{Ctx: context.Background()}, []*types.Task{task}); err != nil {
		tb.Fatalf("create task: %v", err)
	}
	return task
}

// SubmitChild inserts child tasks directly so coordinators can run without the task service.
func (h *Harness) SubmitChild(ctx context.Context, parent *types.Task, kind string, kwargs map[string]any) (uuid.UUID, error) {
	b, err := json.Marshal(runtime.Payload{Args: []any{}, Kwargs: kwargs})
	if err != nil {
		return uuid.Nil, err
	}
	parentID := parent.ID
	task := &types.Task{
		Kind:      kind,
		ProjectID: parent.ProjectID,
		ParentID:  &parentID,
		Payload:   datatypes.JSON(b),
	}
	if _, err := h.Repos.Tasks.Create(dbctx.Context{Ctx: ctx}, []*types.Task{task}); err != nil {
		return uuid.Nil, err
	}
	return task.ID, nil
}

// Get reloads a task row.
func (h *Harness) Get(tb testing.TB, id uuid.UUID) *types.Task {
	tb.Helper()
	row, err := h.Repos.Tasks.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		tb.Fatalf("load task: %v", err)
	}
	return row
}

// Run enqueues one task for handler, runs it to completion and returns the final row with
// every snapshot the task published.
func (h *Harness) Run(tb testing.TB, handler runtime.Handler, projectID *uuid.UUID, kwargs map[string]any) (*types.Task, []progress.Snapshot) {
	tb.Helper()
	task := h.Enqueue(tb, handler.Type(), projectID, kwargs)
	h.RunOnce(tb, handler)
	row, err := h.Repos.Tasks.GetByID(dbctx.Context{Ctx: context.Background()}, task.ID)
	if err != nil {
		tb.Fatalf("load task: %v", err)
	}
	return row, h.Store.History(task.ID)
}

// RunOnce claims and runs the next queued task of the given handlers' kinds.
func (h *Harness) RunOnce(tb testing.TB, handlers ...runtime.Handler) {
	tb.Helper()
	reg := runtime.NewRegistry()
	reg.MustRegister(handlers...)
	w := worker.NewWorker(h.DB, h.Log, h.Repos.Tasks, h.Store, reg, worker.Config{Concurrency: 1, HeartbeatEvery: 50 * time.Millisecond})
	ran, err := w.RunOnce(context.Background())
	if err != nil {
		tb.Fatalf("run: %v", err)
	}
	if !ran {
		tb.Fatalf("no task was claimed")
	}
}

// Result decodes the task's result JSON into dst.
func Result(tb testing.TB, task *types.Task, dst any) {
	tb.Helper()
	if err := json.Unmarshal(task.Result, dst); err != nil {
		tb.Fatalf("decode result %s: %v", string(task.Result), err)
	}
}

// LLM answers GenerateText with a canned reply per call and GenerateJSON with JSON.
type LLM struct {
	mu      sync.Mutex
	Text    func(system, user string) (string, error)
	JSON    map[string]any
	Prompts []string
}

func (l *LLM) GenerateText(_ context.Context, system, user string) (string, error) {
	l.mu.Lock()
	l.Prompts = append(l.Prompts, user)
	l.mu.Unlock()
	if l.Text == nil {
		return "text", nil
	}
	return l.Text(system, user)
}

func (l *LLM) GenerateJSON(_ context.Context, system, user, _ string, _ map[string]any) (map[string]any, error) {
	l.mu.Lock()
	l.Prompts = append(l.Prompts, user)
	l.mu.Unlock()
	return l.JSON, nil
}

// Calls counts prompts containing substr.
func (l *LLM) Calls(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.Prompts {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n
}
