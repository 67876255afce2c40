package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/jobs/worker"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

type substrate struct {
	svc    TaskService
	store  *progress.MemoryStore
	worker *worker.Worker
	repo   repos.TaskRepo
}

func newSubstrate(t *testing.T, handlers ...runtime.Handler) *substrate {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewTaskRepo(db, log)
	store := progress.NewMemoryStore(time.Hour)
	reg := runtime.NewRegistry()
	reg.MustRegister(handlers...)
	w := worker.NewWorker(db, log, repo, store, reg, worker.Config{
		Concurrency:    1,
		PollInterval:   10 * time.Millisecond,
		RetryDelay:     0,
		HeartbeatEvery: 20 * time.Millisecond,
	})
	return &substrate{
		svc:    NewTaskService(db, log, repo, store, reg, nil),
		store:  store,
		worker: w,
		repo:   repo,
	}
}

func TestSubmitUnknownKind(t *testing.T) {
	s := newSubstrate(t)
	_, err := s.svc.Submit(dbctx.Context{Ctx: context.Background()}, "nope", nil, nil, SubmitOptions{})
	if !errors.Is(err, apperrors.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	h := runtime.HandlerFunc{Kind: "scene_generate", Policy: runtime.Spec{QueueCap: 1}, Fn: func(*runtime.Context) error { return nil }}
	s := newSubstrate(t, h)
	dbc := dbctx.Context{Ctx: context.Background()}
	if _, err := s.svc.Submit(dbc, "scene_generate", nil, nil, SubmitOptions{}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := s.svc.Submit(dbc, "scene_generate", nil, nil, SubmitOptions{})
	if !errors.Is(err, apperrors.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestSubmitCoalescesByDedupeKey(t *testing.T) {
	h := runtime.HandlerFunc{Kind: "ukb_rebuild", Fn: func(*runtime.Context) error { return nil }}
	s := newSubstrate(t, h)
	dbc := dbctx.Context{Ctx: context.Background()}
	projectID := uuid.New()
	opts := SubmitOptions{ProjectID: &projectID, DedupeKey: projectID.String()}
	first, err := s.svc.Submit(dbc, "ukb_rebuild", nil, nil, opts)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := s.svc.Submit(dbc, "ukb_rebuild", nil, nil, opts)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first != second {
		t.Fatalf("expected coalesced id %s, got %s", first, second)
	}
}

func TestSceneProgressIsMonotonic(t *testing.T) {
	h := runtime.HandlerFunc{Kind: "scene_generate", Fn: func(c *runtime.Context) error {
		for _, pct := range []int{10, 50, 100} {
			if err := c.Report("generate", pct, "writing"); err != nil {
				return err
			}
		}
		c.Succeed("done", map[string]any{"text": "the scene text"})
		return nil
	}}
	s := newSubstrate(t, h)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	id, err := s.svc.Submit(dbc, "scene_generate", nil, map[string]any{"scene_type": "dialogue"}, SubmitOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	st, err := s.svc.GetStatus(dbc, id)
	if err != nil || st.State != progress.StatePending {
		t.Fatalf("expected pending before execution, got %+v err=%v", st, err)
	}

	ran, err := s.worker.RunOnce(ctx)
	if err != nil || !ran {
		t.Fatalf("RunOnce ran=%v err=%v", ran, err)
	}

	last := -1
	for _, snap := range s.store.History(id) {
		if snap.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", snap.Progress, last)
		}
		last = snap.Progress
	}

	final, err := s.svc.GetStatus(dbc, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if final.State != progress.StateSucceeded || final.Progress != 100 {
		t.Fatalf("unexpected final snapshot: %+v", final)
	}
	var res struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(final.Result, &res); err != nil || res.Text != "the scene text" {
		t.Fatalf("unexpected result %s err=%v", final.Result, err)
	}

	row, err := s.repo.GetByID(dbc, id)
	if err != nil || row.Status != "succeeded" {
		t.Fatalf("durable row not succeeded: %+v err=%v", row, err)
	}
}

func TestCancelQueuedAndRunning(t *testing.T) {
	started := make(chan struct{})
	h := runtime.HandlerFunc{Kind: "movie_treatment", Fn: func(c *runtime.Context) error {
		close(started)
		for pct := 1; ; pct++ {
			if err := c.Report("generate", pct%100, "working"); err != nil {
				return err
			}
			time.Sleep(5 * time.Millisecond)
		}
	}}
	s := newSubstrate(t, h)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	queued, err := s.svc.Submit(dbc, "movie_treatment", nil, nil, SubmitOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.svc.Cancel(dbc, queued); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}
	st, err := s.svc.GetStatus(dbc, queued)
	if err != nil || st.State != progress.StateRevoked {
		t.Fatalf("queued task should be revoked, got %+v err=%v", st, err)
	}

	running, err := s.svc.Submit(dbc, "movie_treatment", nil, nil, SubmitOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := s.worker.RunOnce(ctx)
		done <- err
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler never started")
	}
	if err := s.svc.Cancel(dbc, running); err != nil {
		t.Fatalf("cancel running: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("handler ignored cancellation")
	}
	st, err = s.svc.GetStatus(dbc, running)
	if err != nil || st.State != progress.StateRevoked {
		t.Fatalf("running task should end revoked, got %+v err=%v", st, err)
	}
}

func TestHandlerErrorFailsWithDetail(t *testing.T) {
	h := runtime.HandlerFunc{Kind: "interactive_map", Fn: func(c *runtime.Context) error {
		c.Progress("geocode", 20, "")
		return apperrors.Wrap(apperrors.ErrDependencyMissing, errors.New("geocoder not configured"))
	}}
	s := newSubstrate(t, h)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	id, err := s.svc.Submit(dbc, "interactive_map", nil, nil, SubmitOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.worker.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	st, err := s.svc.GetStatus(dbc, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != progress.StateFailed || st.Error == nil || st.Error.Kind != apperrors.KindDependencyMissing {
		t.Fatalf("unexpected status %+v", st)
	}
}
