package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/narrative/preferences"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

func newWritingFixture(t *testing.T) (WritingService, *repos.Set, *types.Project) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	proj := testutil.SeedProject(t, context.Background(), db, uuid.New())
	return NewWritingService(db, log, set.Projects, set.Sessions, set.Edits), set, proj
}

func TestRecordEditFeedsPreferences(t *testing.T) {
	svc, set, proj := newWritingFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	owner := proj.OwnerUserID

	for _, notes := range []string{"make it more casual and shorter", "user prefers informal, concise text"} {
		if _, err := svc.RecordEdit(dbc, owner, EditInput{ProjectID: &proj.ID, Kind: types.EditAICorrection, Notes: notes}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	learner := preferences.NewLearner(testutil.Logger(t), set.Edits)
	prefs, err := learner.Infer(context.Background(), owner)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if prefs.Tone != "informal" || prefs.Length != "short" {
		t.Fatalf("unexpected preferences %+v", prefs)
	}
}

func TestRecordEditValidates(t *testing.T) {
	svc, _, proj := newWritingFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := svc.RecordEdit(dbc, uuid.Nil, EditInput{Notes: "x"}); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("anonymous edit: %v", err)
	}
	if _, err := svc.RecordEdit(dbc, proj.OwnerUserID, EditInput{Kind: "rewrite"}); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("unknown kind: %v", err)
	}
	if _, err := svc.RecordEdit(dbc, uuid.New(), EditInput{ProjectID: &proj.ID}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("foreign project: %v", err)
	}
	edit, err := svc.RecordEdit(dbc, proj.OwnerUserID, EditInput{Notes: "  tighten  "})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if edit.Kind != types.EditOther || edit.Notes != "tighten" || string(edit.ContextTags) != "[]" {
		t.Fatalf("unexpected edit %+v", edit)
	}
}

func TestWritingSessionLifecycle(t *testing.T) {
	svc, _, proj := newWritingFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	owner := proj.OwnerUserID

	sess, err := svc.StartWritingSession(dbc, owner, proj.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.EndedAt != nil {
		t.Fatalf("new session already ended")
	}
	if _, err := svc.EndWritingSession(dbc, uuid.New(), sess.ID, repos.SessionTotals{}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("stranger ended session: %v", err)
	}

	quality := 1.7
	ended, err := svc.EndWritingSession(dbc, owner, sess.ID, repos.SessionTotals{
		WordsWritten:  420,
		EditsMade:     7,
		ActiveSeconds: 900,
		QualityScore:  &quality,
		Stage:         "drafting",
	})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.EndedAt == nil || ended.WordsWritten != 420 || ended.ActiveSeconds != 900 {
		t.Fatalf("unexpected totals %+v", ended)
	}
	if ended.QualityScoreSnapshot == nil || *ended.QualityScoreSnapshot != 1 {
		t.Fatalf("quality not clamped: %v", ended.QualityScoreSnapshot)
	}

	list, err := svc.ListWritingSessions(dbc, owner, proj.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != sess.ID {
		t.Fatalf("unexpected sessions %+v", list)
	}
}
