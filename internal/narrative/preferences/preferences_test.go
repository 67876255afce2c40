package preferences

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
)

func TestInferFromNotes(t *testing.T) {
	cases := []struct {
		name  string
		notes []string
		want  Preferences
	}{
		{"informal short", []string{"make it more casual and shorter", "user prefers informal, concise text", ""}, Preferences{ToneInformal, LengthShort}},
		{"no notes", nil, Default()},
		{"no matches", []string{"fix the typo", "", "ok"}, Default()},
		{"tie falls back", []string{"more formal", "more casual"}, Preferences{ToneNeutral, LengthMedium}},
		{"informal is not formal", []string{"informal please"}, Preferences{ToneInformal, LengthMedium}},
		{"formal long", []string{"Formal and DETAILED", "expand the ending"}, Preferences{ToneFormal, LengthLong}},
		{"arabic", []string{"اجعله غير رسمي ومختصر", "أقصر من فضلك"}, Preferences{ToneInformal, LengthShort}},
		{"arabic formal", []string{"بأسلوب رسمي"}, Preferences{ToneFormal, LengthMedium}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := InferFromNotes(c.notes); got != c.want {
				t.Fatalf("InferFromNotes(%q)=%+v want %+v", c.notes, got, c.want)
			}
		})
	}
}

func TestInferFromNotesIsDeterministic(t *testing.T) {
	notes := []string{"shorter", "longer", "casual tone, keep it brief"}
	a, _ := json.Marshal(InferFromNotes(notes))
	for i := 0; i < 20; i++ {
		b, _ := json.Marshal(InferFromNotes(notes))
		if string(a) != string(b) {
			t.Fatalf("non-deterministic result: %s vs %s", a, b)
		}
	}
}

func TestLearnerUsesLastThreeRelevantEdits(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	edits := repos.NewUserEditRepo(db, testutil.Logger(t))
	user := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	add := func(min int, kind, notes string) {
		t.Helper()
		if _, err := edits.Create(dbctx.Context{Ctx: ctx}, &types.UserEdit{
			UserID: user, Kind: kind, Notes: notes, Timestamp: base.Add(time.Duration(min) * time.Minute),
		}); err != nil {
			t.Fatalf("create edit: %v", err)
		}
	}
	// Oldest first. The formal/long edit falls outside the last three relevant edits.
	add(0, types.EditManual, "formal, longer, more detail, formal")
	add(1, types.EditAICorrection, "")
	add(2, types.EditOther, "very formal and long")
	add(3, types.EditManual, "user prefers informal, concise text")
	add(4, types.EditAICorrection, "make it more casual and shorter")

	got, err := NewLearner(testutil.Logger(t), edits).Infer(ctx, user)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if want := (Preferences{ToneInformal, LengthShort}); got != want {
		t.Fatalf("Infer=%+v want %+v", got, want)
	}

	other, err := NewLearner(nil, edits).Infer(ctx, uuid.New())
	if err != nil || !other.IsDefault() {
		t.Fatalf("unknown user: %+v %v", other, err)
	}
}
