package audiobook

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/blobstore"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	voices []string
}

func (f *fakeSpeaker) Speech(_ context.Context, text, voice string) ([]byte, error) {
	f.mu.Lock()
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	return []byte(voice + ":" + text + "\n"), nil
}

func newPipeline(t *testing.T, h *pipelinetest.Harness, sp *fakeSpeaker) (*Pipeline, *blobstore.LocalStore) {
	t.Helper()
	blobs, err := blobstore.NewLocalStore(t.TempDir(), h.Log)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	return New(h.Log, h.Repos.Chapters, generators.NewAudiobookGenerator(h.Log, sp, blobs), h.Repos.Artifacts), blobs
}

func TestAudiobookStoresChapterAudio(t *testing.T) {
	h := pipelinetest.New(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, ctx, h.DB, uuid.New())
	testutil.SeedChapter(t, ctx, h.DB, project.ID, 0, "Dawn", "Layla: We leave at dawn.\n\nThe caravan waited by the gate.")
	testutil.SeedChapter(t, ctx, h.DB, project.ID, 1, "Blank", "   ")

	sp := &fakeSpeaker{}
	p, blobs := newPipeline(t, h, sp)
	row, _ := h.Run(t, p, &project.ID, map[string]any{
		"voice_map": map[string]any{"narrator": "onyx", "Layla": "nova"},
	})
	if row.Status != types.TaskSucceeded {
		t.Fatalf("status=%q message=%q", row.Status, row.Message)
	}
	if len(sp.voices) != 2 || sp.voices[0] != "nova" || sp.voices[1] != "onyx" {
		t.Fatalf("voices=%v", sp.voices)
	}

	var res struct {
		ArtifactID string   `json:"artifact_id"`
		Chapters   int      `json:"chapters"`
		Paths      []string `json:"paths"`
	}
	pipelinetest.Result(t, row, &res)
	if res.Chapters != 1 || len(res.Paths) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	arts, err := h.Repos.Artifacts.ListByProject(dbctx.Context{Ctx: ctx}, project.ID, types.ArtifactAudiobook)
	if err != nil || len(arts) != 1 {
		t.Fatalf("audiobook artifacts=%d err=%v", len(arts), err)
	}
	if arts[0].ID.String() != res.ArtifactID || arts[0].ProducedByTaskID == nil || *arts[0].ProducedByTaskID != row.ID {
		t.Fatalf("artifact not linked to the task: %+v", arts[0])
	}
	var refs []string
	if err := json.Unmarshal([]byte(arts[0].PayloadRef), &refs); err != nil {
		t.Fatalf("payload_ref %q: %v", arts[0].PayloadRef, err)
	}
	if len(refs) != 1 || refs[0] != res.Paths[0] {
		t.Fatalf("payload_ref=%v paths=%v", refs, res.Paths)
	}
	audio, err := blobs.Get(ctx, refs[0])
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if !strings.HasPrefix(string(audio), "nova:We leave at dawn.") || !strings.Contains(string(audio), "onyx:The caravan") {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestAudiobookWithoutTextFails(t *testing.T) {
	h := pipelinetest.New(t)
	project := testutil.SeedProject(t, context.Background(), h.DB, uuid.New())

	sp := &fakeSpeaker{}
	p, _ := newPipeline(t, h, sp)
	row, _ := h.Run(t, p, &project.ID, nil)
	if row.Status != types.TaskFailed {
		t.Fatalf("status=%q", row.Status)
	}
	var detail apperrors.Detail
	if err := json.Unmarshal(row.ErrorDetail, &detail); err != nil {
		t.Fatalf("decode error detail: %v", err)
	}
	if detail.Kind != apperrors.KindInvalidArgument || detail.Stage != "narrate" {
		t.Fatalf("detail=%+v", detail)
	}
	arts, _ := h.Repos.Artifacts.ListByProject(dbctx.Context{Ctx: context.Background()}, project.ID, types.ArtifactAudiobook)
	if len(arts) != 0 || len(sp.voices) != 0 {
		t.Fatalf("failed run left artifacts=%d speech calls=%d", len(arts), len(sp.voices))
	}
}
