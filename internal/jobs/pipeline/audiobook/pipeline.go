package audiobook

import (
	"encoding/json"
	"fmt"

	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
)

type args struct {
	VoiceMap generators.VoiceMap `json:"voice_map"`
}

const (
	narrateStartPct = 10
	narrateEndPct   = 90
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	projectID, ok := pipelines.ProjectArg(jc)
	if !ok {
		return nil
	}
	var in args
	if err := jc.DecodeKwargs(&in); err != nil {
		jc.Fail("validate", err)
		return nil
	}

	if err := jc.Report("context", 5, "Loading chapters"); err != nil {
		return err
	}
	chapters, err := p.chapters.ListByProject(dbctx.Context{Ctx: jc.Ctx}, projectID)
	if err != nil {
		jc.Fail("context", fmt.Errorf("list chapters: %w", err))
		return nil
	}

	if err := jc.Report("narrate", narrateStartPct, fmt.Sprintf("Narrating %d chapters", len(chapters))); err != nil {
		return err
	}
	runKey := fmt.Sprintf("%s-%d", jc.Task.ID, jc.Task.Attempts)
	book, err := p.narrator.Generate(jc.Ctx, projectID, runKey, chapters, in.VoiceMap, func(done, total int) error {
		pct := narrateStartPct + (narrateEndPct-narrateStartPct)*done/total
		return jc.Report("narrate", pct, fmt.Sprintf("Narrated chapter %d of %d", done, total))
	})
	if err != nil {
		jc.Fail("narrate", err)
		return nil
	}

	if err := jc.Report("persist", 95, "Saving audiobook"); err != nil {
		return err
	}
	refs, err := json.Marshal(book.PayloadRefs())
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}
	art, err := pipelines.SaveArtifact(jc, p.artifacts, projectID, types.ArtifactAudiobook, book, string(refs), "")
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"artifact_id": art.ID.String(),
		"chapters":    len(book.Chapters),
		"paths":       book.PayloadRefs(),
	})
	return nil
}
