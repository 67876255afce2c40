package live_novel_build

import (
	"fmt"

	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	projectID, ok := pipelines.ProjectArg(jc)
	if !ok {
		return nil
	}

	if err := jc.Report("context", 10, "Loading chapters"); err != nil {
		return err
	}
	nar, err := p.loader.Load(jc.Ctx, projectID)
	if err != nil {
		jc.Fail("context", err)
		return nil
	}
	chapters, err := p.chapters.ListByProject(dbctx.Context{Ctx: jc.Ctx}, projectID)
	if err != nil {
		jc.Fail("context", fmt.Errorf("list chapters: %w", err))
		return nil
	}

	if err := jc.Report("link", 50, "Linking entities"); err != nil {
		return err
	}
	novel := generators.BuildLiveNovel(projectID, nar.Project.Title, chapters, nar.Snapshot)

	if err := jc.Report("persist", 90, "Saving live novel"); err != nil {
		return err
	}
	art, err := pipelines.SaveArtifact(jc, p.artifacts, projectID, types.ArtifactLiveNovelJSON, novel, "", "")
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}
	p.log.Info("live novel built", "project_id", projectID.String(), "chapters", len(novel.Chapters), "entities", len(novel.Entities))

	jc.Succeed("done", map[string]any{
		"artifact_id": art.ID.String(),
		"chapters":    len(novel.Chapters),
		"entities":    len(novel.Entities),
	})
	return nil
}
