package generate_scene

import (
	"fmt"

	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
)

type args struct {
	SceneRequest prompts.Request `json:"scene_request"`
}

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

	if err := jc.Report("context", 10, "Loading knowledge base"); err != nil {
		return err
	}
	nar, err := p.loader.Load(jc.Ctx, projectID)
	if err != nil {
		jc.Fail("context", err)
		return nil
	}

	if err := jc.Report("generate", 50, "Writing scene"); err != nil {
		return err
	}
	text, err := p.scenes.Scene(jc.Ctx, in.SceneRequest, nar.Snapshot, nar.Prefs)
	if err != nil {
		jc.Fail("generate", fmt.Errorf("generate scene: %w", err))
		return nil
	}

	if err := jc.Report("persist", 90, "Saving scene"); err != nil {
		return err
	}
	art, err := pipelines.SaveArtifact(jc, p.artifacts, projectID, types.ArtifactSceneText, map[string]any{
		"text":    text,
		"request": in.SceneRequest,
	}, "", "")
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}
	p.log.Info("scene generated", "project_id", projectID.String(), "chars", len([]rune(text)))

	jc.Succeed("done", map[string]any{
		"text":        text,
		"artifact_id": art.ID.String(),
	})
	return nil
}
