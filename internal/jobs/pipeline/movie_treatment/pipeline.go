package movie_treatment

import (
	"fmt"

	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	projectID, ok := pipelines.ProjectArg(jc)
	if !ok {
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

	if err := jc.Report("generate", 40, "Drafting treatment"); err != nil {
		return err
	}
	t, err := p.treatment.Generate(jc.Ctx, nar.Project.Title, nar.Snapshot, nar.Prefs)
	if err != nil {
		jc.Fail("generate", fmt.Errorf("generate treatment: %w", err))
		return nil
	}

	if err := jc.Report("persist", 90, "Saving treatment"); err != nil {
		return err
	}
	art, err := pipelines.SaveArtifact(jc, p.artifacts, projectID, types.ArtifactMovieTreatment, t, "", "")
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"artifact_id": art.ID.String(),
		"treatment":   t,
	})
	return nil
}
