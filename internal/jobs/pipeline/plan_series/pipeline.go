package plan_series

import (
	"fmt"

	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
)

type args struct {
	Series generators.SeriesRequest `json:"series"`
}

const (
	planStartPct = 15
	planEndPct   = 85
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
	if err := in.Series.Validate(); err != nil {
		jc.Fail("validate", err)
		return nil
	}

	if err := jc.Report("context", 5, "Loading knowledge base"); err != nil {
		return err
	}
	nar, err := p.loader.Load(jc.Ctx, projectID)
	if err != nil {
		jc.Fail("context", err)
		return nil
	}
	if in.Series.TitleHint == "" && nar.Project != nil {
		in.Series.TitleHint = nar.Project.Title
	}

	if err := jc.Report("plan", planStartPct, "Planning episodes"); err != nil {
		return err
	}
	plan, err := p.planner.Plan(jc.Ctx, in.Series, nar.Snapshot, nar.Prefs, func(done, total int) error {
		pct := planStartPct + (planEndPct-planStartPct)*done/total
		return jc.Report("plan", pct, fmt.Sprintf("Planned episode %d of %d", done, total))
	})
	if err != nil {
		jc.Fail("plan", err)
		return nil
	}

	if err := jc.Report("persist", 90, "Saving series outline"); err != nil {
		return err
	}
	taskID := jc.Task.ID
	series, episodes, artifact, err := plan.Rows(projectID, &taskID)
	if err != nil {
		jc.Fail("persist", fmt.Errorf("encode series plan: %w", err))
		return nil
	}
	saved, err := p.outline.CreateWithEpisodes(dbctx.Context{Ctx: jc.Ctx}, series, episodes, artifact)
	if err != nil {
		jc.Fail("persist", fmt.Errorf("save series outline: %w", err))
		return nil
	}
	p.log.Info("series planned", "project_id", projectID.String(), "episodes", len(episodes))

	jc.Succeed("done", map[string]any{
		"series_outline_id": saved.ID.String(),
		"artifact_id":       artifact.ID.String(),
		"plan":              plan,
	})
	return nil
}
