package rebuild_ukb

import (
	"fmt"

	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
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
	if p.projects != nil {
		if _, err := p.projects.GetByID(dbctx.Context{Ctx: jc.Ctx}, projectID); err != nil {
			jc.Fail("validate", fmt.Errorf("load project: %w", err))
			return nil
		}
	}

	if err := jc.Report("correlate", 20, "Correlating sources"); err != nil {
		return err
	}
	taskID := jc.Task.ID
	res, gen, err := p.builder.Rebuild(jc.Ctx, projectID, &taskID)
	if err != nil {
		jc.Fail("correlate", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"generation":       gen,
		"summary":          res.Summary,
		"confidence":       res.Confidence,
		"themes":           res.Themes,
		"cross_references": len(res.CrossReferences),
	})
	return nil
}
