package video_to_book

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/jobs/orchestrator"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/blobstore"
)

const runKeyMeta = "run_key"

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	projectID, ok := pipelines.ProjectArg(jc)
	if !ok {
		return nil
	}

	st := orchestrator.LoadState(jc)
	runKey, _ := st.Meta[runKeyMeta].(string)
	if runKey == "" {
		key, err := p.runKey(jc, projectID)
		if err != nil {
			jc.Fail("validate", err)
			return nil
		}
		runKey = key
		st.Meta[runKeyMeta] = runKey
		orchestrator.SaveState(jc, st)
	}

	specs := pipelineStages(p.log)
	stages := make([]orchestrator.Stage, 0, len(specs))
	for _, s := range specs {
		s := s
		stageKey := StageKey(runKey, s.Name)
		stages = append(stages, orchestrator.Stage{
			Name:      s.Name,
			Mode:      orchestrator.ModeChild,
			StartPct:  s.StartPct,
			EndPct:    s.EndPct,
			StartMsg:  s.Message,
			ChildKind: s.Name,
			// A stage whose artifact already exists finished in an earlier run.
			IsDone: func(ctx *jobrt.Context, _ *orchestrator.State) (bool, error) {
				a, err := p.artifacts.FindByStage(dbctx.Context{Ctx: ctx.Ctx}, projectID, stageKey)
				if err != nil {
					return false, err
				}
				return a != nil, nil
			},
			ChildKwargs: func(_ *jobrt.Context, _ *orchestrator.State) (map[string]any, error) {
				return map[string]any{
					"project_id": projectID.String(),
					"run_key":    runKey,
				}, nil
			},
		})
	}
	return p.engine.Run(jc, stages, map[string]any{
		"project_id": projectID.String(),
		"run_key":    runKey,
	})
}

// runKey fingerprints the project's sources. Reruns over the same sources share a key and
// therefore reuse every stage artifact already produced.
func (p *Pipeline) runKey(jc *jobrt.Context, projectID uuid.UUID) (string, error) {
	srcs, err := p.sources.ListByProject(dbctx.Context{Ctx: jc.Ctx}, projectID)
	if err != nil {
		return "", fmt.Errorf("list sources: %w", err)
	}
	ids := make([]string, 0, len(srcs))
	for _, s := range srcs {
		if s.Status == types.SourceError {
			continue
		}
		ids = append(ids, s.ID.String())
	}
	if len(ids) == 0 {
		return "", apperrors.Wrap(apperrors.ErrInvalidArgument, fmt.Errorf("project %s has no usable sources", projectID))
	}
	sort.Strings(ids)
	return blobstore.Checksum([]byte(strings.Join(ids, ",")))[:16], nil
}
