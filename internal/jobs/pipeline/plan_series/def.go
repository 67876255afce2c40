package plan_series

import (
	"github.com/yungbote/qalam-backend/internal/data/repos"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Pipeline struct {
	log     *logger.Logger
	loader  *pipelines.NarrativeLoader
	planner *generators.EpisodePlanner
	outline repos.SeriesOutlineRepo
}

func New(baseLog *logger.Logger, loader *pipelines.NarrativeLoader, planner *generators.EpisodePlanner, outline repos.SeriesOutlineRepo) *Pipeline {
	return &Pipeline{
		log:     baseLog.With("job", pipelines.KindPlanSeries),
		loader:  loader,
		planner: planner,
		outline: outline,
	}
}

func (p *Pipeline) Type() string { return pipelines.KindPlanSeries }

// One LLM call per episode, so the budget scales past a single generator's.
func (p *Pipeline) Spec() jobrt.Spec { return jobrt.Spec{Timeout: 3 * pipelines.GeneratorTimeout} }
