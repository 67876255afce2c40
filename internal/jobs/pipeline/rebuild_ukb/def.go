package rebuild_ukb

import (
	"github.com/yungbote/qalam-backend/internal/data/repos"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/knowledge/correlator"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Pipeline struct {
	log      *logger.Logger
	builder  *correlator.Builder
	projects repos.ProjectRepo
}

func New(baseLog *logger.Logger, builder *correlator.Builder, projects repos.ProjectRepo) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", pipelines.KindRebuildUKB),
		builder:  builder,
		projects: projects,
	}
}

func (p *Pipeline) Type() string { return pipelines.KindRebuildUKB }

func (p *Pipeline) Spec() jobrt.Spec {
	return jobrt.Spec{Timeout: pipelines.GeneratorTimeout, MaxAttempts: 2}
}
