package generate_scene

import (
	"github.com/yungbote/qalam-backend/internal/data/repos"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Pipeline struct {
	log       *logger.Logger
	loader    *pipelines.NarrativeLoader
	scenes    *generators.TextGenerator
	artifacts repos.ArtifactRepo
}

func New(
	baseLog *logger.Logger,
	loader *pipelines.NarrativeLoader,
	scenes *generators.TextGenerator,
	artifacts repos.ArtifactRepo,
) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", pipelines.KindGenerateScene),
		loader:    loader,
		scenes:    scenes,
		artifacts: artifacts,
	}
}

func (p *Pipeline) Type() string { return pipelines.KindGenerateScene }

func (p *Pipeline) Spec() jobrt.Spec { return jobrt.Spec{Timeout: pipelines.GeneratorTimeout} }
