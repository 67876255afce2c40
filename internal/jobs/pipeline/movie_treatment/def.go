package movie_treatment

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
	treatment *generators.TreatmentGenerator
	artifacts repos.ArtifactRepo
}

func New(baseLog *logger.Logger, loader *pipelines.NarrativeLoader, treatment *generators.TreatmentGenerator, artifacts repos.ArtifactRepo) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", pipelines.KindMovieTreatment),
		loader:    loader,
		treatment: treatment,
		artifacts: artifacts,
	}
}

func (p *Pipeline) Type() string { return pipelines.KindMovieTreatment }

func (p *Pipeline) Spec() jobrt.Spec { return jobrt.Spec{Timeout: pipelines.GeneratorTimeout} }
