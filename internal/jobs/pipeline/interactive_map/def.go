package interactive_map

import (
	"github.com/yungbote/qalam-backend/internal/data/repos"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Pipeline struct {
	log       *logger.Logger
	entities  repos.KnowledgeEntityRepo
	builder   *generators.MapBuilder
	blobs     generators.BlobPutter
	artifacts repos.ArtifactRepo
}

func New(
	baseLog *logger.Logger,
	entities repos.KnowledgeEntityRepo,
	builder *generators.MapBuilder,
	blobs generators.BlobPutter,
	artifacts repos.ArtifactRepo,
) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", pipelines.KindInteractiveMap),
		entities:  entities,
		builder:   builder,
		blobs:     blobs,
		artifacts: artifacts,
	}
}

func (p *Pipeline) Type() string { return pipelines.KindInteractiveMap }

func (p *Pipeline) Spec() jobrt.Spec { return jobrt.Spec{Timeout: pipelines.GeneratorTimeout} }
