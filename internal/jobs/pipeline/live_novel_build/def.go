package live_novel_build

import (
	"github.com/yungbote/qalam-backend/internal/data/repos"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Pipeline struct {
	log       *logger.Logger
	loader    *pipelines.NarrativeLoader
	chapters  repos.ChapterRepo
	artifacts repos.ArtifactRepo
}

func New(baseLog *logger.Logger, loader *pipelines.NarrativeLoader, chapters repos.ChapterRepo, artifacts repos.ArtifactRepo) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", pipelines.KindLiveNovelBuild),
		loader:    loader,
		chapters:  chapters,
		artifacts: artifacts,
	}
}

func (p *Pipeline) Type() string { return pipelines.KindLiveNovelBuild }

func (p *Pipeline) Spec() jobrt.Spec { return jobrt.Spec{Timeout: pipelines.GeneratorTimeout} }
