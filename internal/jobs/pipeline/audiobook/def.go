package audiobook

import (
	"github.com/yungbote/qalam-backend/internal/data/repos"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Pipeline struct {
	log       *logger.Logger
	chapters  repos.ChapterRepo
	narrator  *generators.AudiobookGenerator
	artifacts repos.ArtifactRepo
}

func New(baseLog *logger.Logger, chapters repos.ChapterRepo, narrator *generators.AudiobookGenerator, artifacts repos.ArtifactRepo) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", pipelines.KindAudiobook),
		chapters:  chapters,
		narrator:  narrator,
		artifacts: artifacts,
	}
}

func (p *Pipeline) Type() string { return pipelines.KindAudiobook }

// Speech synthesis runs once per chapter segment; a book takes far longer than one generator call.
func (p *Pipeline) Spec() jobrt.Spec { return jobrt.Spec{Timeout: pipelines.AnalysisTimeout} }
