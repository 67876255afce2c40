package analyze_sources

import (
	"context"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/ingestion/analyzers"
	"github.com/yungbote/qalam-backend/internal/ingestion/mdchunk"
	"github.com/yungbote/qalam-backend/internal/jobs/orchestrator"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// Analyzer is satisfied by *analyzers.Registry.
type Analyzer interface {
	Analyze(ctx context.Context, in analyzers.Input) *analyzers.Result
}

// Extractor is satisfied by *extractor.Extractor.
type Extractor interface {
	ExtractChunks(ctx context.Context, chunks []mdchunk.Chunk) (*extractor.Extraction, error)
}

type Pipeline struct {
	log       *logger.Logger
	sources   repos.SourceRepo
	projects  repos.ProjectRepo
	analyzer  Analyzer
	extractor Extractor
	engine    *orchestrator.Engine

	// Concurrency bounds how many sources are analyzed at once.
	Concurrency int
}

func New(
	baseLog *logger.Logger,
	sources repos.SourceRepo,
	projects repos.ProjectRepo,
	analyzer Analyzer,
	extractor Extractor,
	children orchestrator.ChildSubmitter,
) *Pipeline {
	return &Pipeline{
		log:         baseLog.With("job", pipelines.KindAnalyzeSources),
		sources:     sources,
		projects:    projects,
		analyzer:    analyzer,
		extractor:   extractor,
		engine:      orchestrator.NewEngine(children),
		Concurrency: envutil.Int("ANALYZE_CONCURRENCY", 2),
	}
}

func (p *Pipeline) Type() string { return pipelines.KindAnalyzeSources }

func (p *Pipeline) Spec() jobrt.Spec { return jobrt.Spec{Timeout: pipelines.AnalysisTimeout} }
