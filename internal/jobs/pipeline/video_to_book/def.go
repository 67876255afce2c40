package video_to_book

import (
	"context"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/ingestion/analyzers"
	"github.com/yungbote/qalam-backend/internal/jobs/orchestrator"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/knowledge/correlator"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// Pipeline is the coordinator: it submits one child task per stage and waits on each.
type Pipeline struct {
	log       *logger.Logger
	sources   repos.SourceRepo
	artifacts repos.ArtifactRepo
	engine    *orchestrator.Engine
}

func New(baseLog *logger.Logger, sources repos.SourceRepo, artifacts repos.ArtifactRepo, children orchestrator.ChildSubmitter) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", pipelines.KindVideoToBook),
		sources:   sources,
		artifacts: artifacts,
		engine:    orchestrator.NewEngine(children),
	}
}

func (p *Pipeline) Type() string { return pipelines.KindVideoToBook }

// The coordinator yields between polls, so each run is short; the budget covers one tick.
func (p *Pipeline) Spec() jobrt.Spec { return jobrt.Spec{Timeout: pipelines.CoordinatorTimeout} }

type Analyzer interface {
	Analyze(ctx context.Context, in analyzers.Input) *analyzers.Result
}

type Extractor interface {
	Extract(ctx context.Context, text string) (*extractor.Extraction, error)
}

// StepDeps is shared by every stage handler.
type StepDeps struct {
	Sources   repos.SourceRepo
	Artifacts repos.ArtifactRepo
	Chapters  repos.ChapterRepo
	Analyzer  Analyzer
	Extractor Extractor
	Text      *generators.TextGenerator
	Loader    *pipelines.NarrativeLoader
	Options   correlator.Options
}

// Step runs one stage of the pipeline as its own task kind.
type Step struct {
	name string
	spec stageSpec
	deps *StepDeps
	log  *logger.Logger
}

func NewStep(baseLog *logger.Logger, name string, deps *StepDeps) *Step {
	spec, ok := stageByName(baseLog, name)
	if !ok {
		spec = stageSpec{Name: name}
	}
	return &Step{
		name: name,
		spec: spec,
		deps: deps,
		log:  baseLog.With("job", name),
	}
}

// NewSteps builds a handler for every configured stage.
func NewSteps(baseLog *logger.Logger, deps *StepDeps) []jobrt.Handler {
	stages := pipelineStages(baseLog)
	out := make([]jobrt.Handler, 0, len(stages))
	for _, s := range stages {
		out = append(out, NewStep(baseLog, s.Name, deps))
	}
	return out
}

func (s *Step) Type() string { return s.name }

func (s *Step) Spec() jobrt.Spec { return jobrt.Spec{Timeout: s.spec.Timeout()} }
