package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/ingestion/analyzers"
	"github.com/yungbote/qalam-backend/internal/ingestion/pdfmd"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/analyze_sources"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/audiobook"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/generate_scene"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/interactive_map"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/live_novel_build"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/movie_treatment"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/plan_series"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/rebuild_ukb"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/video_to_book"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/jobs/worker"
	"github.com/yungbote/qalam-backend/internal/knowledge/correlator"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/narrative/preferences"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/services"
	"github.com/yungbote/qalam-backend/internal/temporalx"
	"github.com/yungbote/qalam-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Tasks     services.TaskService
	Sources   services.SourceService
	Projects  services.ProjectService
	Narrative services.NarrativeService
	Writing   services.WritingService

	// Job infra
	Registry       *jobrt.Registry
	Worker         *worker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, set *repos.Set, clients *Clients) (Services, error) {
	log.Info("Wiring services...")

	registry := jobrt.NewRegistry()

	var dispatcher services.TaskDispatcher
	if clients.Temporal != nil {
		dispatcher = &temporalx.Dispatcher{Client: clients.Temporal, TaskQueue: cfg.Temporal.TaskQueue}
	}
	taskService := services.NewTaskService(db, log, set.Tasks, clients.Progress, registry, dispatcher)

	if err := registerPipelines(log, cfg, set, clients, taskService, registry); err != nil {
		return Services{}, err
	}

	out := Services{
		Tasks:     taskService,
		Sources:   services.NewSourceService(db, log, clients.Blobs, set.Sources, set.Projects),
		Projects:  services.NewProjectService(db, log, set.Projects),
		Narrative: services.NewNarrativeService(db, log, taskService, set),
		Writing:   services.NewWritingService(db, log, set.Projects, set.Sessions, set.Edits),
		Registry:  registry,
	}

	if cfg.RunWorker {
		w := worker.NewWorker(db, log, set.Tasks, clients.Progress, registry, cfg.Worker)
		if clients.Temporal != nil {
			runner, err := temporalworker.NewRunner(log, cfg.Temporal, clients.Temporal, set.Tasks, clients.Progress, w.Executor())
			if err != nil {
				return Services{}, fmt.Errorf("init temporal worker: %w", err)
			}
			out.TemporalWorker = runner
		} else {
			out.Worker = w
		}
	}
	return out, nil
}

// registerPipelines builds every task handler and registers it by kind.
func registerPipelines(log *logger.Logger, cfg Config, set *repos.Set, clients *Clients, tasks services.TaskService, registry *jobrt.Registry) error {
	assembler, err := prompts.NewAssembler()
	if err != nil {
		return fmt.Errorf("load prompt templates: %w", err)
	}
	learner := preferences.NewLearner(log, set.Edits)
	loader := pipelines.NewNarrativeLoader(log, set.Projects, set.UKB, learner)

	// Source analysis
	media := analyzers.NewRegistry(log, clients.Blobs)
	media.Media = clients.Media
	media.Speech = clients.Speech
	media.OCR = clients.Vision
	media.Vision = clients.Vision
	media.Shots = clients.Video
	media.LanguageHint = cfg.LanguageHint
	if clients.Document != nil {
		media.PDF = pdfmd.NewFallbackExtractor(log, clients.Document)
	}
	kb := extractor.New(log, clients.OpenAI)

	ukbBuilder := correlator.NewBuilder(log, set.Sources, set.UKB, clients.Neo4j)
	ukbBuilder.Options = cfg.Correlation

	// Generators
	text := generators.NewTextGenerator(log, clients.OpenAI, assembler)
	planner := generators.NewEpisodePlanner(log, clients.OpenAI, assembler)
	treatment := generators.NewTreatmentGenerator(log, clients.OpenAI, assembler)
	mapBuilder := generators.NewMapBuilder(log, clients.Geocoder)
	narrator := generators.NewAudiobookGenerator(log, clients.OpenAI, clients.Blobs)

	handlers := []jobrt.Handler{
		analyze_sources.New(log, set.Sources, set.Projects, media, kb, tasks),
		rebuild_ukb.New(log, ukbBuilder, set.Projects),
		generate_scene.New(log, loader, text, set.Artifacts),
		plan_series.New(log, loader, planner, set.SeriesOutline),
		live_novel_build.New(log, loader, set.Chapters, set.Artifacts),
		movie_treatment.New(log, loader, treatment, set.Artifacts),
		interactive_map.New(log, set.Entities, mapBuilder, clients.Blobs, set.Artifacts),
		audiobook.New(log, set.Chapters, narrator, set.Artifacts),
		video_to_book.New(log, set.Sources, set.Artifacts, tasks),
	}
	handlers = append(handlers, video_to_book.NewSteps(log, &video_to_book.StepDeps{
		Sources:   set.Sources,
		Artifacts: set.Artifacts,
		Chapters:  set.Chapters,
		Analyzer:  media,
		Extractor: kb,
		Text:      text,
		Loader:    loader,
		Options:   cfg.Correlation,
	})...)

	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return fmt.Errorf("register %s: %w", h.Type(), err)
		}
	}
	log.Info("Task handlers registered", "kinds", registry.Kinds())
	return nil
}
