package pipelines

import "time"

// Task kinds handled by the packages under internal/jobs/pipeline.
const (
	KindAnalyzeSources = "analyze_sources"
	KindRebuildUKB     = "rebuild_ukb"
	KindGenerateScene  = "generate_scene"
	KindPlanSeries     = "plan_series"
	KindLiveNovelBuild = "live_novel_build"
	KindMovieTreatment = "movie_treatment"
	KindInteractiveMap = "interactive_map"
	KindAudiobook      = "audiobook"
	KindVideoToBook    = "video_to_book"
)

// Video-to-book steps. Each one runs as a child task of KindVideoToBook.
const (
	KindTranscriptExtraction  = "transcript_extraction"
	KindTextCleanup           = "text_cleanup"
	KindArchitecturalAnalysis = "architectural_analysis"
	KindCreativeDevelopment   = "creative_development"
	KindFinalNarrative        = "final_narrative"
)

// Soft timeouts. TASK_TIMEOUT_<KIND>_SECONDS overrides them per deployment.
const (
	GeneratorTimeout   = 5 * time.Minute
	AnalysisTimeout    = 30 * time.Minute
	CoordinatorTimeout = 15 * time.Minute
)
