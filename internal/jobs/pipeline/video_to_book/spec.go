package video_to_book

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

const pipelineSpecEnv = "VIDEO_TO_BOOK_PIPELINE_YAML"

//go:embed pipeline.yaml
var pipelineSpecFS embed.FS

type stageSpec struct {
	Name           string `yaml:"name"`
	Artifact       string `yaml:"artifact"`
	StartPct       int    `yaml:"start_pct"`
	EndPct         int    `yaml:"end_pct"`
	Message        string `yaml:"message"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (s stageSpec) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return pipelines.GeneratorTimeout
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type pipelineSpec struct {
	Pipeline string      `yaml:"pipeline"`
	Version  int         `yaml:"version"`
	Stages   []stageSpec `yaml:"stages"`
}

// used when the YAML is missing or invalid
var fallbackStages = []stageSpec{
	{Name: pipelines.KindTranscriptExtraction, Artifact: types.ArtifactTranscript, StartPct: 0, EndPct: 25, TimeoutSeconds: 1800},
	{Name: pipelines.KindTextCleanup, Artifact: types.ArtifactCleanText, StartPct: 25, EndPct: 45, TimeoutSeconds: 900},
	{Name: pipelines.KindArchitecturalAnalysis, Artifact: types.ArtifactExtraction, StartPct: 45, EndPct: 60, TimeoutSeconds: 300},
	{Name: pipelines.KindCreativeDevelopment, Artifact: types.ArtifactStyleNotes, StartPct: 60, EndPct: 70, TimeoutSeconds: 300},
	{Name: pipelines.KindFinalNarrative, Artifact: types.ArtifactNarrativeDraft, StartPct: 70, EndPct: 100, TimeoutSeconds: 1800},
}

var (
	specOnce  sync.Once
	specCache []stageSpec
	specErr   error
)

// pipelineStages returns the configured stage list, falling back to the built-in one.
func pipelineStages(log *logger.Logger) []stageSpec {
	specOnce.Do(func() {
		specCache, specErr = loadStages()
	})
	if specErr != nil {
		if log != nil {
			log.Warn("video_to_book: pipeline spec load failed; using fallback", "error", specErr)
		}
		return fallbackStages
	}
	return specCache
}

func stageByName(log *logger.Logger, name string) (stageSpec, bool) {
	for _, s := range pipelineStages(log) {
		if s.Name == name {
			return s, true
		}
	}
	return stageSpec{}, false
}

func loadStages() ([]stageSpec, error) {
	data, err := readSpec()
	if err != nil {
		return nil, err
	}
	return parseStages(data)
}

func readSpec() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(pipelineSpecEnv)); path != "" {
		return os.ReadFile(path)
	}
	return pipelineSpecFS.ReadFile("pipeline.yaml")
}

func parseStages(data []byte) ([]stageSpec, error) {
	var spec pipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Pipeline) != pipelines.KindVideoToBook {
		return nil, fmt.Errorf("unexpected pipeline: %s", spec.Pipeline)
	}
	if len(spec.Stages) == 0 {
		return nil, errors.New("no stages defined")
	}
	known := map[string]bool{}
	for _, s := range fallbackStages {
		known[s.Name] = true
	}
	seen := map[string]bool{}
	lastEnd := 0
	for _, s := range spec.Stages {
		if !known[s.Name] {
			return nil, fmt.Errorf("unknown stage: %q", s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate stage name: %s", s.Name)
		}
		seen[s.Name] = true
		if strings.TrimSpace(s.Artifact) == "" {
			return nil, fmt.Errorf("stage %s: artifact kind is required", s.Name)
		}
		if s.StartPct < lastEnd || s.EndPct < s.StartPct || s.EndPct > 100 {
			return nil, fmt.Errorf("stage %s: progress band %d..%d out of order", s.Name, s.StartPct, s.EndPct)
		}
		lastEnd = s.EndPct
	}
	return spec.Stages, nil
}

// StageKey names the artifact a stage leaves behind for one run of the pipeline.
func StageKey(runKey, stage string) string {
	return pipelines.KindVideoToBook + "/" + runKey + "/" + stage
}
