package analyzers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/ingestion/mdchunk"
	"github.com/yungbote/qalam-backend/internal/ingestion/pdfmd"
	"github.com/yungbote/qalam-backend/internal/platform/blobstore"
	"github.com/yungbote/qalam-backend/internal/platform/gcp"
	"github.com/yungbote/qalam-backend/internal/platform/localmedia"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

// Capability adapters. Any of them may be nil; analyzers that need a missing one fail
// with a DependencyMissing result.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, languageHint string) (*gcp.SpeechResult, error)
}

type OCR interface {
	OCR(ctx context.Context, img []byte, languageHint string) (string, error)
}

type VisualAnalyzer interface {
	Analyze(ctx context.Context, img []byte) (*gcp.VisualAnalysis, error)
}

type ShotDetector interface {
	DetectShots(ctx context.Context, content []byte, gcsURI string) ([]gcp.Shot, error)
}

type Transcoder = localmedia.Tools

const defaultKeyFrames = 10

type Input struct {
	SourceID uuid.UUID
	Kind     string
	Path     string
	MimeType string
	Filename string
}

type AudioProperties struct {
	DurationSeconds float64  `json:"duration_seconds"`
	SampleRate      int      `json:"sample_rate"`
	Channels        int      `json:"channels"`
	Loudness        *float64 `json:"loudness,omitempty"` // mean volume, dBFS
}

// Result is the JSON stored as Source.analysis_result. Error is set instead of content
// when analysis failed.
type Result struct {
	SourceID string `json:"source_id"`
	Kind     string `json:"kind"`

	Transcript        string           `json:"transcript,omitempty"`
	Segments          []gcp.Segment    `json:"segments,omitempty"`
	KeyFramesCount    int              `json:"key_frames_count,omitempty"`
	NarrativeAnalysis map[string]any   `json:"narrative_analysis,omitempty"`
	AudioProperties   *AudioProperties `json:"audio_properties,omitempty"`

	Chunks []mdchunk.Chunk `json:"chunks,omitempty"`

	OCRText        string              `json:"ocr_text,omitempty"`
	VisualAnalysis *gcp.VisualAnalysis `json:"visual_analysis,omitempty"`

	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

func (r *Result) Failed() bool { return r != nil && r.Error != "" }

func (r *Result) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// ExtractionChunks is what the knowledge extractor reads: document chunks as-is, and
// transcripts or OCR text as a single chunk with no header path.
func (r *Result) ExtractionChunks() []mdchunk.Chunk {
	if r == nil || r.Failed() {
		return nil
	}
	if len(r.Chunks) > 0 {
		return r.Chunks
	}
	var body string
	switch {
	case strings.TrimSpace(r.Transcript) != "":
		body = r.Transcript
	case strings.TrimSpace(r.OCRText) != "":
		body = r.OCRText
	default:
		return nil
	}
	return []mdchunk.Chunk{{Text: strings.TrimSpace(body), Headers: []string{}, SourceType: r.Kind}}
}

type Registry struct {
	Blobs  blobstore.BlobStore
	Media  Transcoder
	Speech SpeechToText
	OCR    OCR
	Vision VisualAnalyzer
	Shots  ShotDetector
	PDF    pdfmd.Extractor

	LanguageHint string
	KeyFrames    int

	log *logger.Logger
}

func NewRegistry(log *logger.Logger, blobs blobstore.BlobStore) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		Blobs:        blobs,
		PDF:          pdfmd.NewLayoutExtractor(log),
		LanguageHint: "ar",
		KeyFrames:    defaultKeyFrames,
		log:          log.With("component", "MediaAnalyzers"),
	}
}

/*
Analyze dispatches on the source kind and never panics or returns an error: every failure,
including a recovered panic, becomes Result.Error with its error kind. The caller marks the
source as errored and moves on to the next source.
*/
func (r *Registry) Analyze(ctx context.Context, in Input) (res *Result) {
	started := time.Now()
	res = &Result{SourceID: in.SourceID.String(), Kind: in.Kind}
	log := r.log.With("source_id", in.SourceID.String(), "kind", in.Kind)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("analyzer panic", "panic", rec, "stack", string(debug.Stack()))
			res = &Result{SourceID: in.SourceID.String(), Kind: in.Kind}
			res.fail(fmt.Errorf("analyzer panic: %v", rec))
		}
		res.DurationMS = time.Since(started).Milliseconds()
	}()

	var err error
	switch in.Kind {
	case types.SourceKindVideo:
		err = r.analyzeVideo(ctx, in, res)
	case types.SourceKindAudio:
		err = r.analyzeAudio(ctx, in, res)
	case types.SourceKindPDF:
		err = r.analyzePDF(ctx, in, res)
	case types.SourceKindImage:
		err = r.analyzeImage(ctx, in, res)
	case types.SourceKindText:
		err = r.analyzeText(ctx, in, res)
	default:
		err = fmt.Errorf("%w: %q", apperrors.ErrUnsupportedSourceKind, in.Kind)
	}
	if err != nil {
		log.Warn("source analysis failed", "error", err)
		res.fail(err)
		return res
	}
	log.Debug("source analyzed", "warnings", len(res.Warnings))
	return res
}

func (r *Result) fail(err error) {
	r.Error = logger.RedactMessage(err.Error())
	r.ErrorKind = apperrors.KindOf(err)
}

// Fail records a failure that happened after analysis, e.g. during knowledge extraction.
func (r *Result) Fail(err error) {
	if r == nil || err == nil {
		return
	}
	r.fail(err)
}

func missing(what string) error {
	return apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("%s is not configured", what))
}

func (r *Registry) load(ctx context.Context, in Input) ([]byte, error) {
	if r.Blobs == nil {
		return nil, missing("blob store")
	}
	data, err := r.Blobs.Get(ctx, in.Path)
	if err != nil {
		return nil, fmt.Errorf("read source bytes: %w", err)
	}
	if len(data) == 0 {
		return nil, apperrors.ErrEmptySource
	}
	return data, nil
}

// stage writes data into a fresh work directory so ffmpeg can read it.
func (r *Registry) stage(in Input, data []byte) (string, string, func(), error) {
	var (
		dir     string
		cleanup func()
		err     error
	)
	if r.Media != nil {
		dir, cleanup, err = r.Media.WorkDir("source-" + in.SourceID.String())
	} else {
		dir, err = os.MkdirTemp("", "qalam-source-")
		cleanup = func() { _ = os.RemoveAll(dir) }
	}
	if err != nil {
		return "", "", func() {}, err
	}
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if ext == "" {
		ext = filepath.Ext(in.Path)
	}
	p := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		cleanup()
		return "", "", func() {}, fmt.Errorf("stage source: %w", err)
	}
	return dir, p, cleanup, nil
}
