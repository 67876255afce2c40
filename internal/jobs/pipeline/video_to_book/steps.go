package video_to_book

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/ingestion/analyzers"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/knowledge/correlator"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

// Pieces are sized so one cleanup or narrative call stays well inside the model's context.
const maxPieceRunes = 8000

type stepArgs struct {
	RunKey string `json:"run_key"`
}

// TranscriptSource is one source's contribution to the transcript artifact.
type TranscriptSource struct {
	SourceID string `json:"source_id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
}

type textPayload struct {
	Text string `json:"text"`
}

type transcriptPayload struct {
	Sources []TranscriptSource `json:"sources"`
	Text    string             `json:"text"`
}

type DraftChapter struct {
	ID       string `json:"id,omitempty"`
	Position int    `json:"position"`
	Title    string `json:"title"`
	Content  string `json:"-"`
}

type draftPayload struct {
	Chapters []DraftChapter `json:"chapters"`
}

func (s *Step) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	projectID, ok := pipelines.ProjectArg(jc)
	if !ok {
		return nil
	}
	var in stepArgs
	if err := jc.DecodeKwargs(&in); err != nil {
		jc.Fail("validate", err)
		return nil
	}
	if strings.TrimSpace(in.RunKey) == "" {
		jc.Fail("validate", apperrors.Wrap(apperrors.ErrInvalidArgument, fmt.Errorf("missing run_key")))
		return nil
	}
	if s.deps == nil || s.deps.Artifacts == nil {
		jc.Fail("validate", apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("%s is not configured", s.name)))
		return nil
	}
	stageKey := StageKey(in.RunKey, s.name)

	// A redelivered step whose artifact landed already has nothing left to do.
	if a, err := s.deps.Artifacts.FindByStage(dbctx.Context{Ctx: jc.Ctx}, projectID, stageKey); err != nil {
		jc.Fail("validate", err)
		return nil
	} else if a != nil {
		jc.Succeed("done", map[string]any{"artifact_id": a.ID.String(), "reused": true})
		return nil
	}

	var (
		payload any
		err     error
		extra   map[string]any
	)
	switch s.name {
	case pipelines.KindTranscriptExtraction:
		payload, err = s.transcripts(jc, projectID)
	case pipelines.KindTextCleanup:
		payload, err = s.cleanup(jc, projectID, in.RunKey)
	case pipelines.KindArchitecturalAnalysis:
		payload, err = s.analysis(jc, projectID, in.RunKey)
	case pipelines.KindCreativeDevelopment:
		payload, err = s.styleNotes(jc, projectID, in.RunKey)
	case pipelines.KindFinalNarrative:
		var art *types.Artifact
		art, err = s.narrative(jc, projectID, in.RunKey, stageKey)
		if err == nil {
			extra = map[string]any{"artifact_id": art.ID.String()}
			var d draftPayload
			_ = json.Unmarshal(art.Payload, &d)
			extra["chapters"] = len(d.Chapters)
		}
	default:
		err = fmt.Errorf("%w: %q", apperrors.ErrUnknownKind, s.name)
	}
	if err != nil {
		jc.Fail(s.name, err)
		return nil
	}

	if extra == nil {
		if err := jc.Report("persist", 95, "Saving "+s.name); err != nil {
			return err
		}
		art, err := pipelines.SaveArtifact(jc, s.deps.Artifacts, projectID, s.spec.Artifact, payload, "", stageKey)
		if err != nil {
			jc.Fail("persist", err)
			return nil
		}
		extra = map[string]any{"artifact_id": art.ID.String()}
	}
	jc.Succeed("done", extra)
	return nil
}

// transcripts collects text from every usable source. Sources analyzed earlier are read from
// their stored result; the rest go through the analyzers without touching source status.
func (s *Step) transcripts(jc *jobrt.Context, projectID uuid.UUID) (*transcriptPayload, error) {
	if s.deps.Sources == nil {
		return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("source repo not configured"))
	}
	srcs, err := s.deps.Sources.ListByProject(dbctx.Context{Ctx: jc.Ctx}, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var usable []*types.Source
	for _, src := range srcs {
		if src.Status != types.SourceError {
			usable = append(usable, src)
		}
	}
	out := &transcriptPayload{Sources: make([]TranscriptSource, 0, len(usable))}
	var texts []string
	for i, src := range usable {
		if err := jc.Report("transcribe", 5+85*i/len(usable), "Reading "+src.DisplayName); err != nil {
			return nil, err
		}
		res := storedResult(src)
		if res == nil {
			if s.deps.Analyzer == nil {
				return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("media analyzers not configured"))
			}
			res = s.deps.Analyzer.Analyze(jc.Ctx, analyzers.Input{
				SourceID: src.ID,
				Kind:     src.Kind,
				Path:     src.StoragePath,
				MimeType: src.MimeType,
				Filename: src.DisplayName,
			})
			if err := jc.Ctx.Err(); err != nil {
				return nil, err
			}
		}
		ts := TranscriptSource{SourceID: src.ID.String(), Kind: src.Kind, Name: src.DisplayName}
		if res.Failed() {
			ts.Error = res.Error
			s.log.Warn("source skipped", "source_id", src.ID.String(), "error", res.Error)
		} else {
			ts.Text = strings.TrimSpace(extractor.RenderChunks(res.ExtractionChunks()))
			if ts.Text != "" {
				texts = append(texts, ts.Text)
			}
		}
		out.Sources = append(out.Sources, ts)
	}
	if len(texts) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrEmptySource, fmt.Errorf("no transcript text could be extracted"))
	}
	out.Text = strings.Join(texts, "\n\n")
	return out, nil
}

func storedResult(src *types.Source) *analyzers.Result {
	if src.Status != types.SourceAnalyzed || len(src.AnalysisResult) == 0 {
		return nil
	}
	var res analyzers.Result
	if err := json.Unmarshal(src.AnalysisResult, &res); err != nil {
		return nil
	}
	return &res
}

func (s *Step) cleanup(jc *jobrt.Context, projectID uuid.UUID, runKey string) (*textPayload, error) {
	var tr transcriptPayload
	if err := s.load(jc, projectID, runKey, pipelines.KindTranscriptExtraction, &tr); err != nil {
		return nil, err
	}
	nar, err := s.narrativeContext(jc, projectID)
	if err != nil {
		return nil, err
	}
	pieces := SplitPieces(tr.Text, maxPieceRunes)
	cleaned := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		if err := jc.Report("cleanup", 5+85*i/len(pieces), fmt.Sprintf("Cleaning part %d of %d", i+1, len(pieces))); err != nil {
			return nil, err
		}
		out, err := s.generate(jc, prompts.TargetTextCleanup, prompts.Request{Material: piece}, nil, nar)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, out)
	}
	return &textPayload{Text: strings.Join(cleaned, "\n\n")}, nil
}

func (s *Step) analysis(jc *jobrt.Context, projectID uuid.UUID, runKey string) (map[string]any, error) {
	var clean textPayload
	if err := s.load(jc, projectID, runKey, pipelines.KindTextCleanup, &clean); err != nil {
		return nil, err
	}
	if s.deps.Extractor == nil {
		return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("knowledge extractor not configured"))
	}
	if err := jc.Report("extract", 20, "Extracting characters, places and events"); err != nil {
		return nil, err
	}
	ex, err := s.deps.Extractor.Extract(jc.Ctx, clean.Text)
	if err != nil {
		return nil, err
	}
	return ex.ToMap()
}

func (s *Step) styleNotes(jc *jobrt.Context, projectID uuid.UUID, runKey string) (*textPayload, error) {
	var clean textPayload
	if err := s.load(jc, projectID, runKey, pipelines.KindTextCleanup, &clean); err != nil {
		return nil, err
	}
	nar, err := s.narrativeContext(jc, projectID)
	if err != nil {
		return nil, err
	}
	snap, err := s.storySnapshot(jc, projectID, runKey, nar)
	if err != nil {
		return nil, err
	}
	if err := jc.Report("style", 30, "Drafting style notes"); err != nil {
		return nil, err
	}
	material := SplitPieces(clean.Text, maxPieceRunes)
	req := prompts.Request{}
	if len(material) > 0 {
		req.Material = material[0]
	}
	notes, err := s.generate(jc, prompts.TargetStyleNotes, req, snap, nar)
	if err != nil {
		return nil, err
	}
	return &textPayload{Text: notes}, nil
}

/*
narrative writes the book. Each cleaned piece becomes one or more chapters, split on the
"## title" lines the model is asked to emit. Chapters and the draft artifact are committed
together so a retried step never appends the same chapters twice.
*/
func (s *Step) narrative(jc *jobrt.Context, projectID uuid.UUID, runKey, stageKey string) (*types.Artifact, error) {
	if s.deps.Chapters == nil {
		return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("chapter repo not configured"))
	}
	var clean, notes textPayload
	if err := s.load(jc, projectID, runKey, pipelines.KindTextCleanup, &clean); err != nil {
		return nil, err
	}
	if err := s.load(jc, projectID, runKey, pipelines.KindCreativeDevelopment, &notes); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	nar, err := s.narrativeContext(jc, projectID)
	if err != nil {
		return nil, err
	}
	snap, err := s.storySnapshot(jc, projectID, runKey, nar)
	if err != nil {
		return nil, err
	}

	pieces := SplitPieces(clean.Text, maxPieceRunes)
	var drafts []DraftChapter
	for i, piece := range pieces {
		if err := jc.Report("write", 5+85*i/len(pieces), fmt.Sprintf("Writing part %d of %d", i+1, len(pieces))); err != nil {
			return nil, err
		}
		req := prompts.Request{Material: piece, StyleNotes: notes.Text}
		if nar.Project != nil {
			req.TitleHint = nar.Project.Title
		}
		out, err := s.generate(jc, prompts.TargetFinalNarrative, req, snap, nar)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, ParseChapters(out, len(drafts)+1)...)
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: narrative produced no chapters", apperrors.ErrTransientLLM)
	}

	if err := jc.Report("persist", 95, "Saving chapters"); err != nil {
		return nil, err
	}
	var art *types.Artifact
	err = jc.DB.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		next, err := s.deps.Chapters.NextPosition(dbc, projectID)
		if err != nil {
			return err
		}
		rows := make([]*types.Chapter, 0, len(drafts))
		for i := range drafts {
			drafts[i].Position = next + i
			rows = append(rows, &types.Chapter{
				ProjectID: projectID,
				Position:  drafts[i].Position,
				Title:     drafts[i].Title,
				Content:   drafts[i].Content,
			})
		}
		created, err := s.deps.Chapters.Create(dbc, rows)
		if err != nil {
			return err
		}
		for i := range created {
			drafts[i].ID = created[i].ID.String()
		}
		body, err := json.Marshal(draftPayload{Chapters: drafts})
		if err != nil {
			return err
		}
		taskID := jc.Task.ID
		art, err = s.deps.Artifacts.Create(dbc, &types.Artifact{
			ProjectID:        projectID,
			Kind:             s.spec.Artifact,
			Payload:          datatypes.JSON(body),
			ProducedByTaskID: &taskID,
			StageKey:         stageKey,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("save chapters: %w", err)
	}
	s.log.Info("narrative written", "project_id", projectID.String(), "chapters", len(drafts))
	return art, nil
}

func (s *Step) generate(jc *jobrt.Context, target prompts.Target, req prompts.Request, snap *types.UKBSnapshot, nar *pipelines.Narrative) (string, error) {
	if s.deps.Text == nil {
		return "", apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("text generator not configured"))
	}
	return s.deps.Text.Generate(jc.Ctx, target, req, snap, nar.Prefs)
}

func (s *Step) narrativeContext(jc *jobrt.Context, projectID uuid.UUID) (*pipelines.Narrative, error) {
	if s.deps.Loader == nil {
		return &pipelines.Narrative{}, nil
	}
	return s.deps.Loader.Load(jc.Ctx, projectID)
}

// storySnapshot correlates this run's extraction into an in-memory UKB. When the extraction
// found nothing the project's stored UKB is used instead.
func (s *Step) storySnapshot(jc *jobrt.Context, projectID uuid.UUID, runKey string, nar *pipelines.Narrative) (*types.UKBSnapshot, error) {
	var raw map[string]any
	if err := s.load(jc, projectID, runKey, pipelines.KindArchitecturalAnalysis, &raw); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nar.Snapshot, nil
		}
		return nil, err
	}
	ex := extractor.FromMap(raw)
	if ex.IsEmpty() {
		return nar.Snapshot, nil
	}
	opts := s.deps.Options
	if opts.ConfidenceDivisor <= 0 {
		opts = correlator.DefaultOptions()
	}
	res := correlator.Correlate(projectID, []correlator.SourceExtraction{{SourceID: runKey, Extraction: ex}}, opts)
	return res.Snapshot(projectID), nil
}

// load decodes the payload of an earlier stage's artifact. A missing artifact is ErrNotFound.
func (s *Step) load(jc *jobrt.Context, projectID uuid.UUID, runKey, stage string, dst any) error {
	a, err := s.deps.Artifacts.FindByStage(dbctx.Context{Ctx: jc.Ctx}, projectID, StageKey(runKey, stage))
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("%w: %s output for run %s", apperrors.ErrNotFound, stage, runKey)
	}
	if err := json.Unmarshal(a.Payload, dst); err != nil {
		return fmt.Errorf("decode %s output: %w", stage, err)
	}
	return nil
}

// SplitPieces packs paragraphs into pieces of at most max runes. A paragraph longer than max
// is cut on rune boundaries.
func SplitPieces(text string, max int) []string {
	var out []string
	var cur strings.Builder
	curRunes := 0
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			out = append(out, t)
		}
		cur.Reset()
		curRunes = 0
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)
		if n > max {
			flush()
			r := []rune(para)
			for len(r) > 0 {
				k := max
				if k > len(r) {
					k = len(r)
				}
				out = append(out, string(r[:k]))
				r = r[k:]
			}
			continue
		}
		if curRunes > 0 && curRunes+2+n > max {
			flush()
		}
		if curRunes > 0 {
			cur.WriteString("\n\n")
			curRunes += 2
		}
		cur.WriteString(para)
		curRunes += n
	}
	flush()
	return out
}

// ParseChapters splits model output on "##" heading lines. Text before the first heading,
// or output without headings, becomes a chapter titled by its number.
func ParseChapters(text string, firstNumber int) []DraftChapter {
	var out []DraftChapter
	title := ""
	var body []string
	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = nil
		if content == "" {
			return
		}
		t := title
		if t == "" {
			t = fmt.Sprintf("Chapter %d", firstNumber+len(out))
		}
		out = append(out, DraftChapter{Title: t, Content: content})
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "##") && !strings.HasPrefix(trimmed, "###") {
			flush()
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "##"))
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}
