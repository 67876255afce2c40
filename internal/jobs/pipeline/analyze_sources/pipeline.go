package analyze_sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/ingestion/analyzers"
	"github.com/yungbote/qalam-backend/internal/jobs/orchestrator"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

const (
	stageAnalyze = "analyze"
	stageRebuild = "rebuild_ukb"

	analyzeStartPct = 5
	analyzeEndPct   = 75
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	projectID, ok := pipelines.ProjectArg(jc)
	if !ok {
		return nil
	}
	if p.analyzer == nil || p.extractor == nil {
		jc.Fail("validate", apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("source analysis is not configured")))
		return nil
	}

	stages := []orchestrator.Stage{
		{
			Name:     stageAnalyze,
			Mode:     orchestrator.ModeInline,
			StartPct: analyzeStartPct,
			EndPct:   analyzeEndPct,
			StartMsg: "Analyzing sources",
			DoneMsg:  "Sources analyzed",
			Run: func(ctx *jobrt.Context, st *orchestrator.State) (map[string]any, error) {
				return p.analyzeAll(ctx, projectID)
			},
		},
		{
			Name:      stageRebuild,
			Mode:      orchestrator.ModeChild,
			StartPct:  analyzeEndPct,
			EndPct:    100,
			StartMsg:  "Building knowledge base",
			DoneMsg:   "Knowledge base ready",
			ChildKind: pipelines.KindRebuildUKB,
			ChildKwargs: func(ctx *jobrt.Context, st *orchestrator.State) (map[string]any, error) {
				return map[string]any{
					"project_id": projectID.String(),
					"dedupe_key": projectID.String(),
				}, nil
			},
		},
	}
	return p.engine.Run(jc, stages, map[string]any{"project_id": projectID.String()})
}

/*
analyzeAll runs every not-yet-analyzed source through its analyzer and the knowledge
extractor, at most Concurrency at a time. A failing source is marked error and the others
continue. The stage fails only when cancelled or when no source could be analyzed at all.
*/
func (p *Pipeline) analyzeAll(jc *jobrt.Context, projectID uuid.UUID) (map[string]any, error) {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	all, err := p.sources.ListByProject(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var pending []*types.Source
	alreadyDone := 0
	for _, s := range all {
		if s.Status == types.SourceAnalyzed {
			alreadyDone++
			continue
		}
		pending = append(pending, s)
	}
	total := len(all)

	var (
		analyzed atomic.Int32
		done     atomic.Int32
		mu       sync.Mutex
		failed   = map[string]string{}
	)
	done.Store(int32(alreadyDone))

	limit := p.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(jc.Ctx)
	g.SetLimit(limit)
	for _, src := range pending {
		src := src
		g.Go(func() error {
			res, err := p.analyzeOne(gctx, src)
			if err != nil {
				return err
			}
			if res.Failed() {
				mu.Lock()
				failed[src.ID.String()] = res.ErrorKind
				mu.Unlock()
			} else {
				analyzed.Add(1)
			}
			n := int(done.Add(1))
			if p.projects != nil {
				if perr := p.projects.SetAnalysisProgress(dbctx.Context{Ctx: gctx}, projectID, float64(n)/float64(total)); perr != nil {
					p.log.Warn("analysis progress update failed", "project_id", projectID.String(), "error", perr)
				}
			}
			pct := analyzeStartPct + (analyzeEndPct-analyzeStartPct)*n/total
			return jc.Report(stageAnalyze, pct, fmt.Sprintf("Analyzed %d of %d sources", n, total))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.log.Info("sources analyzed",
		"project_id", projectID.String(),
		"total", total,
		"analyzed", analyzed.Load(),
		"failed", len(failed),
		"skipped", alreadyDone,
	)
	if analyzed.Load() == 0 && alreadyDone == 0 && len(failed) > 0 {
		return nil, apperrors.Wrap(apperrors.ErrExtractionFailed, fmt.Errorf("all %d sources failed analysis", len(failed)))
	}
	return map[string]any{
		"total":    total,
		"analyzed": int(analyzed.Load()) + alreadyDone,
		"failed":   failed,
	}, nil
}

// analyzeOne returns an error only for cancellation; every other failure is recorded on the
// source and in the returned result.
func (p *Pipeline) analyzeOne(ctx context.Context, src *types.Source) (*analyzers.Result, error) {
	dbc := dbctx.Context{Ctx: ctx}
	log := p.log.With("source_id", src.ID.String(), "kind", src.Kind)
	if err := p.sources.MarkProcessing(dbc, src.ID); err != nil {
		return nil, fmt.Errorf("mark source processing: %w", err)
	}

	res := p.analyzer.Analyze(ctx, analyzers.Input{
		SourceID: src.ID,
		Kind:     src.Kind,
		Path:     src.StoragePath,
		MimeType: src.MimeType,
		Filename: src.DisplayName,
	})
	if ctx.Err() != nil {
		return nil, p.interrupted(ctx, src)
	}

	if !res.Failed() {
		ex, err := p.extractor.ExtractChunks(ctx, res.ExtractionChunks())
		switch {
		case ctx.Err() != nil:
			return nil, p.interrupted(ctx, src)
		case err != nil:
			log.Warn("knowledge extraction failed", "error", err, "error_kind", apperrors.KindOf(err))
			res.Fail(err)
		default:
			m, merr := ex.ToMap()
			if merr != nil {
				log.Warn("knowledge extraction unusable", "error", merr)
				res.Fail(merr)
				break
			}
			res.NarrativeAnalysis = m
		}
	}

	body, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode analysis result: %w", err)
	}
	// The rows must be written even if the task is cancelled right now.
	wdbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	if res.Failed() {
		if err := p.sources.MarkError(wdbc, src.ID, datatypes.JSON(body)); err != nil {
			return nil, fmt.Errorf("mark source error: %w", err)
		}
		return res, nil
	}
	if err := p.sources.MarkAnalyzed(wdbc, src.ID, datatypes.JSON(body)); err != nil {
		return nil, fmt.Errorf("mark source analyzed: %w", err)
	}
	return res, nil
}

// interrupted puts a source back to error so the next run retries it, and returns the
// reason the context ended.
func (p *Pipeline) interrupted(ctx context.Context, src *types.Source) error {
	wdbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	if err := p.sources.MarkError(wdbc, src.ID, nil); err != nil {
		p.log.Warn("failed to reset interrupted source", "source_id", src.ID.String(), "error", err)
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}
