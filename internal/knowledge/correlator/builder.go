package correlator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/graph"
	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/knowledge/extractor"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/platform/neo4jdb"
)

// Builder rebuilds a project's UKB from the extractions stored on its analyzed sources.
type Builder struct {
	Sources repos.SourceRepo
	UKB     repos.UKBRepo
	// Graph is optional; when set the committed generation is mirrored to Neo4j.
	Graph   *neo4jdb.Client
	Options Options

	log *logger.Logger
}

func NewBuilder(log *logger.Logger, sources repos.SourceRepo, ukb repos.UKBRepo, graphClient *neo4jdb.Client) *Builder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Builder{
		Sources: sources,
		UKB:     ukb,
		Graph:   graphClient,
		Options: OptionsFromEnv(),
		log:     log.With("component", "UKBBuilder"),
	}
}

type storedAnalysis struct {
	NarrativeAnalysis map[string]any `json:"narrative_analysis"`
	Error             string         `json:"error"`
}

// Extractions loads the stored extraction of every analyzed source, in upload order.
// Sources that failed or carry no extraction are skipped.
func (b *Builder) Extractions(ctx context.Context, projectID uuid.UUID) ([]SourceExtraction, error) {
	srcs, err := b.Sources.ListByProject(dbctx.Context{Ctx: ctx}, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	out := make([]SourceExtraction, 0, len(srcs))
	for i, s := range srcs {
		if s.Status != types.SourceAnalyzed || len(s.AnalysisResult) == 0 {
			continue
		}
		var stored storedAnalysis
		if err := json.Unmarshal(s.AnalysisResult, &stored); err != nil {
			b.log.Warn("skipping source with unreadable analysis result", "source_id", s.ID.String(), "error", err)
			continue
		}
		if stored.Error != "" || stored.NarrativeAnalysis == nil {
			continue
		}
		out = append(out, SourceExtraction{
			SourceID:   s.ID.String(),
			Order:      i,
			Extraction: extractor.FromMap(stored.NarrativeAnalysis),
		})
	}
	return out, nil
}

/*
Rebuild moves the UKB to building, correlates every stored extraction and swaps the result in
one transaction. Readers keep seeing the previous generation until the swap commits. On failure
the UKB goes back to its previous state.
*/
func (b *Builder) Rebuild(ctx context.Context, projectID uuid.UUID, taskID *uuid.UUID) (*Result, int, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if err := b.UKB.MarkBuilding(dbc, projectID); err != nil {
		return nil, 0, fmt.Errorf("mark ukb building: %w", err)
	}
	abort := func(cause error) (*Result, int, error) {
		// The caller's context may already be cancelled; the rollback must still run.
		if err := b.UKB.AbortBuild(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, projectID); err != nil {
			b.log.Warn("ukb abort failed", "project_id", projectID.String(), "error", err)
		}
		return nil, 0, cause
	}

	sources, err := b.Extractions(ctx, projectID)
	if err != nil {
		return abort(err)
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	res := Correlate(projectID, sources, b.Options)
	gen, err := b.UKB.Swap(dbc, projectID, res.Content(taskID))
	if err != nil {
		return abort(fmt.Errorf("swap ukb: %w", err))
	}
	b.log.Info("ukb rebuilt",
		"project_id", projectID.String(),
		"generation", gen,
		"sources", len(sources),
		"entities", len(res.Entities),
		"cross_references", len(res.CrossReferences),
		"confidence", res.Confidence.Overall,
	)

	if b.Graph != nil {
		if err := graph.MirrorUKB(ctx, b.Graph, b.log, projectID, gen, res.Entities, res.CrossReferences); err != nil {
			b.log.Warn("ukb graph mirror failed", "project_id", projectID.String(), "generation", gen, "error", err)
		}
	}
	return res, gen, nil
}
