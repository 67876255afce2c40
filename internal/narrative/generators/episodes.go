package generators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/narrative/preferences"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

const MaxEpisodes = 50

type SeriesRequest struct {
	NumEpisodes           int    `json:"numEpisodes"`
	TargetDurationMinutes int    `json:"targetDurationMinutes"`
	TitleHint             string `json:"titleHint,omitempty"`
}

func (r SeriesRequest) Validate() error {
	if r.NumEpisodes < 1 || r.NumEpisodes > MaxEpisodes {
		return fmt.Errorf("%w: numEpisodes must be between 1 and %d, got %d", apperrors.ErrInvalidArgument, MaxEpisodes, r.NumEpisodes)
	}
	if r.TargetDurationMinutes < 0 {
		return fmt.Errorf("%w: targetDurationMinutes must not be negative", apperrors.ErrInvalidArgument)
	}
	return nil
}

type Episode struct {
	Number      int      `json:"number"`
	Title       string   `json:"title"`
	Logline     string   `json:"logline"`
	Cliffhanger string   `json:"cliffhanger"`
	EventIDs    []string `json:"eventIds"`
}

type SeriesPlan struct {
	Title                 string    `json:"title"`
	NumEpisodes           int       `json:"numEpisodes"`
	TargetDurationMinutes int       `json:"targetDurationMinutes"`
	Episodes              []Episode `json:"episodes"`
}

// PartitionEvents splits ids into n contiguous buckets of proportional size. Buckets may be
// empty when there are fewer events than episodes.
func PartitionEvents(ids []string, n int) [][]string {
	if n <= 0 {
		return nil
	}
	out := make([][]string, n)
	total := len(ids)
	for i := 0; i < n; i++ {
		lo, hi := i*total/n, (i+1)*total/n
		out[i] = append([]string{}, ids[lo:hi]...)
	}
	return out
}

type EpisodePlanner struct {
	llm       LLM
	assembler *prompts.Assembler
	log       *logger.Logger
}

func NewEpisodePlanner(log *logger.Logger, llm LLM, assembler *prompts.Assembler) *EpisodePlanner {
	if log == nil {
		log = logger.NewNop()
	}
	return &EpisodePlanner{llm: llm, assembler: assembler, log: log.With("component", "EpisodePlanner")}
}

func episodeSchema() map[string]any {
	str := map[string]any{"type": "string"}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       str,
			"logline":     str,
			"cliffhanger": str,
		},
		"required":             []string{"title", "logline", "cliffhanger"},
		"additionalProperties": false,
	}
}

/*
Plan walks the timeline-ordered events in n buckets and asks for one episode outline per
bucket. onEpisode is called after each episode with (done, total); a non-nil return aborts
the plan with that error, which is how task cancellation reaches the planner.
*/
func (p *EpisodePlanner) Plan(ctx context.Context, req SeriesRequest, snap *types.UKBSnapshot, prefs preferences.Preferences, onEpisode func(done, total int) error) (*SeriesPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if p.llm == nil || p.assembler == nil {
		return nil, fmt.Errorf("%w: episode planner needs an llm and prompt templates", apperrors.ErrDependencyMissing)
	}
	buckets := PartitionEvents(TimelineEventIDs(snap), req.NumEpisodes)
	plan := &SeriesPlan{
		Title:                 strings.TrimSpace(req.TitleHint),
		NumEpisodes:           req.NumEpisodes,
		TargetDurationMinutes: req.TargetDurationMinutes,
		Episodes:              make([]Episode, 0, req.NumEpisodes),
	}
	for i, bucket := range buckets {
		n := i + 1
		pr, err := p.assembler.Assemble(prompts.TargetEpisodePlan, prompts.Request{
			TitleHint: req.TitleHint,
			Episode: prompts.EpisodeBrief{
				Number:        n,
				Of:            req.NumEpisodes,
				TargetMinutes: req.TargetDurationMinutes,
				EventIDs:      bucket,
			},
		}, snap, prefs)
		if err != nil {
			return nil, err
		}
		obj, err := p.llm.GenerateJSON(ctx, pr.System, pr.User, "episode_outline", episodeSchema())
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", n, err)
		}
		ep := Episode{
			Number:      n,
			Title:       strings.TrimSpace(firstString(obj, "title", "name")),
			Logline:     strings.TrimSpace(firstString(obj, "logline", "summary")),
			Cliffhanger: strings.TrimSpace(firstString(obj, "cliffhanger", "hook")),
			EventIDs:    bucket,
		}
		if ep.Title == "" {
			ep.Title = fmt.Sprintf("Episode %d", n)
		}
		plan.Episodes = append(plan.Episodes, ep)
		if onEpisode != nil {
			if err := onEpisode(n, req.NumEpisodes); err != nil {
				return nil, err
			}
		}
	}
	p.log.Info("series planned", "episodes", len(plan.Episodes))
	return plan, nil
}

// Rows converts the plan into the outline rows and the episode-plan artifact that are
// persisted together.
func (s *SeriesPlan) Rows(projectID uuid.UUID, taskID *uuid.UUID) (*types.SeriesOutline, []*types.EpisodeOutline, *types.Artifact, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, nil, nil, err
	}
	series := &types.SeriesOutline{
		ID:                    uuid.New(),
		ProjectID:             projectID,
		Title:                 s.Title,
		NumEpisodes:           s.NumEpisodes,
		TargetDurationMinutes: s.TargetDurationMinutes,
		ProducedByTaskID:      taskID,
	}
	episodes := make([]*types.EpisodeOutline, 0, len(s.Episodes))
	for _, ep := range s.Episodes {
		episodes = append(episodes, &types.EpisodeOutline{
			ID:              uuid.New(),
			SeriesOutlineID: series.ID,
			ProjectID:       projectID,
			Number:          ep.Number,
			Title:           ep.Title,
			Logline:         ep.Logline,
			Cliffhanger:     ep.Cliffhanger,
			EventIDs:        types.EncodeStrings(ep.EventIDs),
		})
	}
	artifact := &types.Artifact{
		ID:               uuid.New(),
		ProjectID:        projectID,
		Kind:             types.ArtifactEpisodePlan,
		Payload:          datatypes.JSON(payload),
		ProducedByTaskID: taskID,
	}
	return series, episodes, artifact, nil
}
