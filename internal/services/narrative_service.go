package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// UKBView is the read model of a project's knowledge base: the UKB row plus entities by kind.
type UKBView struct {
	UKB        *types.UnifiedKnowledgeBase `json:"ukb"`
	Characters []*types.KnowledgeEntity    `json:"characters"`
	Places     []*types.KnowledgeEntity    `json:"places"`
	Events     []*types.KnowledgeEntity    `json:"events"`
	Claims     []*types.KnowledgeEntity    `json:"claims"`
}

/*
NarrativeService is the operation surface the HTTP adapter calls.

Every method takes the caller's userRef. uuid.Nil skips the ownership check (internal callers);
any other id must own the project, otherwise the project is reported as not found.
*/
type NarrativeService interface {
	SubmitAnalyzeSources(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error)
	SubmitRebuildUKB(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error)
	SubmitGenerateScene(dbc dbctx.Context, userID, projectID uuid.UUID, req prompts.Request) (uuid.UUID, error)
	SubmitPlanSeries(dbc dbctx.Context, userID, projectID uuid.UUID, req generators.SeriesRequest) (uuid.UUID, error)
	SubmitBuildLiveNovel(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error)
	SubmitGenerateAudiobook(dbc dbctx.Context, userID, projectID uuid.UUID, voices generators.VoiceMap) (uuid.UUID, error)
	SubmitGenerateMovieTreatment(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error)
	SubmitBuildInteractiveMap(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error)
	SubmitVideoToBook(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error)

	GetLiveNovelData(dbc dbctx.Context, userID, projectID uuid.UUID) (*generators.LiveNovel, error)
	GetUKB(dbc dbctx.Context, userID, projectID uuid.UUID) (*UKBView, error)

	GetTaskStatus(dbc dbctx.Context, userID, taskID uuid.UUID) (*progress.Snapshot, error)
	CancelTask(dbc dbctx.Context, userID, taskID uuid.UUID) error
	ListTasks(dbc dbctx.Context, userID, projectID uuid.UUID, limit int) ([]*progress.Snapshot, error)
}

type narrativeService struct {
	db    *gorm.DB
	log   *logger.Logger
	tasks TaskService
	repos *repos.Set
}

func NewNarrativeService(db *gorm.DB, baseLog *logger.Logger, tasks TaskService, set *repos.Set) NarrativeService {
	return &narrativeService{
		db:    db,
		log:   baseLog.With("service", "NarrativeService"),
		tasks: tasks,
		repos: set,
	}
}

func (s *narrativeService) project(dbc dbctx.Context, userID, projectID uuid.UUID) (*types.Project, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing project id", apperrors.ErrInvalidArgument)
	}
	p, err := s.repos.Projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && p.OwnerUserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func (s *narrativeService) submit(dbc dbctx.Context, userID, projectID uuid.UUID, kind string, kwargs map[string]any, dedupe string) (uuid.UUID, error) {
	p, err := s.project(dbc, userID, projectID)
	if err != nil {
		return uuid.Nil, err
	}
	pid := p.ID
	id, err := s.tasks.Submit(dbc, kind, nil, kwargs, SubmitOptions{
		ProjectID:   &pid,
		OwnerUserID: p.OwnerUserID,
		DedupeKey:   dedupe,
	})
	if err != nil {
		return uuid.Nil, err
	}
	s.log.Info("task submitted", "task_kind", kind, "task_id", id.String(), "project_id", pid.String())
	return id, nil
}

func (s *narrativeService) SubmitAnalyzeSources(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error) {
	return s.submit(dbc, userID, projectID, pipelines.KindAnalyzeSources, nil, projectID.String())
}

func (s *narrativeService) SubmitRebuildUKB(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error) {
	return s.submit(dbc, userID, projectID, pipelines.KindRebuildUKB, nil, projectID.String())
}

func (s *narrativeService) SubmitGenerateScene(dbc dbctx.Context, userID, projectID uuid.UUID, req prompts.Request) (uuid.UUID, error) {
	return s.submit(dbc, userID, projectID, pipelines.KindGenerateScene, map[string]any{"scene_request": req}, "")
}

func (s *narrativeService) SubmitPlanSeries(dbc dbctx.Context, userID, projectID uuid.UUID, req generators.SeriesRequest) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}
	return s.submit(dbc, userID, projectID, pipelines.KindPlanSeries, map[string]any{"series": req}, "")
}

func (s *narrativeService) SubmitBuildLiveNovel(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error) {
	return s.submit(dbc, userID, projectID, pipelines.KindLiveNovelBuild, nil, projectID.String())
}

func (s *narrativeService) SubmitGenerateAudiobook(dbc dbctx.Context, userID, projectID uuid.UUID, voices generators.VoiceMap) (uuid.UUID, error) {
	if voices == nil {
		voices = generators.VoiceMap{}
	}
	return s.submit(dbc, userID, projectID, pipelines.KindAudiobook, map[string]any{"voice_map": voices}, "")
}

func (s *narrativeService) SubmitGenerateMovieTreatment(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error) {
	return s.submit(dbc, userID, projectID, pipelines.KindMovieTreatment, nil, "")
}

func (s *narrativeService) SubmitBuildInteractiveMap(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error) {
	return s.submit(dbc, userID, projectID, pipelines.KindInteractiveMap, nil, projectID.String())
}

func (s *narrativeService) SubmitVideoToBook(dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error) {
	return s.submit(dbc, userID, projectID, pipelines.KindVideoToBook, nil, projectID.String())
}

// GetLiveNovelData links the stored chapters against the current UKB without going
// through the task queue.
func (s *narrativeService) GetLiveNovelData(dbc dbctx.Context, userID, projectID uuid.UUID) (*generators.LiveNovel, error) {
	p, err := s.project(dbc, userID, projectID)
	if err != nil {
		return nil, err
	}
	snap, err := s.repos.UKB.Snapshot(dbc, p.ID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("load ukb: %w", err)
	}
	chapters, err := s.repos.Chapters.ListByProject(dbc, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return generators.BuildLiveNovel(p.ID, p.Title, chapters, snap), nil
}

func (s *narrativeService) GetUKB(dbc dbctx.Context, userID, projectID uuid.UUID) (*UKBView, error) {
	p, err := s.project(dbc, userID, projectID)
	if err != nil {
		return nil, err
	}
	snap, err := s.repos.UKB.Snapshot(dbc, p.ID)
	if err != nil {
		return nil, err
	}
	return &UKBView{
		UKB:        snap.UKB,
		Characters: snap.ByKind(types.EntityCharacter),
		Places:     snap.ByKind(types.EntityPlace),
		Events:     snap.ByKind(types.EntityEvent),
		Claims:     snap.ByKind(types.EntityClaim),
	}, nil
}

func (s *narrativeService) task(dbc dbctx.Context, userID, taskID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	row, err := s.repos.Tasks.GetByID(dbc, taskID)
	if err != nil {
		return err
	}
	if row.OwnerUserID != userID {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *narrativeService) GetTaskStatus(dbc dbctx.Context, userID, taskID uuid.UUID) (*progress.Snapshot, error) {
	if err := s.task(dbc, userID, taskID); err != nil {
		return nil, err
	}
	return s.tasks.GetStatus(dbc, taskID)
}

func (s *narrativeService) CancelTask(dbc dbctx.Context, userID, taskID uuid.UUID) error {
	if err := s.task(dbc, userID, taskID); err != nil {
		return err
	}
	return s.tasks.Cancel(dbc, taskID)
}

func (s *narrativeService) ListTasks(dbc dbctx.Context, userID, projectID uuid.UUID, limit int) ([]*progress.Snapshot, error) {
	if _, err := s.project(dbc, userID, projectID); err != nil {
		return nil, err
	}
	return s.tasks.ListTasks(dbc, projectID, limit)
}
