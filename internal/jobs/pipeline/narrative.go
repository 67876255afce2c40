package pipelines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/preferences"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// Narrative is what every generator reads before it talks to the LLM.
type Narrative struct {
	Project  *types.Project
	Snapshot *types.UKBSnapshot
	Prefs    preferences.Preferences
}

// NarrativeLoader resolves the project, its current UKB and the owner's preferences.
type NarrativeLoader struct {
	Projects repos.ProjectRepo
	UKB      repos.UKBRepo
	Learner  *preferences.Learner
	log      *logger.Logger
}

func NewNarrativeLoader(log *logger.Logger, projects repos.ProjectRepo, ukb repos.UKBRepo, learner *preferences.Learner) *NarrativeLoader {
	if log == nil {
		log = logger.NewNop()
	}
	return &NarrativeLoader{
		Projects: projects,
		UKB:      ukb,
		Learner:  learner,
		log:      log.With("component", "NarrativeLoader"),
	}
}

/*
Load never fails on a missing UKB (generators run against an empty one) or on a
preference lookup error (defaults apply). A missing project is ErrNotFound.
*/
func (l *NarrativeLoader) Load(ctx context.Context, projectID uuid.UUID) (*Narrative, error) {
	if l == nil || l.Projects == nil || l.UKB == nil {
		return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("narrative loader not configured"))
	}
	dbc := dbctx.Context{Ctx: ctx}
	project, err := l.Projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	snap, err := l.UKB.Snapshot(dbc, projectID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		snap = nil
	case err != nil:
		return nil, fmt.Errorf("load ukb: %w", err)
	}
	prefs := preferences.Default()
	if l.Learner != nil {
		p, perr := l.Learner.Infer(ctx, project.OwnerUserID)
		if perr != nil {
			l.log.Warn("preference inference failed; using defaults", "project_id", projectID.String(), "error", perr)
		} else {
			prefs = p
		}
	}
	return &Narrative{Project: project, Snapshot: snap, Prefs: prefs}, nil
}

// ProjectArg resolves the task's project or fails the task with invalid_argument.
func ProjectArg(jc *jobrt.Context) (uuid.UUID, bool) {
	id, ok := jc.ProjectID()
	if !ok {
		jc.Fail("validate", apperrors.Wrap(apperrors.ErrInvalidArgument, fmt.Errorf("missing project_id")))
		return uuid.Nil, false
	}
	return id, true
}

// SaveArtifact persists payload (JSON-encoded) as an artifact produced by the running task.
func SaveArtifact(jc *jobrt.Context, artifacts repos.ArtifactRepo, projectID uuid.UUID, kind string, payload any, payloadRef, stageKey string) (*types.Artifact, error) {
	if artifacts == nil {
		return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("artifact repo not configured"))
	}
	a := &types.Artifact{
		ProjectID:  projectID,
		Kind:       kind,
		PayloadRef: payloadRef,
		StageKey:   stageKey,
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s artifact: %w", kind, err)
		}
		a.Payload = datatypes.JSON(b)
	}
	if jc.Task != nil && jc.Task.ID != uuid.Nil {
		id := jc.Task.ID
		a.ProducedByTaskID = &id
	}
	return artifacts.Create(dbctx.Context{Ctx: jc.Ctx}, a)
}
