package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type EditInput struct {
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	Kind         string     `json:"kind"`
	OriginalText string     `json:"original_text"`
	EditedText   string     `json:"edited_text"`
	Notes        string     `json:"notes"`
	ContextTags  []string   `json:"context_tags"`
}

type WritingService interface {
	// RecordEdit stores one user edit. The preference learner reads these back.
	RecordEdit(dbc dbctx.Context, userID uuid.UUID, in EditInput) (*types.UserEdit, error)
	StartWritingSession(dbc dbctx.Context, userID, projectID uuid.UUID) (*types.WritingSession, error)
	EndWritingSession(dbc dbctx.Context, userID, sessionID uuid.UUID, totals repos.SessionTotals) (*types.WritingSession, error)
	ListWritingSessions(dbc dbctx.Context, userID, projectID uuid.UUID, limit int) ([]*types.WritingSession, error)
}

type writingService struct {
	db       *gorm.DB
	log      *logger.Logger
	projects repos.ProjectRepo
	sessions repos.WritingSessionRepo
	edits    repos.UserEditRepo
}

func NewWritingService(db *gorm.DB, baseLog *logger.Logger, projects repos.ProjectRepo, sessions repos.WritingSessionRepo, edits repos.UserEditRepo) WritingService {
	return &writingService{
		db:       db,
		log:      baseLog.With("service", "WritingService"),
		projects: projects,
		sessions: sessions,
		edits:    edits,
	}
}

func (s *writingService) owns(dbc dbctx.Context, userID, projectID uuid.UUID) error {
	p, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return err
	}
	if userID != uuid.Nil && p.OwnerUserID != userID {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *writingService) RecordEdit(dbc dbctx.Context, userID uuid.UUID, in EditInput) (*types.UserEdit, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: edits need a user", apperrors.ErrInvalidArgument)
	}
	kind := strings.TrimSpace(in.Kind)
	switch kind {
	case "":
		kind = types.EditOther
	case types.EditAICorrection, types.EditManual, types.EditOther:
	default:
		return nil, fmt.Errorf("%w: unknown edit kind %q", apperrors.ErrInvalidArgument, in.Kind)
	}
	if in.ProjectID != nil {
		if err := s.owns(dbc, userID, *in.ProjectID); err != nil {
			return nil, err
		}
	}
	tags := in.ContextTags
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	edit, err := s.edits.Create(dbc, &types.UserEdit{
		UserID:       userID,
		ProjectID:    in.ProjectID,
		Kind:         kind,
		OriginalText: in.OriginalText,
		EditedText:   in.EditedText,
		Notes:        strings.TrimSpace(in.Notes),
		ContextTags:  datatypes.JSON(b),
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("edit recorded", "user_id", userID.String(), "kind", kind)
	return edit, nil
}

func (s *writingService) StartWritingSession(dbc dbctx.Context, userID, projectID uuid.UUID) (*types.WritingSession, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: sessions need a user", apperrors.ErrInvalidArgument)
	}
	if err := s.owns(dbc, userID, projectID); err != nil {
		return nil, err
	}
	return s.sessions.Start(dbc, userID, projectID)
}

func (s *writingService) EndWritingSession(dbc dbctx.Context, userID, sessionID uuid.UUID, totals repos.SessionTotals) (*types.WritingSession, error) {
	sess, err := s.sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && sess.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	if totals.QualityScore != nil {
		q := types.ClampUnit(*totals.QualityScore)
		totals.QualityScore = &q
	}
	return s.sessions.End(dbc, sessionID, totals)
}

func (s *writingService) ListWritingSessions(dbc dbctx.Context, userID, projectID uuid.UUID, limit int) ([]*types.WritingSession, error) {
	if err := s.owns(dbc, userID, projectID); err != nil {
		return nil, err
	}
	return s.sessions.ListByProject(dbc, projectID, limit)
}
