package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type ProjectService interface {
	CreateProject(dbc dbctx.Context, userID uuid.UUID, title, description string) (*types.Project, error)
	GetProject(dbc dbctx.Context, userID, projectID uuid.UUID) (*types.Project, error)
	ListProjects(dbc dbctx.Context, userID uuid.UUID) ([]*types.Project, error)
	DeleteProject(dbc dbctx.Context, userID, projectID uuid.UUID) error
}

type projectService struct {
	db       *gorm.DB
	log      *logger.Logger
	projects repos.ProjectRepo
}

func NewProjectService(db *gorm.DB, baseLog *logger.Logger, projects repos.ProjectRepo) ProjectService {
	return &projectService{db: db, log: baseLog.With("service", "ProjectService"), projects: projects}
}

func (s *projectService) CreateProject(dbc dbctx.Context, userID uuid.UUID, title, description string) (*types.Project, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: projects need an owner", apperrors.ErrInvalidArgument)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperrors.ErrInvalidArgument)
	}
	p, err := s.projects.Create(dbc, &types.Project{
		OwnerUserID: userID,
		Title:       title,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("project created", "project_id", p.ID.String(), "user_id", userID.String())
	return p, nil
}

func (s *projectService) GetProject(dbc dbctx.Context, userID, projectID uuid.UUID) (*types.Project, error) {
	p, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && p.OwnerUserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func (s *projectService) ListProjects(dbc dbctx.Context, userID uuid.UUID) ([]*types.Project, error) {
	return s.projects.ListByOwner(dbc, userID)
}

func (s *projectService) DeleteProject(dbc dbctx.Context, userID, projectID uuid.UUID) error {
	if _, err := s.GetProject(dbc, userID, projectID); err != nil {
		return err
	}
	if err := s.projects.Delete(dbc, projectID); err != nil {
		return err
	}
	s.log.Info("project deleted", "project_id", projectID.String())
	return nil
}
