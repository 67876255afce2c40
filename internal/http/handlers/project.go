package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/qalam-backend/internal/http/response"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/services"
)

type ProjectHandler struct {
	log      *logger.Logger
	projects services.ProjectService
}

func NewProjectHandler(log *logger.Logger, projects services.ProjectService) *ProjectHandler {
	return &ProjectHandler{log: log.With("handler", "ProjectHandler"), projects: projects}
}

type createProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// POST /api/projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.projects.CreateProject(dbcOf(c), userID, req.Title, req.Description)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": p})
}

// GET /api/projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.projects.ListProjects(dbcOf(c), userID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"projects": list})
}

// GET /api/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.GetProject(dbcOf(c), userID, projectID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

// DELETE /api/projects/:id
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.projects.DeleteProject(dbcOf(c), userID, projectID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
