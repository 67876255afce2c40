package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/qalam-backend/internal/http/response"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/services"
)

const maxUploadBytes = 512 << 20

type SourceHandler struct {
	log      *logger.Logger
	projects services.ProjectService
	sources  services.SourceService
}

func NewSourceHandler(log *logger.Logger, projects services.ProjectService, sources services.SourceService) *SourceHandler {
	return &SourceHandler{log: log.With("handler", "SourceHandler"), projects: projects, sources: sources}
}

// POST /api/projects/:id/sources (multipart: file, kind?)
func (h *SourceHandler) UploadSource(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.projects.GetProject(dbcOf(c), userID, projectID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", fmt.Errorf("read upload: %w", err))
		return
	}
	src, err := h.sources.UploadSource(dbcOf(c), projectID, fh.Filename, data, c.PostForm("kind"))
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"source_id": src.ID.String(), "source": src})
}

// GET /api/projects/:id/sources
func (h *SourceHandler) ListSources(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.projects.GetProject(dbcOf(c), userID, projectID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	list, err := h.sources.ListSources(dbcOf(c), projectID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sources": list})
}
