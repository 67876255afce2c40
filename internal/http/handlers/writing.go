package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/http/response"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/services"
)

type WritingHandler struct {
	log     *logger.Logger
	writing services.WritingService
}

func NewWritingHandler(log *logger.Logger, writing services.WritingService) *WritingHandler {
	return &WritingHandler{log: log.With("handler", "WritingHandler"), writing: writing}
}

// POST /api/edits
func (h *WritingHandler) RecordEdit(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	var req services.EditInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	edit, err := h.writing.RecordEdit(dbcOf(c), userID, req)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"edit": edit})
}

// POST /api/projects/:id/sessions
func (h *WritingHandler) StartSession(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	sess, err := h.writing.StartWritingSession(dbcOf(c), userID, projectID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

type endSessionRequest struct {
	WordsWritten  int      `json:"words_written"`
	EditsMade     int      `json:"edits_made"`
	ActiveSeconds int      `json:"active_seconds"`
	QualityScore  *float64 `json:"quality_score"`
	Stage         string   `json:"stage"`
}

// POST /api/sessions/:id/end
func (h *WritingHandler) EndSession(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req endSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	sess, err := h.writing.EndWritingSession(dbcOf(c), userID, sessionID, repos.SessionTotals{
		WordsWritten:  req.WordsWritten,
		EditsMade:     req.EditsMade,
		ActiveSeconds: req.ActiveSeconds,
		QualityScore:  req.QualityScore,
		Stage:         req.Stage,
	})
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": sess})
}

// GET /api/projects/:id/sessions?limit=
func (h *WritingHandler) ListSessions(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.writing.ListWritingSessions(dbcOf(c), userID, projectID, limit)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": list})
}
