package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/qalam-backend/internal/http/response"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/services"
)

type TaskHandler struct {
	log       *logger.Logger
	narrative services.NarrativeService
}

func NewTaskHandler(log *logger.Logger, narrative services.NarrativeService) *TaskHandler {
	return &TaskHandler{log: log.With("handler", "TaskHandler"), narrative: narrative}
}

// GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	taskID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	snap, err := h.narrative.GetTaskStatus(dbcOf(c), userID, taskID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"task": snap})
}

// POST /api/tasks/:id/cancel
func (h *TaskHandler) CancelTask(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	taskID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.narrative.CancelTask(dbcOf(c), userID, taskID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GET /api/projects/:id/tasks?limit=
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.narrative.ListTasks(dbcOf(c), userID, projectID, limit)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"tasks": list})
}
