package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/http/response"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/services"
)

type NarrativeHandler struct {
	log       *logger.Logger
	narrative services.NarrativeService
}

func NewNarrativeHandler(log *logger.Logger, narrative services.NarrativeService) *NarrativeHandler {
	return &NarrativeHandler{log: log.With("handler", "NarrativeHandler"), narrative: narrative}
}

type submitFunc func(s services.NarrativeService, dbc dbctx.Context, userID, projectID uuid.UUID) (uuid.UUID, error)

func (h *NarrativeHandler) submitter(fn submitFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		projectID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		id, err := fn(h.narrative, dbcOf(c), userID, projectID)
		submitted(c, id, err)
	}
}

// POST /api/projects/:id/analyze
func (h *NarrativeHandler) AnalyzeSources() gin.HandlerFunc {
	return h.submitter(services.NarrativeService.SubmitAnalyzeSources)
}

// POST /api/projects/:id/ukb/rebuild
func (h *NarrativeHandler) RebuildUKB() gin.HandlerFunc {
	return h.submitter(services.NarrativeService.SubmitRebuildUKB)
}

// POST /api/projects/:id/live-novel
func (h *NarrativeHandler) BuildLiveNovel() gin.HandlerFunc {
	return h.submitter(services.NarrativeService.SubmitBuildLiveNovel)
}

// POST /api/projects/:id/movie-treatment
func (h *NarrativeHandler) MovieTreatment() gin.HandlerFunc {
	return h.submitter(services.NarrativeService.SubmitGenerateMovieTreatment)
}

// POST /api/projects/:id/map
func (h *NarrativeHandler) InteractiveMap() gin.HandlerFunc {
	return h.submitter(services.NarrativeService.SubmitBuildInteractiveMap)
}

// POST /api/projects/:id/video-to-book
func (h *NarrativeHandler) VideoToBook() gin.HandlerFunc {
	return h.submitter(services.NarrativeService.SubmitVideoToBook)
}

// POST /api/projects/:id/scenes
func (h *NarrativeHandler) GenerateScene(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req prompts.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	id, err := h.narrative.SubmitGenerateScene(dbcOf(c), userID, projectID, req)
	submitted(c, id, err)
}

// POST /api/projects/:id/series
func (h *NarrativeHandler) PlanSeries(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req generators.SeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	id, err := h.narrative.SubmitPlanSeries(dbcOf(c), userID, projectID, req)
	submitted(c, id, err)
}

type audiobookRequest struct {
	VoiceMap generators.VoiceMap `json:"voiceMap"`
}

// POST /api/projects/:id/audiobook
func (h *NarrativeHandler) GenerateAudiobook(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req audiobookRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	id, err := h.narrative.SubmitGenerateAudiobook(dbcOf(c), userID, projectID, req.VoiceMap)
	submitted(c, id, err)
}

// GET /api/projects/:id/live-novel
func (h *NarrativeHandler) GetLiveNovel(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	novel, err := h.narrative.GetLiveNovelData(dbcOf(c), userID, projectID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, novel)
}

// GET /api/projects/:id/ukb
func (h *NarrativeHandler) GetUKB(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	view, err := h.narrative.GetUKB(dbcOf(c), userID, projectID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, view)
}
