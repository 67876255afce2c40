package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/http/response"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/ctxutil"
)

func dbcOf(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

// caller returns the authenticated userRef, or writes 401 and reports false.
func caller(c *gin.Context) (uuid.UUID, bool) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func submitted(c *gin.Context, taskID uuid.UUID, err error) {
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"task_id": taskID.String()})
}
