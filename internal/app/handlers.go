package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/qalam-backend/internal/http"
	httpH "github.com/yungbote/qalam-backend/internal/http/handlers"
	httpMW "github.com/yungbote/qalam-backend/internal/http/middleware"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.GatewayAuth
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Project   *httpH.ProjectHandler
	Source    *httpH.SourceHandler
	Narrative *httpH.NarrativeHandler
	Task      *httpH.TaskHandler
	Writing   *httpH.WritingHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(),
		Project:   httpH.NewProjectHandler(log, services.Projects),
		Source:    httpH.NewSourceHandler(log, services.Projects, services.Sources),
		Narrative: httpH.NewNarrativeHandler(log, services.Narrative),
		Task:      httpH.NewTaskHandler(log, services.Narrative),
		Writing:   httpH.NewWritingHandler(log, services.Writing),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewGatewayAuth(log, cfg.GatewayJWTSecret),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:              log,
		ServiceName:      cfg.ServiceName,
		CORSOrigins:      cfg.CORSOrigins,
		AuthMiddleware:   middleware.Auth,
		HealthHandler:    handlers.Health,
		ProjectHandler:   handlers.Project,
		SourceHandler:    handlers.Source,
		NarrativeHandler: handlers.Narrative,
		TaskHandler:      handlers.Task,
		WritingHandler:   handlers.Writing,
	})
}
