package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/qalam-backend/internal/http/handlers"
	httpMW "github.com/yungbote/qalam-backend/internal/http/middleware"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.GatewayAuth

	ProjectHandler   *httpH.ProjectHandler
	SourceHandler    *httpH.SourceHandler
	NarrativeHandler *httpH.NarrativeHandler
	TaskHandler      *httpH.TaskHandler
	WritingHandler   *httpH.WritingHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Projects
	if cfg.ProjectHandler != nil {
		protected.POST("/projects", cfg.ProjectHandler.CreateProject)
		protected.GET("/projects", cfg.ProjectHandler.ListProjects)
		protected.GET("/projects/:id", cfg.ProjectHandler.GetProject)
		protected.DELETE("/projects/:id", cfg.ProjectHandler.DeleteProject)
	}

	// Sources
	if cfg.SourceHandler != nil {
		protected.POST("/projects/:id/sources", cfg.SourceHandler.UploadSource)
		protected.GET("/projects/:id/sources", cfg.SourceHandler.ListSources)
	}

	// Narrative operations
	if h := cfg.NarrativeHandler; h != nil {
		protected.POST("/projects/:id/analyze", h.AnalyzeSources())
		protected.POST("/projects/:id/ukb/rebuild", h.RebuildUKB())
		protected.GET("/projects/:id/ukb", h.GetUKB)
		protected.POST("/projects/:id/scenes", h.GenerateScene)
		protected.POST("/projects/:id/series", h.PlanSeries)
		protected.GET("/projects/:id/live-novel", h.GetLiveNovel)
		protected.POST("/projects/:id/live-novel", h.BuildLiveNovel())
		protected.POST("/projects/:id/audiobook", h.GenerateAudiobook)
		protected.POST("/projects/:id/movie-treatment", h.MovieTreatment())
		protected.POST("/projects/:id/map", h.InteractiveMap())
		protected.POST("/projects/:id/video-to-book", h.VideoToBook())
	}

	// Tasks
	if cfg.TaskHandler != nil {
		protected.GET("/tasks/:id", cfg.TaskHandler.GetTask)
		protected.POST("/tasks/:id/cancel", cfg.TaskHandler.CancelTask)
		protected.GET("/projects/:id/tasks", cfg.TaskHandler.ListTasks)
	}

	// Writing
	if cfg.WritingHandler != nil {
		protected.POST("/edits", cfg.WritingHandler.RecordEdit)
		protected.POST("/projects/:id/sessions", cfg.WritingHandler.StartSession)
		protected.GET("/projects/:id/sessions", cfg.WritingHandler.ListSessions)
		protected.POST("/sessions/:id/end", cfg.WritingHandler.EndSession)
	}

	return r
}
