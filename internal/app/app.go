package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	pgdb "github.com/yungbote/qalam-backend/internal/data/db"
	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/http"
	"github.com/yungbote/qalam-backend/internal/observability"
	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    *repos.Set
	Services Services
	Clients  *Clients

	pg           *pgdb.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := pgdb.NewPostgresService(cfg.Postgres, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pgdb.AutoMigrateAll(pg.DB()); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	log.Info("Wiring repos...")
	reposet := repos.NewSet(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	var router *gin.Engine
	if cfg.RunServer {
		handlerset := wireHandlers(log, serviceset)
		middleware := wireMiddleware(log, cfg)
		router = wireRouter(log, cfg, handlerset, middleware)
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Clients:      clients,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the task executor selected by TASK_EXECUTOR.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Services.Worker != nil {
		a.Services.Worker.Start(ctx)
	}
	if a.Services.TemporalWorker != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.Services.TemporalWorker.Start(ctx); err != nil && ctx.Err() == nil {
				a.Log.Error("Temporal worker stopped", "error", err)
			}
		}()
	}
}

// Run serves HTTP until ctx is cancelled. A worker-only process just blocks on ctx.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Router == nil {
		<-ctx.Done()
		return nil
	}
	a.Log.Info("Server listening", "addr", a.Cfg.HTTPAddr)
	return http.NewServer(a.Router).Run(ctx, a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Worker != nil {
		a.Services.Worker.Wait()
	}
	a.wg.Wait()
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
