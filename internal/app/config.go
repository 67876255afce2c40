package app

import (
	"strings"

	pgdb "github.com/yungbote/qalam-backend/internal/data/db"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/jobs/worker"
	"github.com/yungbote/qalam-backend/internal/knowledge/correlator"
	"github.com/yungbote/qalam-backend/internal/platform/blobstore"
	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/gcp"
	"github.com/yungbote/qalam-backend/internal/platform/geocoder"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/platform/openai"
	"github.com/yungbote/qalam-backend/internal/temporalx"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	HTTPAddr         string
	CORSOrigins      []string
	GatewayJWTSecret string

	// RunServer and RunWorker split one binary into API and worker processes.
	RunServer bool
	RunWorker bool

	Postgres    pgdb.PostgresConfig
	Redis       progress.RedisConfig
	Temporal    temporalx.Config
	Worker      worker.Config
	Blob        blobstore.Config
	OpenAI      openai.Config
	Document    gcp.DocumentConfig
	Geocoder    geocoder.Config
	Correlation correlator.Options

	// GCPEnabled gates the speech, vision and video clients.
	GCPEnabled   bool
	LanguageHint string
}

func LoadConfig(log *logger.Logger) Config {
	// Validation happens when the store is built so the error carries a bootstrap code.
	blobCfg, _ := blobstore.ConfigFromEnv()

	cfg := Config{
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "qalam-backend"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		HTTPAddr:         envutil.String("HTTP_ADDR", ":8080"),
		CORSOrigins:      splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		GatewayJWTSecret: envutil.String("GATEWAY_JWT_SECRET", ""),

		RunServer: envutil.Bool("RUN_SERVER", true),
		RunWorker: envutil.Bool("RUN_WORKER", true),

		Postgres:    pgdb.PostgresConfigFromEnv(),
		Redis:       progress.RedisConfigFromEnv(),
		Temporal:    temporalx.LoadConfig(),
		Worker:      worker.ConfigFromEnv(),
		Blob:        blobCfg,
		OpenAI:      openai.ConfigFromEnv(),
		Document:    gcp.DocumentConfigFromEnv(),
		Geocoder:    geocoder.ConfigFromEnv(),
		Correlation: correlator.OptionsFromEnv(),

		GCPEnabled: envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "") != "" ||
			envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "") != "",
		LanguageHint: envutil.String("DEFAULT_LANGUAGE_CODE", "ar"),
	}
	if cfg.RunServer && cfg.GatewayJWTSecret == "" {
		log.Warn("GATEWAY_JWT_SECRET is empty; every API request will be rejected")
	}
	log.Info("Configuration loaded",
		"environment", cfg.Environment,
		"http_addr", cfg.HTTPAddr,
		"run_server", cfg.RunServer,
		"run_worker", cfg.RunWorker,
		"executor", cfg.Temporal.Executor,
		"blob_mode", cfg.Blob.Mode,
		"gcp_enabled", cfg.GCPEnabled,
	)
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
