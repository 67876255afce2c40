package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/qalam-backend/internal/platform/envutil"
)

const (
	ExecutorWorker   = "worker"
	ExecutorTemporal = "temporal"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string
	// Executor selects who runs tasks: the table-polling worker pool or Temporal workflows.
	Executor string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	RetentionDays         int

	DialTimeout time.Duration
	DialMaxWait time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func LoadConfig() Config {
	exec := strings.ToLower(envutil.String("TASK_EXECUTOR", ExecutorWorker))
	if exec != ExecutorTemporal {
		exec = ExecutorWorker
	}
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "qalam"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "qalam-tasks"),
		Executor:  exec,

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),

		DialTimeout: envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5*time.Second),
		DialMaxWait: envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60*time.Second),
		BackoffBase: 250 * time.Millisecond,
		BackoffMax:  5 * time.Second,
	}
}

// Enabled reports whether tasks should be dispatched to Temporal.
func (c Config) Enabled() bool {
	return c.Executor == ExecutorTemporal && c.Address != ""
}

func (c Config) hasTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
