package temporalx

import (
	"time"

	"github.com/yungbote/lessonforge/internal/pkg/envutil"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	NamespaceRetention    time.Duration

	DialTimeout time.Duration
	DialMaxWait time.Duration
	Backoff     time.Duration
	BackoffMax  time.Duration

	WorkerConcurrency int
	// LessonTimeout bounds one lesson_generate attempt.
	LessonTimeout time.Duration
}

// Enabled reports whether a Temporal frontend is configured.
func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func LoadConfig(log *logger.Logger) Config {
	retentionDays := envutil.GetEnvAsInt("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7, log)
	if retentionDays < 1 || retentionDays > 365 {
		retentionDays = 7
	}
	return Config{
		Address:   envutil.GetEnv("TEMPORAL_ADDRESS", "", log),
		Namespace: envutil.GetEnv("TEMPORAL_NAMESPACE", "lessonforge", log),
		TaskQueue: envutil.GetEnv("TEMPORAL_TASK_QUEUE", "lessonforge", log),

		ClientCertPath: envutil.GetEnv("TEMPORAL_CLIENT_CERT_PATH", "", log),
		ClientKeyPath:  envutil.GetEnv("TEMPORAL_CLIENT_KEY_PATH", "", log),
		ClientCAPath:   envutil.GetEnv("TEMPORAL_CLIENT_CA_PATH", "", log),

		AutoRegisterNamespace: envutil.GetEnvAsBool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		NamespaceRetention:    time.Duration(retentionDays) * 24 * time.Hour,

		DialTimeout: envutil.GetEnvAsDuration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second, log),
		DialMaxWait: envutil.GetEnvAsDuration("TEMPORAL_DIAL_MAX_WAIT", time.Minute, log),
		Backoff:     envutil.GetEnvAsDuration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond, log),
		BackoffMax:  envutil.GetEnvAsDuration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second, log),

		WorkerConcurrency: envutil.GetEnvAsInt("WORKER_CONCURRENCY", 4, log),
		LessonTimeout:     envutil.GetEnvAsDuration("LESSON_GENERATION_TIMEOUT", 2*time.Hour, log),
	}
}
