package app

import (
	"strings"
	"time"

	"github.com/yungbote/lessonforge/internal/pkg/envutil"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

const serviceName = "lessonforge"

type Config struct {
	HTTPAddr      string
	CORSOrigins   []string
	RunMigrations bool

	DependencyTimeout time.Duration
	RenderConcurrency int
	PipelinePath      string

	ObjectStorageMode string
	AssetBucket       string
	AssetCDNDomain    string
}

func LoadConfig(log *logger.Logger) Config {
	addr := envutil.GetEnv("HTTP_ADDR", "", log)
	if strings.TrimSpace(addr) == "" {
		addr = ":" + envutil.GetEnv("PORT", "8080", log)
	}
	return Config{
		HTTPAddr:          addr,
		CORSOrigins:       splitList(envutil.GetEnv("CORS_ALLOWED_ORIGINS", "", log)),
		RunMigrations:     envutil.GetEnvAsBool("RUN_MIGRATIONS", true),
		DependencyTimeout: envutil.GetEnvAsDuration("DEPENDENCY_WAIT_TIMEOUT", 10*time.Minute, log),
		RenderConcurrency: envutil.GetEnvAsInt("RENDER_CONCURRENCY", 4, log),
		PipelinePath:      envutil.GetEnv("LESSON_PIPELINE_YAML", "", log),
		ObjectStorageMode: envutil.GetEnv("OBJECT_STORAGE_MODE", "", log),
		AssetBucket:       envutil.GetEnv("ASSET_GCS_BUCKET_NAME", "", log),
		AssetCDNDomain:    envutil.GetEnv("ASSET_CDN_DOMAIN", "", log),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
