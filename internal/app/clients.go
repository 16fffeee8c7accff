package app

import (
	"context"
	"fmt"
	"strings"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/lessonforge/internal/clients/gcp"
	"github.com/yungbote/lessonforge/internal/clients/openai"
	"github.com/yungbote/lessonforge/internal/clients/redis"
	"github.com/yungbote/lessonforge/internal/generation"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
	"github.com/yungbote/lessonforge/internal/temporalx"
)

type Clients struct {
	OpenAI         openai.Client
	Assets         gcp.AssetStore
	Hub            generation.SignalHub
	Temporal       temporalsdkclient.Client
	TemporalConfig temporalx.Config

	redisHub *redis.SignalHub
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	ai, err := openai.NewClient(log, openai.ConfigFromEnv(log))
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	assets, err := resolveAssetStore(ctx, log, cfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init asset store: %w", err)
	}

	out := Clients{OpenAI: ai, Assets: assets}

	redisCfg := redis.ConfigFromEnv(log)
	if strings.TrimSpace(redisCfg.Addr) != "" {
		hub, err := redis.NewSignalHub(log, redisCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis signal hub: %w", err)
		}
		out.Hub = hub
		out.redisHub = hub
	} else {
		log.Warn("REDIS_ADDR not set; dependency signals stay in-process")
		out.Hub = generation.NewMemoryHub()
	}

	out.TemporalConfig = temporalx.LoadConfig(log)
	tc, err := temporalx.NewClient(log, out.TemporalConfig)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	out.Temporal = tc

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.redisHub != nil {
		_ = c.redisHub.Close()
	}
}
