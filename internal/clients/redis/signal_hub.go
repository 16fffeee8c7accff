package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/lessonforge/internal/generation"
	"github.com/yungbote/lessonforge/internal/pkg/envutil"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		Addr:     strings.TrimSpace(envutil.GetEnv("REDIS_ADDR", "", log)),
		Password: envutil.GetEnv("REDIS_PASSWORD", "", log),
		DB:       envutil.GetEnvAsInt("REDIS_DB", 0, log),
		Prefix:   envutil.GetEnv("REDIS_SIGNAL_PREFIX", "lessonforge:signal:", log),
	}
}

// SignalHub carries completion signals between worker processes over redis
// pub/sub. Payloads are published without steps; waiters read content from
// storage.
type SignalHub struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

var _ generation.SignalHub = (*SignalHub)(nil)

func NewSignalHub(log *logger.Logger, cfg Config) (*SignalHub, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewSignalHubFromClient(log, rdb, cfg.Prefix), nil
}

func NewSignalHubFromClient(log *logger.Logger, rdb *goredis.Client, prefix string) *SignalHub {
	if prefix == "" {
		prefix = "lessonforge:signal:"
	}
	return &SignalHub{
		log:    log.With("service", "RedisSignalHub"),
		rdb:    rdb,
		prefix: prefix,
	}
}

func (h *SignalHub) channel(token string) string { return h.prefix + token }

// Register subscribes before returning so a fire issued afterwards is seen.
func (h *SignalHub) Register(ctx context.Context, token string) (generation.Waiter, error) {
	if h == nil || h.rdb == nil {
		return nil, fmt.Errorf("redis signal hub not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := h.rdb.Subscribe(ctx, h.channel(token))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	return &redisWaiter{log: h.log, sub: sub, token: token}, nil
}

func (h *SignalHub) Fire(ctx context.Context, token string, payload generation.SignalPayload) error {
	if h == nil || h.rdb == nil {
		return fmt.Errorf("redis signal hub not initialized")
	}
	raw, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, h.channel(token), raw).Err()
}

func (h *SignalHub) Close() error {
	if h == nil || h.rdb == nil {
		return nil
	}
	return h.rdb.Close()
}

// EncodePayload drops the steps; subscribers re-read them from storage.
func EncodePayload(p generation.SignalPayload) ([]byte, error) {
	p.Steps = nil
	return json.Marshal(p)
}

func DecodePayload(raw string) (generation.SignalPayload, error) {
	var p generation.SignalPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return generation.SignalPayload{}, fmt.Errorf("decode signal: %w", err)
	}
	return p, nil
}

type redisWaiter struct {
	log   *logger.Logger
	sub   *goredis.PubSub
	token string
	once  sync.Once
}

func (w *redisWaiter) Wait(ctx context.Context) (generation.SignalPayload, error) {
	defer w.Cancel()
	ch := w.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return generation.SignalPayload{}, ctx.Err()
		case m, ok := <-ch:
			if !ok || m == nil {
				return generation.SignalPayload{}, fmt.Errorf("redis subscription closed for %s", w.token)
			}
			p, err := DecodePayload(m.Payload)
			if err != nil {
				w.log.Warn("bad redis signal payload", "token", w.token, "error", err)
				continue
			}
			return p, nil
		}
	}
}

func (w *redisWaiter) Cancel() {
	w.once.Do(func() { _ = w.sub.Close() })
}
