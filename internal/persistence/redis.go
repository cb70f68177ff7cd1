package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
)

const redisStartupPing = 2 * time.Second

// Redis holds the client used for ticket event fan-out.
type Redis struct {
	Client        *redis.Client
	eventsChannel string
}

// NewRedis builds the client. An unreachable server is logged, not fatal:
// events are still delivered in process and readiness reports the outage.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisStartupPing)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable; ticket events stay in process",
			zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("events_channel", cfg.EventsChannel))
	}

	return &Redis{Client: client, eventsChannel: cfg.EventsChannel}
}

// EventsPublisher returns a dispatcher subscriber that publishes ticket
// events on the configured channel.
func (r *Redis) EventsPublisher(logger *zap.Logger) *events.RedisPublisher {
	if r == nil || r.Client == nil {
		return events.NewRedisPublisher(nil, "", logger)
	}
	return events.NewRedisPublisher(r.Client, r.eventsChannel, logger)
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping is the readiness check.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
