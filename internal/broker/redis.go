package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"onebridge/internal/config"
	"onebridge/internal/constants"
	"onebridge/internal/logger"
	"onebridge/pkg/metrics"
	"onebridge/pkg/retry"
)

// RedisPublisher publishes events on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	policy  retry.Policy
	logger  logger.Logger
}

func NewRedisPublisher(cfg config.RedisConfig, policy retry.Policy, log logger.Logger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		WriteTimeout: constants.PublisherWriteTimeout,
	})
	return NewRedisPublisherWithClient(client, cfg.Channel, policy, log)
}

func NewRedisPublisherWithClient(client *redis.Client, channel string, policy retry.Policy, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, policy: policy, logger: log}
}

func (p *RedisPublisher) Name() string { return constants.BrokerRedis }

// Client exposes the connection for health checks.
func (p *RedisPublisher) Client() *redis.Client { return p.client }

func (p *RedisPublisher) Publish(ctx context.Context, postType string, payload []byte) error {
	start := time.Now()

	err := retry.Do(ctx, p.policy, constants.BrokerRedis, p.channel, func() error {
		return p.client.Publish(ctx, p.channel, payload).Err()
	}, func(attempt int, err error, next time.Duration) {
		p.logger.WarnwCtx(ctx, "Retrying redis publish",
			"attempt", attempt,
			"next_delay", next,
			"channel", p.channel,
			"post_type", postType,
			"error", err,
		)
	})
	metrics.ObservePublishDuration(constants.BrokerRedis, time.Since(start))

	if err != nil {
		metrics.PublishedEventsTotal.WithLabelValues(constants.BrokerRedis, "failed").Inc()
		return fmt.Errorf("failed to publish redis message: %w", err)
	}
	metrics.PublishedEventsTotal.WithLabelValues(constants.BrokerRedis, "ok").Inc()
	return nil
}

func (p *RedisPublisher) Check(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
