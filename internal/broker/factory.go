package broker

import (
	"errors"

	"onebridge/internal/config"
	"onebridge/internal/logger"
	"onebridge/pkg/retry"
)

// PolicyFrom converts the configured retry settings, falling back to the
// package defaults for unset fields.
func PolicyFrom(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	return policy
}

// NewPublishers builds one publisher per enabled broker.
func NewPublishers(cfg config.BrokerConfig, selfID int64, log logger.Logger) []Publisher {
	policy := PolicyFrom(cfg.Retry)

	var out []Publisher
	if cfg.Kafka.Enabled {
		out = append(out, NewKafkaPublisher(cfg.Kafka, selfID, policy, log))
	}
	if cfg.Redis.Enabled {
		out = append(out, NewRedisPublisher(cfg.Redis, policy, log))
	}
	return out
}

// CloseAll closes every publisher and joins their errors.
func CloseAll(publishers []Publisher) error {
	var errs []error
	for _, p := range publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
