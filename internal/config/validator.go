package config

import (
	"fmt"
	"net/url"

	"onebridge/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateOneBot(cfg.OneBot); err != nil {
		errors = append(errors, err)
	}

	if err := validateReverse(cfg.Reverse); err != nil {
		errors = append(errors, err)
	}

	if err := validateWebhook(cfg.Webhook); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if !cfg.Enabled() {
		return nil
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "timeouts must not be negative",
		}
	}

	return nil
}

func validateOneBot(cfg OneBotConfig) error {
	switch cfg.PostMessageFormat {
	case "", constants.MessageFormatString, constants.MessageFormatArray:
	default:
		return &ValidationError{
			Field:   "onebot.post_message_format",
			Message: fmt.Sprintf("unknown format: %s (supported: string, array)", cfg.PostMessageFormat),
		}
	}

	if cfg.RateLimitInterval < 0 {
		return &ValidationError{
			Field:   "onebot.rate_limit_interval",
			Message: "rate limit interval must not be negative",
		}
	}

	if cfg.EnableHeartbeat && cfg.HeartbeatInterval <= 0 {
		return &ValidationError{
			Field:   "onebot.heartbeat_interval",
			Message: "heartbeat interval must be positive when heartbeats are enabled",
		}
	}

	return nil
}

func validateReverse(cfg ReverseConfig) error {
	for i, raw := range cfg.URLs {
		if err := validateURL(raw, "ws", "wss"); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("reverse.urls[%d]", i),
				Message: err.Error(),
			}
		}
	}

	if len(cfg.URLs) > 0 && cfg.ReconnectInterval <= 0 {
		return &ValidationError{
			Field:   "reverse.reconnect_interval",
			Message: "reconnect interval must be positive",
		}
	}

	switch cfg.ReconnectStrategy {
	case "", constants.ReconnectFixed, constants.ReconnectExponential:
	default:
		return &ValidationError{
			Field:   "reverse.reconnect_strategy",
			Message: fmt.Sprintf("unknown strategy: %s (supported: fixed, exponential)", cfg.ReconnectStrategy),
		}
	}

	return nil
}

func validateWebhook(cfg WebhookConfig) error {
	for i, raw := range cfg.URLs {
		if err := validateURL(raw, "http", "https"); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("webhook.urls[%d]", i),
				Message: err.Error(),
			}
		}
	}

	if len(cfg.URLs) > 0 && cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "webhook.timeout",
			Message: "webhook timeout must be positive",
		}
	}

	if cfg.CircuitBreaker.FailureRatio < 0 || cfg.CircuitBreaker.FailureRatio > 1 {
		return &ValidationError{
			Field:   "webhook.circuit_breaker.failure_ratio",
			Message: "failure ratio must be between 0 and 1",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return &ValidationError{
				Field:   "broker.kafka.brokers",
				Message: "at least one Kafka broker is required",
			}
		}
		if cfg.Kafka.Topic == "" {
			return &ValidationError{
				Field:   "broker.kafka.topic",
				Message: "Kafka topic is required",
			}
		}
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.Host == "" {
			return &ValidationError{
				Field:   "broker.redis.host",
				Message: "Redis host is required",
			}
		}
		if cfg.Redis.Channel == "" {
			return &ValidationError{
				Field:   "broker.redis.channel",
				Message: "Redis channel is required",
			}
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("url %q must use one of %v", raw, schemes)
}
