package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"onebridge/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5700)
	v.SetDefault("server.use_http", true)
	v.SetDefault("server.use_ws", true)
	v.SetDefault("server.read_timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("server.write_timeout", constants.DefaultHTTPTimeout)

	v.SetDefault("onebot.post_message_format", constants.MessageFormatArray)
	v.SetDefault("onebot.rate_limit_interval", constants.DefaultRateLimitInterval)
	v.SetDefault("onebot.heartbeat_interval", constants.DefaultHeartbeatInterval)

	v.SetDefault("reverse.reconnect_interval", constants.DefaultReconnectInterval)
	v.SetDefault("reverse.reconnect_strategy", constants.ReconnectFixed)
	v.SetDefault("reverse.max_reconnect_interval", constants.DefaultMaxReconnectWait)

	v.SetDefault("webhook.timeout", constants.DefaultWebhookTimeout)

	v.SetDefault("broker.retry.max_attempts", 3)
	v.SetDefault("broker.retry.initial_interval", "200ms")
	v.SetDefault("broker.retry.max_interval", "5s")
	v.SetDefault("broker.retry.multiplier", 2.0)

	v.SetDefault("runtime.type", "mock")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("onebot.self_id", "ONEBOT_SELF_ID")
	v.BindEnv("onebot.access_token", "ONEBOT_ACCESS_TOKEN")
	v.BindEnv("onebot.secret", "ONEBOT_SECRET")
	v.BindEnv("onebot.event_filter", "ONEBOT_EVENT_FILTER")

	v.BindEnv("broker.redis.host", "BROKER_REDIS_HOST")
	v.BindEnv("broker.redis.port", "BROKER_REDIS_PORT")
	v.BindEnv("broker.redis.password", "BROKER_REDIS_PASSWORD")

	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
}

// applyEnvOverrides handles list-valued settings, which viper does not split
// from a single environment variable.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if urls := splitList(v.GetString("REVERSE_URLS")); len(urls) > 0 {
		cfg.Reverse.URLs = urls
	}
	if urls := splitList(v.GetString("WEBHOOK_URLS")); len(urls) > 0 {
		cfg.Webhook.URLs = urls
	}
	if brokers := splitList(v.GetString("BROKER_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Broker.Kafka.Brokers = brokers
	}
	if endpoint := v.GetString("TRACING_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.OTLP.Endpoint = endpoint
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
