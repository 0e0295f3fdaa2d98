package config

import (
	"time"
)

type Config struct {
	Server    ServerConfig
	OneBot    OneBotConfig    `mapstructure:"onebot"`
	Reverse   ReverseConfig   `mapstructure:"reverse"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Logging   LoggingConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	UseHTTP      bool          `mapstructure:"use_http"`
	UseWS        bool          `mapstructure:"use_ws"`
	EnableCORS   bool          `mapstructure:"enable_cors"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Enabled reports whether the inbound listener has anything to serve.
func (c ServerConfig) Enabled() bool {
	return c.UseHTTP || c.UseWS
}

type OneBotConfig struct {
	SelfID            int64         `mapstructure:"self_id"`
	AccessToken       string        `mapstructure:"access_token"`
	Secret            string        `mapstructure:"secret"`
	PostMessageFormat string        `mapstructure:"post_message_format"`
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`
	EventFilter       string        `mapstructure:"event_filter"`
	EnableHeartbeat   bool          `mapstructure:"enable_heartbeat"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type ReverseConfig struct {
	URLs                 []string      `mapstructure:"urls"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	ReconnectStrategy    string        `mapstructure:"reconnect_strategy"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
}

type WebhookConfig struct {
	URLs           []string             `mapstructure:"urls"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
	Redis RedisConfig `mapstructure:"redis"`
	Retry RetryConfig `mapstructure:"retry"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type RuntimeConfig struct {
	Type string `mapstructure:"type"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
