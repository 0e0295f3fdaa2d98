package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onebridge/internal/config"
	"onebridge/internal/logger"
	"onebridge/pkg/health"
)

func TestInitPublishersRegistersHealthChecks(t *testing.T) {
	cfg := &config.Config{}
	cfg.Broker.Redis = config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1, Channel: "events"}
	cfg.Broker.Retry = config.RetryConfig{MaxAttempts: 1, InitialInterval: time.Millisecond}

	b := NewBase(cfg, logger.NopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.InitPublishers(ctx)

	require.Len(t, b.Publishers, 1)
	h := b.Health.Check(ctx)
	assert.Equal(t, health.StatusUnhealthy, h.Status)
	assert.Contains(t, h.Checks, "redis")

	assert.NoError(t, b.Shutdown(ctx, nil))
}

func TestShutdownCollectsErrors(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())

	err := b.Shutdown(context.Background(), func(context.Context) []error {
		return []error{assert.AnError}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
