// Package bootstrap holds the process-level pieces every onebridge binary
// shares: config, logger, event publishers and their health checks.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"onebridge/internal/broker"
	"onebridge/internal/config"
	"onebridge/internal/logger"
	"onebridge/pkg/health"
)

type Base struct {
	Config     *config.Config
	Logger     logger.Logger
	Publishers []broker.Publisher
	Health     *health.CheckerRegistry
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
		Health: health.NewCheckerRegistry(),
	}
}

// InitPublishers builds the enabled broker publishers and registers a health
// check for each. An unreachable broker is logged, not fatal: publishes are
// retried and dropped independently of the bridge.
func (b *Base) InitPublishers(ctx context.Context) {
	b.Publishers = broker.NewPublishers(b.Config.Broker, b.Config.OneBot.SelfID, b.Logger)
	for _, p := range b.Publishers {
		if rp, ok := p.(*broker.RedisPublisher); ok {
			b.Health.Register(health.NewRedisChecker(rp.Client()))
		} else {
			b.Health.Register(health.NewFuncChecker(p.Name(), p.Check))
		}
		if err := p.Check(ctx); err != nil {
			b.Logger.WarnwCtx(ctx, "Event publisher not reachable yet",
				"broker", p.Name(),
				"error", err,
			)
		}
	}
}

func (b *Base) ShutdownPublishers() []error {
	if err := broker.CloseAll(b.Publishers); err != nil {
		return []error{fmt.Errorf("publisher close error: %w", err)}
	}
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}
	errs = append(errs, b.ShutdownPublishers()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
