package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"onebridge/internal/bridge"
	"onebridge/internal/config"
	"onebridge/internal/constants"
	"onebridge/internal/dispatch"
	"onebridge/internal/logger"
	"onebridge/internal/runtime"
	"onebridge/internal/runtime/mock"
	"onebridge/pkg/bootstrap"
	"onebridge/pkg/health"
	"onebridge/pkg/metrics"
	"onebridge/pkg/tracing"
)

const runtimeMock = "mock"

type App struct {
	*bootstrap.Base
	runtime        runtime.Runtime
	bridge         *bridge.Bridge
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{Base: bootstrap.NewBase(cfg, log)}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()

	rt, err := newRuntime(a.Config)
	if err != nil {
		return err
	}
	a.runtime = rt

	a.InitPublishers(ctx)
	publishers := make([]dispatch.Publisher, 0, len(a.Publishers))
	for _, p := range a.Publishers {
		publishers = append(publishers, p)
	}

	a.bridge = bridge.New(a.Config, rt, publishers, a.Health, a.Logger)
	a.Health.Register(health.NewFuncChecker("bridge", func(context.Context) error {
		if !a.bridge.Running() {
			return errors.New("bridge is stopped")
		}
		return nil
	}))
	return nil
}

func newRuntime(cfg *config.Config) (runtime.Runtime, error) {
	switch cfg.Runtime.Type {
	case "", runtimeMock:
		return mock.New(cfg.OneBot.SelfID), nil
	default:
		return nil, fmt.Errorf("unsupported runtime type %q", cfg.Runtime.Type)
	}
}

// Run starts the bridge and blocks until ctx is cancelled, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.bridge.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	a.Logger.InfowCtx(ctx, "Service running")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down onebridge")

	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error
		if a.bridge != nil {
			if err := a.bridge.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("bridge shutdown error: %w", err))
			}
		}
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		return errs
	})
}
