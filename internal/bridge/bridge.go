// Package bridge wires the runtime to every transport and owns their
// start/stop lifecycle.
package bridge

import (
	"context"
	"sync"
	"time"

	"onebridge/internal/action"
	"onebridge/internal/config"
	"onebridge/internal/constants"
	"onebridge/internal/dispatch"
	"onebridge/internal/event"
	"onebridge/internal/filter"
	"onebridge/internal/logger"
	"onebridge/internal/queue"
	"onebridge/internal/quickop"
	"onebridge/internal/reverse"
	"onebridge/internal/runtime"
	"onebridge/internal/server"
	"onebridge/internal/sink"
	"onebridge/pkg/circuitbreaker"
	"onebridge/pkg/health"
	"onebridge/pkg/logging"
)

type Bridge struct {
	cfg    *config.Config
	rt     runtime.Runtime
	logger logger.Logger

	sinks      *sink.Set
	queue      *queue.Queue
	quick      *quickop.Executor
	router     *action.Router
	dispatcher *dispatch.Dispatcher
	reverse    *reverse.Manager
	server     *server.Server

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// New builds the bridge for rt. publishers receive every forwarded event in
// addition to sockets and webhooks; checks is exposed on /health.
func New(cfg *config.Config, rt runtime.Runtime, publishers []dispatch.Publisher, checks *health.CheckerRegistry, log logger.Logger) *Bridge {
	ob := cfg.OneBot
	interval := ob.RateLimitInterval
	if interval <= 0 {
		interval = constants.DefaultRateLimitInterval
	}

	b := &Bridge{
		cfg:    cfg,
		rt:     rt,
		logger: log,
		sinks:  sink.NewSet(),
	}
	b.queue = queue.New(rt, interval, log)
	b.quick = quickop.NewExecutor(rt, log)
	b.router = action.NewRouter(rt, b.queue, b.quick, b.restartAsync, log)

	dcfg := dispatch.Config{
		SelfID:        rt.SelfID(),
		Secret:        ob.Secret,
		MessageFormat: ob.PostMessageFormat,
		Webhooks:      cfg.Webhook.URLs,
		Timeout:       cfg.Webhook.Timeout,
	}
	if cb := cfg.Webhook.CircuitBreaker; cb.Enabled {
		bc := circuitbreaker.DefaultConfig("webhook")
		if cb.MaxRequests > 0 {
			bc.MaxRequests = cb.MaxRequests
		}
		if cb.Interval > 0 {
			bc.Interval = cb.Interval
		}
		if cb.Timeout > 0 {
			bc.Timeout = cb.Timeout
		}
		if cb.FailureRatio > 0 {
			bc.FailureRatio = cb.FailureRatio
		}
		if cb.MinRequests > 0 {
			bc.MinRequests = cb.MinRequests
		}
		dcfg.Breaker = &bc
	}
	b.dispatcher = dispatch.New(dcfg, b.sinks, b.quick, publishers, log)

	b.reverse = reverse.NewManager(reverse.Config{
		URLs:                 cfg.Reverse.URLs,
		SelfID:               rt.SelfID(),
		AccessToken:          ob.AccessToken,
		ReconnectStrategy:    cfg.Reverse.ReconnectStrategy,
		ReconnectInterval:    cfg.Reverse.ReconnectInterval,
		MaxReconnectInterval: cfg.Reverse.MaxReconnectInterval,
	}, b.sinks, b.router.HandleFrame, log)

	if cfg.Server.Enabled() {
		serviceName := cfg.Tracing.ServiceName
		if serviceName == "" {
			serviceName = constants.ServiceName
		}
		b.server = server.New(server.Options{
			Server:      cfg.Server,
			AccessToken: ob.AccessToken,
			SelfID:      rt.SelfID(),
			RateLimit:   cfg.RateLimit,
			Tracing:     cfg.Tracing.Enabled,
			ServiceName: serviceName,
		}, b.router, b.sinks, checks, log)
	}
	return b
}

// Router exposes the action router, e.g. for embedding runtimes that call
// actions in-process.
func (b *Bridge) Router() *action.Router { return b.router }

func (b *Bridge) Sinks() *sink.Set { return b.sinks }

func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start enables dispatch, opens reverse connections and the inbound
// listener. A filter file that fails to load is logged and ignored. Start
// on a running bridge is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	ctx = logging.WithSelfID(ctx, b.rt.SelfID())
	b.loadFilter(ctx)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.running = true

	b.dispatcher.Broadcast(runCtx, event.Lifecycle(b.rt.SelfID(), event.LifecycleEnable))

	if ob := b.cfg.OneBot; ob.EnableHeartbeat {
		interval := ob.HeartbeatInterval
		if interval <= 0 {
			interval = constants.DefaultHeartbeatInterval
		}
		b.workers.Add(1)
		go b.heartbeat(runCtx, interval)
	}

	if src, ok := b.rt.(runtime.EventSource); ok {
		b.workers.Add(1)
		go b.consume(runCtx, src.Events())
	}

	b.reverse.Start(runCtx)

	if b.server != nil {
		if err := b.server.Start(); err != nil {
			b.logger.ErrorwCtx(ctx, "Failed to start API server", "error", err)
		}
	}

	b.logger.InfowCtx(ctx, "Bridge started",
		"reverse_urls", len(b.cfg.Reverse.URLs),
		"webhooks", len(b.cfg.Webhook.URLs),
	)
	return nil
}

// Stop announces the disable lifecycle event while sockets are still open,
// then tears down heartbeat, reverse sockets, forward sockets and the
// listener in that order.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}

	b.dispatcher.Broadcast(ctx, event.Lifecycle(b.rt.SelfID(), event.LifecycleDisable))
	b.running = false

	b.cancel()
	b.workers.Wait()

	b.reverse.Stop()

	var err error
	if b.server != nil {
		err = b.server.Shutdown(ctx)
	}

	b.logger.InfowCtx(ctx, "Bridge stopped")
	return err
}

// Restart stops and starts the bridge, re-reading the filter file.
func (b *Bridge) Restart(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()
	if err := b.Stop(stopCtx); err != nil {
		b.logger.WarnwCtx(ctx, "Bridge stop during restart incomplete", "error", err)
	}
	return b.Start(ctx)
}

// Close stops the bridge for good and waits for outstanding webhook posts
// and queued calls.
func (b *Bridge) Close(ctx context.Context) error {
	err := b.Stop(ctx)
	b.queue.Close()

	done := make(chan struct{})
	go func() {
		b.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Dispatch forwards an event from the runtime. Events arriving while the
// bridge is stopped are dropped.
func (b *Bridge) Dispatch(ctx context.Context, ev event.Event) {
	if !b.Running() {
		return
	}
	b.dispatcher.Dispatch(ctx, ev)
}

func (b *Bridge) restartAsync() {
	if err := b.Restart(context.Background()); err != nil {
		b.logger.Errorw("Bridge restart failed", "error", err)
	}
}

func (b *Bridge) loadFilter(ctx context.Context) {
	path := b.cfg.OneBot.EventFilter
	if path == "" {
		b.dispatcher.SetFilter(nil)
		return
	}
	rule, err := filter.LoadFile(path)
	if err != nil {
		b.dispatcher.SetFilter(nil)
		b.logger.ErrorwCtx(ctx, "Failed to load event filter, forwarding every event",
			"path", path,
			"error", err,
		)
		return
	}
	b.dispatcher.SetFilter(rule)
	b.logger.InfowCtx(ctx, "Event filter loaded", "path", path)
}

func (b *Bridge) heartbeat(ctx context.Context, interval time.Duration) {
	defer b.workers.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.dispatcher.Broadcast(ctx, event.Heartbeat(b.rt.SelfID(), interval, nil))
		}
	}
}

func (b *Bridge) consume(ctx context.Context, events <-chan event.Event) {
	defer b.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.dispatcher.Dispatch(ctx, ev)
		}
	}
}
