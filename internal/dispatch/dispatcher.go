// Package dispatch fans runtime events out to every configured consumer:
// open sockets, broker publishers and webhooks.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"onebridge/internal/constants"
	"onebridge/internal/event"
	"onebridge/internal/filter"
	"onebridge/internal/logger"
	"onebridge/internal/quickop"
	"onebridge/internal/sink"
	"onebridge/pkg/circuitbreaker"
	"onebridge/pkg/metrics"
	"onebridge/pkg/tracing"
)

// Publisher forwards serialized events to an external broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, postType string, payload []byte) error
}

// QuickApplier runs the quick operation a webhook answered with.
type QuickApplier interface {
	Apply(ctx context.Context, ev event.Event, op quickop.Operation)
}

type Config struct {
	SelfID        int64
	Secret        string
	MessageFormat string
	Webhooks      []string
	Timeout       time.Duration
	// Breaker, when set, guards each webhook URL with its own circuit
	// breaker built from this template.
	Breaker *circuitbreaker.Config
}

type Dispatcher struct {
	cfg        Config
	rule       atomic.Pointer[filter.Rule]
	sinks      *sink.Set
	publishers []Publisher
	webhooks   []*webhook
	logger     logger.Logger

	inflight sync.WaitGroup
}

func New(cfg Config, sinks *sink.Set, quick QuickApplier, publishers []Publisher, log logger.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultWebhookTimeout
	}

	d := &Dispatcher{
		cfg:        cfg,
		sinks:      sinks,
		publishers: publishers,
		logger:     log,
	}
	for _, url := range cfg.Webhooks {
		d.webhooks = append(d.webhooks, newWebhook(url, cfg, quick, log))
	}
	return d
}

// SetFilter installs the rule events must match to be forwarded. nil
// forwards everything.
func (d *Dispatcher) SetFilter(rule *filter.Rule) {
	d.rule.Store(rule)
}

// Dispatch forwards a runtime event that passes the filter to every
// consumer and returns without waiting for any of them. Failures are logged
// per consumer.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) {
	d.dispatch(ctx, ev, true)
}

// Broadcast forwards an event the bridge generated itself (lifecycle,
// heartbeat). The filter does not apply to it.
func (d *Dispatcher) Broadcast(ctx context.Context, ev event.Event) {
	d.dispatch(ctx, ev, false)
}

func (d *Dispatcher) dispatch(ctx context.Context, ev event.Event, filtered bool) {
	start := time.Now()
	postType := ev.Kind()

	ctx, span := tracing.StartSpan(ctx, "dispatch "+postType)
	defer span.End()

	if m, ok := ev.(event.Message); ok && d.cfg.MessageFormat == constants.MessageFormatString {
		ev = m.WithStringMessage()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		metrics.EventsDispatchedTotal.WithLabelValues(postType, "error").Inc()
		d.logger.ErrorwCtx(ctx, "Failed to encode event",
			"post_type", postType,
			"error", err,
		)
		return
	}

	if rule := d.rule.Load(); filtered && rule != nil && !filter.MatchesJSON(rule, payload) {
		metrics.EventsDispatchedTotal.WithLabelValues(postType, "filtered").Inc()
		span.SetAttributes(attribute.Bool("onebot.filtered", true))
		return
	}

	d.toSinks(ctx, payload)
	d.toPublishers(ctx, postType, payload)
	d.toWebhooks(ctx, ev, payload)

	metrics.EventsDispatchedTotal.WithLabelValues(postType, "forwarded").Inc()
	metrics.ObserveDispatchDuration(postType, time.Since(start))
}

// Wait blocks until webhook posts and publishes started so far have
// finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) toSinks(ctx context.Context, payload []byte) {
	for _, s := range d.sinks.Snapshot() {
		if err := s.Send(payload); err != nil {
			d.logger.WarnwCtx(ctx, "Failed to send event to sink",
				"connection", s.ID(),
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) toPublishers(ctx context.Context, postType string, payload []byte) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range d.publishers {
		d.inflight.Add(1)
		go func(p Publisher) {
			defer d.inflight.Done()
			if err := p.Publish(ctx, postType, payload); err != nil {
				d.logger.ErrorwCtx(ctx, "Failed to publish event",
					"broker", p.Name(),
					"post_type", postType,
					"error", err,
				)
			}
		}(p)
	}
}

func (d *Dispatcher) toWebhooks(ctx context.Context, ev event.Event, payload []byte) {
	ctx = context.WithoutCancel(ctx)
	for _, w := range d.webhooks {
		d.inflight.Add(1)
		go func(w *webhook) {
			defer d.inflight.Done()
			w.post(ctx, ev, payload)
		}(w)
	}
}
