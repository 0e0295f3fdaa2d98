package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebridge_events_dispatched_total",
			Help: "Total number of runtime events handled by the dispatcher (count)",
		},
		[]string{"post_type", "status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onebridge_dispatch_duration_ms",
			Help:    "Time spent filtering and fanning out one event in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100},
		},
		[]string{"post_type"},
	)

	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebridge_actions_total",
			Help: "Total number of controller actions routed (count)",
		},
		[]string{"mode", "status"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onebridge_action_duration_ms",
			Help:    "Duration of synchronous runtime calls in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"method"},
	)

	QueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onebridge_queue_size",
			Help: "Number of rate-limited calls waiting in the queue (count)",
		},
	)

	QueueTasksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onebridge_queue_tasks_total",
			Help: "Total number of rate-limited calls started by the queue consumer (count)",
		},
	)

	QuickOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebridge_quick_operations_total",
			Help: "Total number of runtime calls issued for quick operations (count)",
		},
		[]string{"method"},
	)

	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebridge_webhook_requests_total",
			Help: "Total number of webhook posts (count)",
		},
		[]string{"status"},
	)

	WebhookDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onebridge_webhook_duration_ms",
			Help:    "Duration of webhook posts in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)

	ActiveSinks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "onebridge_active_sinks",
			Help: "Number of open event sinks (count)",
		},
		[]string{"kind"},
	)

	SinkDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onebridge_sink_dropped_total",
			Help: "Total number of outbound frames dropped because a sink buffer was full (count)",
		},
	)

	ReverseConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebridge_reverse_connects_total",
			Help: "Total number of reverse websocket connection attempts (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	PublishedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebridge_published_events_total",
			Help: "Total number of events handed to a broker publisher (count)",
		},
		[]string{"broker", "status"},
	)

	PublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onebridge_publish_duration_ms",
			Help:    "Duration of broker publishes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"broker"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EventsDispatchedTotal,
			DispatchDuration,
			ActionsTotal,
			ActionDuration,
			QueueSize,
			QueueTasksTotal,
			QuickOperationsTotal,
			WebhookRequestsTotal,
			WebhookDuration,
			ActiveSinks,
			SinkDroppedTotal,
			ReverseConnectsTotal,
			RetryAttemptsTotal,
			PublishedEventsTotal,
			PublishDuration,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
		)
	})
}

func SetQueueSize(size int) {
	QueueSize.Set(float64(size))
}

func ObserveDispatchDuration(postType string, duration time.Duration) {
	DispatchDuration.WithLabelValues(postType).Observe(float64(duration.Microseconds()) / 1000)
}

func ObserveActionDuration(method string, duration time.Duration) {
	ActionDuration.WithLabelValues(method).Observe(float64(duration.Milliseconds()))
}

func ObserveWebhookDuration(duration time.Duration) {
	WebhookDuration.Observe(float64(duration.Milliseconds()))
}

func ObservePublishDuration(broker string, duration time.Duration) {
	PublishDuration.WithLabelValues(broker).Observe(float64(duration.Milliseconds()))
}
