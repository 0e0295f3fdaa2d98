// Package reverse keeps the bridge's outbound websocket connections to
// controllers open, reconnecting after failures until the bridge stops.
package reverse

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"onebridge/internal/constants"
	"onebridge/internal/logger"
	"onebridge/internal/sink"
	"onebridge/pkg/logging"
	"onebridge/pkg/metrics"
	"onebridge/pkg/retry"
	"onebridge/pkg/tracing"
)

type Config struct {
	URLs                 []string
	SelfID               int64
	AccessToken          string
	ReconnectStrategy    string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
}

// run is one start-to-stop lifetime of the manager. A connection or timer
// belonging to a run that is no longer current must not reconnect.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
}

type Manager struct {
	cfg     Config
	sinks   *sink.Set
	handler sink.Handler
	dialer  *websocket.Dialer
	logger  logger.Logger

	current atomic.Pointer[run]
	wg      sync.WaitGroup
}

func NewManager(cfg Config, sinks *sink.Set, handler sink.Handler, log logger.Logger) *Manager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = constants.DefaultReconnectInterval
	}
	return &Manager{
		cfg:     cfg,
		sinks:   sinks,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.SocketHandshakeTimeout,
		},
		logger: log,
	}
}

// Start opens one connection per configured URL. Calling Start again
// supersedes the previous run.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{ctx: ctx, cancel: cancel, started: time.Now()}
	if old := m.current.Swap(r); old != nil {
		old.cancel()
	}

	for _, url := range m.cfg.URLs {
		m.wg.Add(1)
		go m.maintain(r, url)
	}
}

// Stop invalidates the current run, which closes its connections and
// cancels pending reconnects, then waits for them to finish.
func (m *Manager) Stop() {
	r := m.current.Swap(nil)
	if r == nil {
		return
	}
	r.cancel()
	m.wg.Wait()
	m.logger.Infow("Reverse connections stopped", "uptime", time.Since(r.started))
}

func (m *Manager) isCurrent(r *run) bool {
	return m.current.Load() == r && r.ctx.Err() == nil
}

func (m *Manager) maintain(r *run, url string) {
	defer m.wg.Done()

	b := retry.Reconnect(m.cfg.ReconnectStrategy, m.cfg.ReconnectInterval, m.cfg.MaxReconnectInterval)
	for {
		if !m.isCurrent(r) {
			return
		}
		if m.session(r, url) {
			b.Reset()
		}

		if !m.isCurrent(r) {
			return
		}
		delay := b.NextBackOff()
		m.logger.Infow("Scheduling reverse reconnect",
			"url", url,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials url and serves the connection until it closes. It reports
// whether the connection was opened at all.
func (m *Manager) session(r *run, url string) bool {
	ctx := logging.WithConnection(r.ctx, sink.KindReverse+":"+url)

	dialCtx, cancel := context.WithTimeout(ctx, constants.SocketHandshakeTimeout)
	ws, resp, err := m.dialer.DialContext(dialCtx, url, m.headers(ctx))
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		metrics.ReverseConnectsTotal.WithLabelValues("failed").Inc()
		m.logger.WarnwCtx(ctx, "Reverse connection failed", "error", err)
		return false
	}
	metrics.ReverseConnectsTotal.WithLabelValues("opened").Inc()

	conn := sink.NewConn(ws, sink.KindReverse, url, m.logger)
	m.logger.InfowCtx(ctx, "Reverse connection opened")
	sink.Attach(ctx, m.sinks, conn, m.cfg.SelfID, m.logger)
	defer m.sinks.Remove(conn.ID())

	if err := conn.Serve(ctx, m.handler); err != nil {
		m.logger.WarnwCtx(ctx, "Reverse connection closed", "error", err)
	} else {
		m.logger.InfowCtx(ctx, "Reverse connection closed")
	}
	return true
}

func (m *Manager) headers(ctx context.Context) http.Header {
	h := http.Header{}
	h.Set(constants.HeaderSelfID, strconv.FormatInt(m.cfg.SelfID, 10))
	h.Set(constants.HeaderClientRole, constants.ClientRole)
	h.Set(constants.HeaderUserAgent, constants.UserAgent)
	if m.cfg.AccessToken != "" {
		h.Set(constants.HeaderAuthorization, "Bearer "+m.cfg.AccessToken)
	}
	tracing.InjectHTTPHeaders(ctx, h)
	return h
}
