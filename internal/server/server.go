// Package server exposes the bridge to controllers that connect to it: the
// HTTP action API and the forward websocket, both on one listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"onebridge/internal/config"
	"onebridge/internal/constants"
	"onebridge/internal/logger"
	"onebridge/internal/protocol"
	"onebridge/internal/sink"
	"onebridge/pkg/health"
	"onebridge/pkg/middleware"
	"onebridge/pkg/ratelimit"
	"onebridge/pkg/tracing"
)

// Router is the part of the action router the transports need.
type Router interface {
	Apply(ctx context.Context, req protocol.Request) (protocol.Response, error)
	HandleFrame(ctx context.Context, frame []byte) []byte
}

type Options struct {
	Server      config.ServerConfig
	AccessToken string
	SelfID      int64
	RateLimit   config.RateLimitConfig
	Tracing     bool
	ServiceName string
}

type Server struct {
	opts     Options
	router   Router
	sinks    *sink.Set
	health   *health.CheckerRegistry
	limiter  *ratelimit.Limiter
	upgrader websocket.Upgrader
	engine   *gin.Engine
	logger   logger.Logger

	mu     sync.Mutex
	srv    *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

func New(opts Options, router Router, sinks *sink.Set, checks *health.CheckerRegistry, log logger.Logger) *Server {
	if checks == nil {
		checks = health.NewCheckerRegistry()
	}
	s := &Server{
		opts:   opts,
		router: router,
		sinks:  sinks,
		health: checks,
		logger: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if opts.RateLimit.Enabled {
		s.limiter = ratelimit.New(ratelimit.RateLimitConfig{
			RPS:             opts.RateLimit.RPS,
			Burst:           opts.RateLimit.Burst,
			CleanupInterval: time.Duration(opts.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(opts.RateLimit.MaxAge) * time.Second,
		})
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.engine = s.routes()
	return s
}

// Handler returns the gin engine, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(s.logger))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware(s.logger))
	if s.opts.Tracing {
		r.Use(tracing.GinMiddleware(s.opts.ServiceName))
	}
	if s.limiter != nil {
		r.Use(s.limiter.Middleware())
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	chain := []gin.HandlerFunc{s.upgrade, s.requireHTTP}
	if s.opts.Server.EnableCORS {
		chain = append(chain, middleware.CORSMiddleware())
	}
	chain = append(chain, s.authenticate, s.handleAction)
	r.NoRoute(chain...)

	return r
}

// Start binds the listener and serves in the background. It fails only
// when the address cannot be bound.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.opts.Server.Host, s.opts.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.srv = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.Server.ReadTimeout,
		WriteTimeout: s.opts.Server.WriteTimeout,
	}
	srv, runCtx := s.srv, s.ctx
	s.mu.Unlock()

	if s.limiter != nil {
		go s.limiter.Run(runCtx)
	}

	s.logger.Infow("API server listening",
		"address", ln.Addr().String(),
		"use_http", s.opts.Server.UseHTTP,
		"use_ws", s.opts.Server.UseWS,
	)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("API server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown closes forward sockets and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.sinks.CloseAll(sink.KindForward, websocket.CloseGoingAway, "")

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
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

func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Server) handleHealth(c *gin.Context) {
	h := s.health.Check(c.Request.Context())
	status := http.StatusOK
	if h.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func deadline() time.Time {
	return time.Now().Add(constants.SocketWriteTimeout)
}
