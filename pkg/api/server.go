// Package api exposes the HTTP surface: moderation serving, routing stats,
// health, and prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/modelmux/pkg/cache"
	"github.com/codeready-toolchain/modelmux/pkg/moderation"
	"github.com/codeready-toolchain/modelmux/pkg/ratelimit"
	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

// Server is the API server.
type Server struct {
	moderation *moderation.Service
	store      *telemetry.Store
	cache      cache.Adapter
	limiter    *ratelimit.Limiter
	registry   *prometheus.Registry
	logger     *slog.Logger

	http *http.Server
}

// NewServer wires the handlers. registry may be nil to skip the /metrics
// endpoint.
func NewServer(
	svc *moderation.Service,
	store *telemetry.Store,
	cacheAdapter cache.Adapter,
	limiter *ratelimit.Limiter,
	registry *prometheus.Registry,
) *Server {
	return &Server{
		moderation: svc,
		store:      store,
		cache:      cacheAdapter,
		limiter:    limiter,
		registry:   registry,
		logger:     slog.Default().With("component", "api"),
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	router.GET("/health", s.Health)
	if s.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			s.registry, promhttp.HandlerOpts{})))
	}

	limited := router.Group("/", rateLimitMiddleware(s.limiter))
	limited.POST("/moderation", s.Moderate)
	limited.GET("/moderation", s.ModerationMetrics)
	limited.GET("/model-router/stats", s.RouterStats)

	return router
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
