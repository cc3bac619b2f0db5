// Package server wires the resilience control plane into an HTTP service:
// the admission gate in front of every route, the breaker-protected upstream
// call behind the demo endpoint, and the metrics/admin surfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/halcyonlabs/resilgate/internal/breaker"
	"github.com/halcyonlabs/resilgate/internal/config"
	"github.com/halcyonlabs/resilgate/internal/ratelimit"
)

// Server holds the wired control-plane components.
type Server struct {
	logger   *zap.Logger
	cfg      *config.Config
	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	client   *http.Client
}

// New creates the server over an already-constructed limiter and registry.
func New(cfg *config.Config, limiter *ratelimit.Limiter, breakers *breaker.Registry, logger *zap.Logger) *Server {
	return &Server{
		logger:   logger,
		cfg:      cfg,
		limiter:  limiter,
		breakers: breakers,
		// Transport-level timeout stays above the breaker's call timeout so
		// the breaker, not the client, decides when a call is too slow.
		client: &http.Client{Timeout: 2 * cfg.Breaker.Defaults.CallTimeout},
	}
}

// Router builds the gin engine with the full middleware chain.
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(RequestID())
	router.Use(cors.Default())
	router.Use(s.limiter.Middleware(ratelimit.GateOptions{
		ExemptPaths:     s.cfg.RateLimit.ExemptPaths,
		AllowPrivateIPs: s.cfg.RateLimit.AllowPrivateIPs,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := router.Group("/admin")
	{
		admin.GET("/ratelimit/status", s.handleRateLimitStatus)
		admin.GET("/breakers", s.handleListBreakers)
		admin.GET("/breakers/:name", s.handleGetBreaker)
		admin.POST("/breakers/:name/reset", s.handleResetBreaker)
	}

	api := router.Group("/api/v1")
	{
		api.GET("/fetch", s.handleFetch)
	}

	return router
}

// handleFetch proxies the configured upstream through its circuit breaker.
func (s *Server) handleFetch(c *gin.Context) {
	br := s.breakers.GetOrCreate(s.cfg.Upstream.Name)
	call := breaker.NewProtected[[]byte](br)

	body, err := call.Call(c.Request.Context(), func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Upstream.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("upstream %s returned %d", s.cfg.Upstream.Name, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	})
	if err != nil {
		s.renderCallError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", body)
}

// renderCallError maps breaker errors onto gateway status codes.
func (s *Server) renderCallError(c *gin.Context, err error) {
	var coe *breaker.CircuitOpenError
	switch {
	case errors.As(err, &coe):
		c.Header("Retry-After", fmt.Sprintf("%d", ceilSeconds(coe.RetryAfter)))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "CIRCUIT_OPEN",
			"message": err.Error(),
		})
	case breaker.IsCallTimeout(err):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   "UPSTREAM_TIMEOUT",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "UPSTREAM_FAILURE",
			"message": err.Error(),
		})
	}
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
