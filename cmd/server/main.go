// Command server is the ops-only bootstrap for the observation serving
// engine: it loads configuration, wires the engine, and exposes a
// health/metrics HTTP surface. The query-serving surface (values,
// makeQuery, getStations, ...) is consumed by an embedding process via
// the internal/engine package directly; it is not exposed over HTTP
// here, per this system's stated scope.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fmiobs/obsengine/internal/config"
	"github.com/fmiobs/obsengine/internal/engine"
)

const (
	defaultPort            = "8080"
	defaultGracefulTimeout = 30 * time.Second

	// opsRateLimit bounds scrape/probe traffic on this narrow ops
	// surface; it is generous enough that no well-behaved monitoring
	// system trips it.
	opsRateLimit      = 20 // requests per second
	opsRateLimitBurst = 40
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting observation serving engine")

	cfgPath := os.Getenv("OBSENGINE_CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to construct engine", zap.Error(err))
	}

	// The geographic name-resolution service is an external collaborator
	// this system treats as given (spec.md §1); running without one
	// simply leaves preloaded stations' country/region/iso2 fields blank.
	eng.SetGeonames(nil)

	if err := eng.Start(ctx); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}

	metricsRegistry := setupMetrics()
	router := setupRouter(eng, metricsRegistry)

	port := defaultPort
	if envPort := os.Getenv("OBSENGINE_PORT"); envPort != "" {
		port = envPort
	}
	addr := fmt.Sprintf(":%s", port)
	server := &http.Server{Addr: addr, Handler: router}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("ops HTTP server listening", zap.String("address", addr))
		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			logger.Fatal("ops HTTP server listen error", zap.Error(srvErr))
		}
	}()

	sig := <-quit
	logger.Info("caught signal, shutting down", zap.String("signal", sig.String()))
	gracefulShutdown(server, eng, logger)
}

// setupMetrics builds the Prometheus registry the /metrics endpoint
// serves, registering the standard Go process collector.
func setupMetrics() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

// setupRouter configures the ops-only surface: liveness/readiness and
// metrics. Gin is kept for this narrow surface purely because the
// metrics/health pattern it supports is already idiomatic here; no
// query-serving route is registered.
func setupRouter(eng *engine.Engine, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(rateLimitMiddleware(opsRateLimit, opsRateLimitBurst))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		if !eng.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return router
}

// rateLimitMiddleware bounds ops-surface request rate with a single
// shared token bucket, matching the teacher's rate-limited-HTTP-surface
// idiom without that surface's per-spec configurable limit string (this
// surface has no caller-facing SLA to parse one from).
func rateLimitMiddleware(perSecond float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// gracefulShutdown stops accepting new HTTP connections, then drains the
// engine: the reconciliation loops stop, the session pool and local
// store close.
func gracefulShutdown(server *http.Server, eng *engine.Engine, logger *zap.Logger) {
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		logger.Error("ops HTTP server shutdown encountered an error", zap.Error(err))
	}

	eng.Shutdown()

	logger.Info("graceful shutdown complete")
}
