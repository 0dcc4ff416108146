// Package gateway exposes the offline cache worker over HTTP: site traffic
// served through the worker's fetch handler, the control channel, health,
// and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/offline-gateway/internal/config"
	"github.com/jonesrussell/offline-gateway/internal/logger"
	"github.com/jonesrussell/offline-gateway/internal/telemetry"
)

// Default timeout values for the HTTP server.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// Server wraps the HTTP server with graceful shutdown.
type Server struct {
	srv             *http.Server
	log             logger.Logger
	shutdownTimeout time.Duration
}

// NewServer builds the gin engine and HTTP server for the gateway.
func NewServer(cfg *config.Config, handler *Handler, metrics *telemetry.Metrics, log logger.Logger) *Server {
	if cfg.Service.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORS))

	registerRoutes(router, cfg, handler, metrics)

	return &Server{
		srv: &http.Server{
			Addr:         cfg.Service.Address(),
			Handler:      router,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		log:             log,
		shutdownTimeout: cfg.Service.ShutdownTimeout,
	}
}

func registerRoutes(router *gin.Engine, cfg *config.Config, handler *Handler, metrics *telemetry.Metrics) {
	startTime := time.Now()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.Service.Name,
			"version": cfg.Service.Version,
			"uptime":  time.Since(startTime).Round(time.Second).String(),
		})
	})
	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	ctrl := router.Group("/worker")
	{
		ctrl.POST("/skip-waiting", handler.SkipWaiting)
		ctrl.GET("/version", handler.Version)
		ctrl.POST("/clean-cache", handler.CleanCache)
		ctrl.GET("/status", handler.Status)
	}

	// Everything else is site traffic through the cache worker.
	router.NoRoute(handler.Serve)
}

// Run starts the server and blocks until SIGINT, SIGTERM, or context
// cancellation, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", logger.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		s.log.Info("Shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
		s.log.Info("Context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("HTTP server stopped gracefully")
	return nil
}
