// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/api/health"
	"github.com/good-yellow-bee/nurserywatch/internal/monitor"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address string
	// TestRateLimit bounds test notifications per client per minute.
	TestRateLimit     int
	TestRateBurst     int
	RequestTimeout    time.Duration // Timeout for storage-backed API calls
	StreamMaxDuration time.Duration // Max lifetime for live update streams
	StreamKeepAlive   time.Duration // Comment interval on idle streams
	MetricsEnabled    bool          // Serve /metrics on the API listener
	Verbose           bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.TestRateLimit == 0 {
		c.TestRateLimit = 6
	}
	if c.TestRateBurst == 0 {
		c.TestRateBurst = 2
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.StreamMaxDuration == 0 {
		c.StreamMaxDuration = 30 * time.Minute
	}
	if c.StreamKeepAlive == 0 {
		c.StreamKeepAlive = 15 * time.Second
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	monitor       *monitor.Monitor
	logger        *zap.Logger
	server        *http.Server
	handler       http.Handler
	healthHandler *health.Handler
}

// New creates a new API server.
func New(cfg *Config, mon *monitor.Monitor, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if mon == nil {
		return nil, fmt.Errorf("monitor is required")
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		monitor:       mon,
		logger:        logger.Named("api"),
		healthHandler: health.NewHandler(),
	}
	s.handler = s.setupRouter()

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0 because /api/v1/stream holds connections open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
