// Package api exposes the pipeline over HTTP: statement upload, analysis,
// the combined plan endpoint and read-only stage, market and run views.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/finadvisor/internal/db"
	"github.com/ajitpratap0/finadvisor/internal/extractor"
	"github.com/ajitpratap0/finadvisor/internal/metrics"
	"github.com/ajitpratap0/finadvisor/internal/orchestrator"
	"github.com/ajitpratap0/finadvisor/internal/risk"
)

// DefaultMaxUploadSize bounds statement uploads (10MB)
const DefaultMaxUploadSize = 10 * 1024 * 1024

// RunStore reads persisted run summaries
type RunStore interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*db.RunSummary, error)
	RecentRuns(ctx context.Context, limit int) ([]db.RunSummary, error)
}

// Server represents the REST API server
type Server struct {
	router    *gin.Engine
	pipeline  *orchestrator.Pipeline
	extractor orchestrator.Extractor
	breakers  *risk.BreakerManager
	runs      RunStore
	version   string
	maxUpload int64
	addr      string
	server    *http.Server
}

// Config contains server configuration
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	MaxUploadSize  int64
	Version        string

	Pipeline  *orchestrator.Pipeline
	Extractor orchestrator.Extractor
	// Breakers is optional; stage views include breaker state when set
	Breakers *risk.BreakerManager
	// Runs is optional; run history endpoints answer 503 without it
	Runs RunStore
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	maxUpload := config.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}
	ext := config.Extractor
	if ext == nil {
		ext = extractor.New(extractor.RulePAN)
	}
	pipeline := config.Pipeline
	if pipeline == nil {
		pipeline = orchestrator.New(orchestrator.Config{}, orchestrator.Dependencies{Extractor: ext})
	}

	server := &Server{
		router:    router,
		pipeline:  pipeline,
		extractor: ext,
		breakers:  config.Breakers,
		runs:      config.Runs,
		version:   config.Version,
		maxUpload: maxUpload,
		addr:      fmt.Sprintf("%s:%d", config.Host, config.Port),
	}

	server.setupRoutes()

	return server
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server; it blocks until the server stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin. Form values and
// bodies are never logged; they can carry passwords and identity data.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
