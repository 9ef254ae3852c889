// Package server exposes the operational HTTP endpoints of the indexer:
// Prometheus metrics and a health check reporting indexing progress.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/0xmhha/transfer-indexer/internal/constants"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ProgressReporter reports the next block height to be indexed
type ProgressReporter interface {
	NextHeight(ctx context.Context) (uint64, error)
}

// Config holds the listen address and timeouts
type Config struct {
	Addr            string
	MetricsPath     string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig serves /metrics on :9090
func DefaultConfig() *Config {
	return &Config{
		Addr:            constants.DefaultMetricsAddr,
		MetricsPath:     constants.DefaultMetricsPath,
		ReadTimeout:     constants.DefaultReadTimeout,
		ShutdownTimeout: constants.DefaultShutdownTimeout,
	}
}

// Validate checks the address, path and timeouts
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("listen address is required")
	case !strings.HasPrefix(c.MetricsPath, "/"):
		return fmt.Errorf("metrics path %q must start with /", c.MetricsPath)
	case c.MetricsPath == "/health":
		return errors.New("metrics path collides with /health")
	case c.ReadTimeout <= 0, c.ShutdownTimeout <= 0:
		return errors.New("timeouts must be positive")
	}
	return nil
}

// Server serves /health and the Prometheus registry
type Server struct {
	config   *Config
	logger   *zap.Logger
	progress ProgressReporter
	router   chi.Router
	http     *http.Server
}

// New builds the router. A nil gatherer serves the default registry.
func New(config *Config, progress ProgressReporter, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if progress == nil {
		return nil, errors.New("progress reporter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, recovery(logger), requestLogger(logger))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: http.StatusText(http.StatusNotFound)})
	})

	s := &Server{config: config, logger: logger, progress: progress, router: r}
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, config.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(logger),
	}))

	s.http = &http.Server{
		Addr:              config.Addr,
		Handler:           r,
		ReadHeaderTimeout: config.ReadTimeout,
		ReadTimeout:       config.ReadTimeout,
	}
	return s, nil
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	NextHeight uint64 `json:"next_height"`
	Error      string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}

	height, err := s.progress.NextHeight(r.Context())
	if err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.NextHeight = height
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start listens on the configured address and blocks until Stop
func (s *Server) Start() error {
	s.logger.Info("Serving metrics",
		zap.String("addr", s.config.Addr),
		zap.String("path", s.config.MetricsPath))

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop drains in-flight requests, bounded by the shutdown timeout
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}
