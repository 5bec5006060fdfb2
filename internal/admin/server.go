// Package admin exposes the worker's health, per-job status, and
// Prometheus metrics over a local HTTP server. The core scheduler does
// not depend on it; it observes the scheduler through narrow interfaces.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/uplink/internal/scheduler"
)

// StatusSource provides point-in-time job state for the status endpoint.
type StatusSource interface {
	Snapshot() []scheduler.JobStatus
}

// Server is the admin HTTP server.
type Server struct {
	source  StatusSource
	metrics *Metrics
	logger  *slog.Logger
	srv     *http.Server
}

// NewServer wires the admin routes. metrics may be nil, in which case
// /metrics is not mounted.
func NewServer(listen string, source StatusSource, metrics *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		source:  source,
		metrics: metrics,
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:    listen,
		Handler: s.router(),
	}
	return s
}

// router constructs the chi mux with all routes wired.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

// Start begins serving in a background goroutine. It returns once the
// listener is bound, so callers see bind errors synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	s.logger.Info("admin: listening", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin: server error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Jobs   int    `json:"jobs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.source != nil {
		resp.Jobs = len(s.source.Snapshot())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var jobs []scheduler.JobStatus
	if s.source != nil {
		jobs = s.source.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Jobs []scheduler.JobStatus `json:"jobs"`
	}{Jobs: jobs})
}
