package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second

	// healthTimeout bounds each health check run by /health.
	healthTimeout = 3 * time.Second
)

// Logger receives handler panics.
type Logger interface {
	Error(msg string, args ...any)
}

// HealthCheck is a named dependency check reported by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server serves a registry on /metrics and dependency status on /health.
type Server struct {
	srv    *http.Server
	lis    net.Listener
	logger Logger
	checks []HealthCheck
}

// NewServer listens on addr. The listener is bound immediately so address
// errors surface at startup.
func NewServer(addr string, gatherer prometheus.Gatherer, logger Logger, checks ...HealthCheck) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", addr, err)
	}

	s := &Server{
		lis:    lis,
		logger: logger,
		checks: checks,
	}
	s.srv = &http.Server{
		Handler:     s.buildRouter(gatherer),
		ReadTimeout: readTimeout,
	}
	return s, nil
}

func (s *Server) buildRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoveryMiddleware)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", s.handleHealth)
	return r
}

// recoveryMiddleware turns a handler panic into a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if s.logger != nil {
					s.logger.Error("panic recovered in HTTP handler",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
					)
				}
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"status": "error",
					"error":  "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// handleHealth runs every check. Any failure reports 503 with the failing
// check's error.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for _, hc := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := hc.Check(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			results[hc.Name] = err.Error()
			continue
		}
		results[hc.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": results,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	json.NewEncoder(w).Encode(v)
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}
