// Package health serves liveness, readiness and Prometheus metrics over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// Source reports the player's run state
type Source interface {
	RunState() pipeline.RunState
}

// SourceFunc adapts a function to Source
type SourceFunc func() pipeline.RunState

// RunState implements Source
func (f SourceFunc) RunState() pipeline.RunState { return f() }

// Status is the /readyz response body
type Status struct {
	Status        string `json:"status"` // "ready", "not_ready"
	Ready         bool   `json:"ready"`
	RunState      string `json:"run_state"`
	SessionID     string `json:"session_id,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Server is the health HTTP server
type Server struct {
	source    Source
	sessionID string
	started   time.Time
	srv       *http.Server
}

// NewServer creates a server on addr. Readiness requires RunState >= Paused.
func NewServer(addr, sessionID string, source Source) *Server {
	s := &Server{source: source, sessionID: sessionID, started: time.Now()}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the mux with /healthz, /readyz and /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.liveness)
	mux.HandleFunc("/readyz", s.readiness)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

// Check returns the current readiness status
func (s *Server) Check() Status {
	state := s.source.RunState()
	st := Status{
		Status:        "not_ready",
		Ready:         state >= pipeline.StatePaused,
		RunState:      state.String(),
		SessionID:     s.sessionID,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if st.Ready {
		st.Status = "ready"
	}
	return st
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	st := s.Check()
	code := http.StatusOK
	if !st.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("health: failed to write response", "error", err)
	}
}

// Serve listens on the configured address until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done, then shuts down gracefully
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	slog.Info("health: server started",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/healthz", "/readyz", "/metrics"},
	)

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
