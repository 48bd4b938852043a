package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"buildd/internal/logging"
)

// StatusPayload is the JSON shape served at /api/status.
type StatusPayload struct {
	Running        bool      `json:"running"`
	State          string    `json:"state"`
	Accepting      bool      `json:"accepting"`
	InFlight       int       `json:"inflight"`
	SessionID      string    `json:"session_id,omitempty"`
	PID            int       `json:"pid"`
	StartedAt      time.Time `json:"started_at"`
	Cache          string    `json:"cache"`
	LockFilePath   string    `json:"lock_file_path"`
	JournalPath    string    `json:"journal_path"`
	DecisionStatus string    `json:"decision_status"`
	DecisionReason string    `json:"decision_reason,omitempty"`
	FailedChecks   int       `json:"failed_checks"`
}

// Payload renders s for JSON clients.
func (s Status) Payload() StatusPayload {
	return StatusPayload{
		Running:        s.Running,
		State:          s.State.String(),
		Accepting:      s.Accepting,
		InFlight:       s.InFlight,
		SessionID:      s.SessionID,
		PID:            s.PID,
		StartedAt:      s.StartedAt,
		Cache:          s.Cache,
		LockFilePath:   s.LockFilePath,
		JournalPath:    s.JournalPath,
		DecisionStatus: s.LastDecision.Status.String(),
		DecisionReason: s.LastDecision.Reason,
		FailedChecks:   len(s.LastDecision.Failures),
	}
}

type httpServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// newHTTPServer returns nil when bind is empty; a nil server's methods are no-ops.
func newHTTPServer(bind string, d *Daemon, logger *slog.Logger) (*httpServer, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" || d == nil {
		return nil, nil
	}

	srv := &httpServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	if d.metrics != nil {
		mux.Handle("/metrics", d.metrics.Handler())
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *httpServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *httpServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listener address, or "" before start.
func (s *httpServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *httpServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status().Payload())
}

func (s *httpServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("encode response failed", logging.Error(err))
	}
}

func (s *httpServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// HTTPAddr returns the address the status and metrics server listens on.
func (d *Daemon) HTTPAddr() string { return d.server.Addr() }
