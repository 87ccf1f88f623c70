package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	GatewayConnected bool   `json:"gateway_connected"`
	SocketOpen       bool   `json:"socket_open"`
	Attached         bool   `json:"attached"`
	DaemonState      string `json:"daemon_state,omitempty"`
	Bridge           string `json:"bridge_status,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// handleHealth reports "ok" when the gateway and control socket are both
// up, "degraded" otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	if s.gateway != nil {
		resp.GatewayConnected = s.gateway.IsConnected()
	}
	if s.client != nil {
		resp.SocketOpen = s.client.IsRunning()
		resp.Attached = s.client.IsAttached()
	}
	if s.daemon != nil {
		resp.DaemonState = string(s.daemon.Stats().State)
	}
	if s.health != nil {
		h := s.health.Current()
		resp.Bridge = string(h.Status)
		resp.Reason = h.Reason
	}

	if !resp.GatewayConnected || !resp.SocketOpen {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the latest STATUS and SIGNAL_POLL readings.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeUnavailable(w, "status poller not running")
		return
	}
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}
