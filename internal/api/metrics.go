package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/wpaif/internal/bridge"
	"github.com/nerrad567/wpaif/internal/supplicant"
	"github.com/nerrad567/wpaif/internal/wpa"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                   `json:"timestamp"`
	Version       string                   `json:"version"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	Runtime       RuntimeMetrics           `json:"runtime"`
	WebSocket     WSMetrics                `json:"websocket"`
	Gateway       GatewayMetrics           `json:"gateway"`
	WPA           *wpa.Stats               `json:"wpa,omitempty"`
	Engine        *bridge.EngineStats      `json:"engine,omitempty"`
	Daemon        *supplicant.ProcessStats `json:"daemon,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// GatewayMetrics contains gateway connection state.
type GatewayMetrics struct {
	Connected bool `json:"connected"`
}

// handleMetrics returns runtime and component statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	if s.gateway != nil {
		metrics.Gateway.Connected = s.gateway.IsConnected()
	}
	if s.client != nil {
		stats := s.client.Stats()
		metrics.WPA = &stats
	}
	if s.engine != nil {
		stats := s.engine.Stats()
		metrics.Engine = &stats
	}
	if s.daemon != nil {
		stats := s.daemon.Stats()
		metrics.Daemon = &stats
	}

	writeJSON(w, http.StatusOK, metrics)
}
