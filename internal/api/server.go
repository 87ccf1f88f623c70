package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/wpaif/internal/bridge"
	"github.com/nerrad567/wpaif/internal/infrastructure/config"
	"github.com/nerrad567/wpaif/internal/infrastructure/logging"
	"github.com/nerrad567/wpaif/internal/supplicant"
	"github.com/nerrad567/wpaif/internal/wpa"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// StatusSource provides the latest interface readings.
type StatusSource interface {
	Snapshot() bridge.Snapshot
}

// HealthSource provides the bridge's current health document.
type HealthSource interface {
	Current() bridge.HealthMessage
}

// ClientSource provides protocol client state.
type ClientSource interface {
	IsRunning() bool
	IsAttached() bool
	Stats() wpa.Stats
}

// EngineSource provides orchestration engine counters.
type EngineSource interface {
	Stats() bridge.EngineStats
}

// DaemonSource provides supervised daemon state.
type DaemonSource interface {
	Stats() supplicant.ProcessStats
}

// GatewaySource reports the gateway connection.
type GatewaySource interface {
	IsConnected() bool
}

// Deps holds the dependencies of the API server. Only Logger is required;
// endpoints degrade when a source is missing.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Version string

	Status  StatusSource
	Health  HealthSource
	Client  ClientSource
	Engine  EngineSource
	Daemon  DaemonSource
	Gateway GatewaySource

	// Hub is shared with the bridge observers. If nil the server creates one.
	Hub *Hub
}

// Server is the local HTTP API server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	version   string
	startTime time.Time

	status  StatusSource
	health  HealthSource
	client  ClientSource
	engine  EngineSource
	daemon  DaemonSource
	gateway GatewaySource

	hub         *Hub
	externalHub bool
	server      *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Dependencies (Logger required)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		version:   deps.Version,
		startTime: time.Now(),
		status:    deps.Status,
		health:    deps.Health,
		client:    deps.Client,
		engine:    deps.Engine,
		daemon:    deps.Daemon,
		gateway:   deps.Gateway,
		hub:       deps.Hub,
	}
	if s.hub != nil {
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API server to %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
