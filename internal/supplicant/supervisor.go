package supplicant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/wpaif/internal/infrastructure/config"
)

const (
	defaultBinary         = "/sbin/wpa_supplicant"
	defaultDriver         = "nl80211"
	defaultCtrlDir        = "/var/run/wpa_supplicant"
	defaultStartupTimeout = 10 * time.Second
	socketPollInterval    = 50 * time.Millisecond
)

// Pinger checks that the daemon answers on its control socket.
// wpa.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Supervisor runs wpa_supplicant for one wireless interface.
type Supervisor struct {
	cfg             config.SupplicantConfig
	gracefulTimeout time.Duration
	logger          Logger

	process *Process

	pingerMu sync.RWMutex
	pinger   Pinger
}

// NewSupervisor creates a supervisor from config. When cfg.Managed is
// false the returned supervisor does nothing.
//
// Returns:
//   - *Supervisor: Ready to start
//   - error: ErrInvalidConfig if a managed daemon lacks an interface or
//     the interface name is unsafe
func NewSupervisor(cfg config.SupplicantConfig) (*Supervisor, error) {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.Driver == "" {
		cfg.Driver = defaultDriver
	}
	if cfg.CtrlDir == "" {
		cfg.CtrlDir = defaultCtrlDir
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}

	if cfg.Managed {
		if cfg.Interface == "" {
			return nil, fmt.Errorf("%w: interface is required", ErrInvalidConfig)
		}
		if strings.ContainsAny(cfg.Interface, "/ \t") || strings.HasPrefix(cfg.Interface, "-") {
			return nil, fmt.Errorf("%w: interface %q is not a valid name", ErrInvalidConfig, cfg.Interface)
		}
	}

	return &Supervisor{
		cfg:             cfg,
		gracefulTimeout: defaultGracefulTimeout,
		logger:          noopLogger{},
	}, nil
}

// SetLogger sets the logger for the supervisor and its process.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetPinger sets the client used for periodic health checks. Without one
// the daemon is considered healthy while it runs.
func (s *Supervisor) SetPinger(p Pinger) {
	s.pingerMu.Lock()
	s.pinger = p
	s.pingerMu.Unlock()
}

// IsManaged reports whether wpaif runs the daemon itself.
func (s *Supervisor) IsManaged() bool {
	return s.cfg.Managed
}

// DevicePath returns the control socket the daemon creates.
func (s *Supervisor) DevicePath() string {
	return s.cfg.DevicePath()
}

// BuildArgs returns the daemon's command line.
func (s *Supervisor) BuildArgs() []string {
	args := []string{"-i", s.cfg.Interface}
	if s.cfg.ConfigFile != "" {
		args = append(args, "-c", s.cfg.ConfigFile)
	}
	return append(args, "-C", s.cfg.CtrlDir, "-D", s.cfg.Driver)
}

// Start launches wpa_supplicant and blocks until its control socket
// exists. It is a no-op for an unmanaged daemon.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.cfg.Managed {
		s.logger.Info("wpa_supplicant management disabled, expecting external daemon")
		return nil
	}

	s.process = NewProcess(ProcessConfig{
		Name:                "wpa_supplicant",
		Binary:              s.cfg.Binary,
		Args:                s.BuildArgs(),
		RestartOnFailure:    s.cfg.RestartOnFailure,
		RestartDelay:        time.Duration(s.cfg.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts:  s.cfg.MaxRestartAttempts,
		GracefulTimeout:     s.gracefulTimeout,
		HealthCheck:         s.healthCheck,
		HealthCheckInterval: s.cfg.HealthCheckInterval,
		OnStart: func(pid int) {
			s.logger.Info("wpa_supplicant started", "pid", pid, "interface", s.cfg.Interface)
		},
		OnExit: func(err error) {
			if err != nil {
				s.logger.Warn("wpa_supplicant exited", "error", err)
			}
		},
	})
	s.process.SetLogger(s.logger)

	if err := s.process.Start(ctx); err != nil {
		return fmt.Errorf("starting wpa_supplicant: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()
	if err := WaitForSocket(waitCtx, s.DevicePath(), s.process.Done()); err != nil {
		if stopErr := s.process.Stop(); stopErr != nil {
			s.logger.Warn("error stopping wpa_supplicant after failed start", "error", stopErr)
		}
		return fmt.Errorf("wpa_supplicant not ready: %w", err)
	}

	s.logger.Info("wpa_supplicant ready", "device", s.DevicePath())
	return nil
}

// Stop terminates a managed daemon.
func (s *Supervisor) Stop() error {
	if !s.cfg.Managed || s.process == nil {
		return nil
	}
	s.logger.Info("stopping wpa_supplicant")
	return s.process.Stop()
}

// IsRunning reports whether the daemon is up. An unmanaged daemon is
// assumed to be running.
func (s *Supervisor) IsRunning() bool {
	if !s.cfg.Managed {
		return true
	}
	return s.process != nil && s.process.IsRunning()
}

// Stats describes the supervised daemon.
func (s *Supervisor) Stats() ProcessStats {
	if !s.cfg.Managed {
		return ProcessStats{Name: "wpa_supplicant", State: "external"}
	}
	if s.process == nil {
		return ProcessStats{Name: "wpa_supplicant", State: StateStopped}
	}
	return s.process.Stats()
}

func (s *Supervisor) healthCheck(ctx context.Context) error {
	s.pingerMu.RLock()
	p := s.pinger
	s.pingerMu.RUnlock()

	if p == nil {
		return nil
	}
	return p.Ping(ctx)
}

// WaitForSocket polls until path is a unix socket. It fails early when
// exited is closed.
func WaitForSocket(ctx context.Context, path string, exited <-chan struct{}) error {
	ticker := time.NewTicker(socketPollInterval)
	defer ticker.Stop()

	for {
		info, err := os.Stat(path)
		if err == nil && info.Mode()&os.ModeSocket != 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrSocketTimeout, path)
			}
			return ctx.Err()
		case <-exited:
			return ErrExited
		case <-ticker.C:
		}
	}
}
