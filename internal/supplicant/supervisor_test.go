package supplicant

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/wpaif/internal/infrastructure/config"
)

// shortDir returns a temp dir short enough for unix socket paths.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sup")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// fakeDaemon writes an executable shell script standing in for wpa_supplicant.
func fakeDaemon(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(shortDir(t), "wpa_supplicant")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil { //nolint:gosec // test helper needs an executable
		t.Fatalf("writing fake daemon: %v", err)
	}
	return path
}

func listen(t *testing.T, path string) {
	t.Helper()
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Errorf("listen %s: %v", path, err)
		return
	}
	t.Cleanup(func() { conn.Close() })
}

func TestNewSupervisor_Defaults(t *testing.T) {
	s, err := NewSupervisor(config.SupplicantConfig{})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	if s.cfg.Binary != defaultBinary {
		t.Errorf("Binary = %q, want %q", s.cfg.Binary, defaultBinary)
	}
	if s.cfg.Driver != defaultDriver {
		t.Errorf("Driver = %q, want %q", s.cfg.Driver, defaultDriver)
	}
	if s.cfg.CtrlDir != defaultCtrlDir {
		t.Errorf("CtrlDir = %q, want %q", s.cfg.CtrlDir, defaultCtrlDir)
	}
	if s.cfg.StartupTimeout != defaultStartupTimeout {
		t.Errorf("StartupTimeout = %v, want %v", s.cfg.StartupTimeout, defaultStartupTimeout)
	}
}

func TestNewSupervisor_InvalidInterface(t *testing.T) {
	tests := []struct {
		name  string
		iface string
	}{
		{"empty", ""},
		{"path", "../wlan0"},
		{"flag", "-Dwext"},
		{"space", "wlan0 -B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSupervisor(config.SupplicantConfig{Managed: true, Interface: tt.iface})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewSupervisor(%q) error = %v, want ErrInvalidConfig", tt.iface, err)
			}
		})
	}
}

func TestSupervisor_BuildArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SupplicantConfig
		want []string
	}{
		{
			name: "with config file",
			cfg: config.SupplicantConfig{
				Interface:  "wlan0",
				ConfigFile: "/etc/wpa_supplicant/wpa_supplicant-wlan0.conf",
				CtrlDir:    "/run/wpa_supplicant",
				Driver:     "nl80211",
			},
			want: []string{"-i", "wlan0", "-c", "/etc/wpa_supplicant/wpa_supplicant-wlan0.conf", "-C", "/run/wpa_supplicant", "-D", "nl80211"},
		},
		{
			name: "defaults without config file",
			cfg:  config.SupplicantConfig{Interface: "wlan1"},
			want: []string{"-i", "wlan1", "-C", "/var/run/wpa_supplicant", "-D", "nl80211"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSupervisor(tt.cfg)
			if err != nil {
				t.Fatalf("NewSupervisor() error = %v", err)
			}
			if got := s.BuildArgs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSupervisor_Unmanaged(t *testing.T) {
	s, err := NewSupervisor(config.SupplicantConfig{Interface: "wlan0"})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if s.IsManaged() {
		t.Error("IsManaged() = true")
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false for an external daemon")
	}
	if got := s.Stats().State; got != "external" {
		t.Errorf("Stats().State = %q, want external", got)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSupervisor_ManagedStartWaitsForSocket(t *testing.T) {
	ctrl := shortDir(t)
	s, err := NewSupervisor(config.SupplicantConfig{
		Managed:        true,
		Binary:         fakeDaemon(t, "exec sleep 60"),
		Interface:      "wlan0",
		CtrlDir:        ctrl,
		StartupTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	s.gracefulTimeout = time.Second

	go func() {
		time.Sleep(100 * time.Millisecond)
		listen(t, filepath.Join(ctrl, "wlan0"))
	}()

	start := time.Now()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("Start() returned before the control socket existed")
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if s.Stats().PID == 0 {
		t.Error("Stats().PID = 0")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestSupervisor_ManagedDaemonExitsDuringStartup(t *testing.T) {
	s, err := NewSupervisor(config.SupplicantConfig{
		Managed:        true,
		Binary:         fakeDaemon(t, "echo 'Could not read interface wlan0 flags' >&2; exit 255"),
		Interface:      "wlan0",
		CtrlDir:        shortDir(t),
		StartupTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	err = s.Start(context.Background())
	if !errors.Is(err, ErrExited) {
		t.Errorf("Start() error = %v, want ErrExited", err)
	}
}

func TestSupervisor_HealthCheckUsesPinger(t *testing.T) {
	s, err := NewSupervisor(config.SupplicantConfig{})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	if err := s.healthCheck(context.Background()); err != nil {
		t.Errorf("healthCheck() without pinger = %v, want nil", err)
	}

	want := errors.New("FAIL")
	s.SetPinger(pingFunc(func(context.Context) error { return want }))
	if err := s.healthCheck(context.Background()); !errors.Is(err, want) {
		t.Errorf("healthCheck() = %v, want %v", err, want)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestWaitForSocket(t *testing.T) {
	dir := shortDir(t)

	t.Run("timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()
		if err := WaitForSocket(ctx, filepath.Join(dir, "absent"), nil); !errors.Is(err, ErrSocketTimeout) {
			t.Errorf("WaitForSocket() = %v, want ErrSocketTimeout", err)
		}
	})

	t.Run("regular file is not a socket", func(t *testing.T) {
		path := filepath.Join(dir, "plain")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()
		if err := WaitForSocket(ctx, path, nil); !errors.Is(err, ErrSocketTimeout) {
			t.Errorf("WaitForSocket() = %v, want ErrSocketTimeout", err)
		}
	})

	t.Run("exited", func(t *testing.T) {
		exited := make(chan struct{})
		close(exited)
		if err := WaitForSocket(context.Background(), filepath.Join(dir, "absent"), exited); !errors.Is(err, ErrExited) {
			t.Errorf("WaitForSocket() = %v, want ErrExited", err)
		}
	})

	t.Run("appears", func(t *testing.T) {
		path := filepath.Join(dir, "wlan0")
		listen(t, path)
		if err := WaitForSocket(context.Background(), path, nil); err != nil {
			t.Errorf("WaitForSocket() = %v", err)
		}
	})
}
