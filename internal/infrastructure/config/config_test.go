package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
bridge:
  name: "wpaif"
  topic_root: "home"
wpa:
  device: "/var/run/wpa_supplicant/wlan1"
  poll_interval: 20ms
  stale_timeout: 2s
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.WPA.Device != "/var/run/wpa_supplicant/wlan1" {
		t.Errorf("WPA.Device = %q, want %q", cfg.WPA.Device, "/var/run/wpa_supplicant/wlan1")
	}
	if cfg.WPA.PollInterval != 20*time.Millisecond {
		t.Errorf("WPA.PollInterval = %v, want 20ms", cfg.WPA.PollInterval)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if got := cfg.Bridge.Topic(); got != "home/wpaif" {
		t.Errorf("Bridge.Topic() = %q, want %q", got, "home/wpaif")
	}

	// Unset sections keep their defaults.
	if cfg.Workflow.ScanTimeout != 10*time.Second {
		t.Errorf("Workflow.ScanTimeout = %v, want 10s", cfg.Workflow.ScanTimeout)
	}
}

func TestLoad_ManagedSupplicantDerivesDevice(t *testing.T) {
	content := `
supplicant:
  managed: true
  interface: "wlp2s0"
  ctrl_dir: "/run/wpa"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WPA.Device != "/run/wpa/wlp2s0" {
		t.Errorf("WPA.Device = %q, want %q", cfg.WPA.Device, "/run/wpa/wlp2s0")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	// No device and no managed supplicant.
	content := `
bridge:
  name: "wpaif"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing wpa.device, got nil")
	}
	if !strings.Contains(err.Error(), "wpa.device") {
		t.Errorf("error = %v, want mention of wpa.device", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.WPA.Device = "/var/run/wpa_supplicant/wlan0"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing bridge name",
			mutate:  func(c *Config) { c.Bridge.Name = "" },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.WPA.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "stale timeout below poll interval",
			mutate:  func(c *Config) { c.WPA.StaleTimeout = time.Millisecond },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name: "api enabled with bad port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 0
			},
			wantErr: true,
		},
		{
			name: "api disabled ignores port",
			mutate: func(c *Config) {
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name: "managed supplicant without binary",
			mutate: func(c *Config) {
				c.Supplicant.Managed = true
				c.Supplicant.Binary = ""
			},
			wantErr: true,
		},
		{
			name:    "zero response timeout",
			mutate:  func(c *Config) { c.Workflow.ResponseTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBridgeConfig_Topic(t *testing.T) {
	tests := []struct {
		root string
		want string
	}{
		{"", "wpaif"},
		{"home", "home/wpaif"},
		{"home/", "home/wpaif"},
		{"site/net", "site/net/wpaif"},
	}
	for _, tt := range tests {
		b := BridgeConfig{Name: "wpaif", TopicRoot: tt.root}
		if got := b.Topic(); got != tt.want {
			t.Errorf("Topic() with root %q = %q, want %q", tt.root, got, tt.want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  120,
			},
		},
	}

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 45*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 45s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 120*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 120s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("WPAIF_WPA_DEVICE", "/tmp/wpa-ctrl")
	t.Setenv("WPAIF_MQTT_HOST", "mqtt.example.com")
	t.Setenv("WPAIF_MQTT_USERNAME", "user")
	t.Setenv("WPAIF_MQTT_PASSWORD", "secret")
	t.Setenv("WPAIF_INFLUXDB_TOKEN", "influx-token")
	t.Setenv("WPAIF_TOPIC_ROOT", "lab")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.WPA.Device != "/tmp/wpa-ctrl" {
		t.Errorf("WPA.Device = %q, want %q", cfg.WPA.Device, "/tmp/wpa-ctrl")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "user" || cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth = %+v, want user/secret", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "influx-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "influx-token")
	}
	if cfg.Bridge.TopicRoot != "lab" {
		t.Errorf("Bridge.TopicRoot = %q, want %q", cfg.Bridge.TopicRoot, "lab")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.Name != "wpaif" {
		t.Errorf("Bridge.Name = %q, want %q", cfg.Bridge.Name, "wpaif")
	}
	if cfg.WPA.PollInterval != 10*time.Millisecond {
		t.Errorf("WPA.PollInterval = %v, want 10ms", cfg.WPA.PollInterval)
	}
	if cfg.WPA.StaleTimeout != 5*time.Second {
		t.Errorf("WPA.StaleTimeout = %v, want 5s", cfg.WPA.StaleTimeout)
	}
	if cfg.Workflow.StatusInterval != time.Second {
		t.Errorf("Workflow.StatusInterval = %v, want 1s", cfg.Workflow.StatusInterval)
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("MQTT.QoS = %d, want 2", cfg.MQTT.QoS)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}
