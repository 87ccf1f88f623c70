package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for wpaif.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge     BridgeConfig     `yaml:"bridge"`
	WPA        WPAConfig        `yaml:"wpa"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Supplicant SupplicantConfig `yaml:"supplicant"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BridgeConfig identifies this bridge on the message bus.
type BridgeConfig struct {
	// Name is the last topic segment and the default MQTT client id suffix.
	Name string `yaml:"name"`

	// TopicRoot is prefixed to Name when set ("site/wpaif").
	TopicRoot string `yaml:"topic_root"`
}

// Topic returns the base topic all bridge traffic hangs off.
func (b BridgeConfig) Topic() string {
	if b.TopicRoot == "" {
		return b.Name
	}
	return strings.TrimSuffix(b.TopicRoot, "/") + "/" + b.Name
}

// WPAConfig contains control-socket settings for the wpa_supplicant client.
type WPAConfig struct {
	// Device is the daemon's control socket (e.g. /var/run/wpa_supplicant/wlan0).
	Device string `yaml:"device"`

	// SocketDir is where the client binds its own datagram socket.
	SocketDir string `yaml:"socket_dir"`

	// PollInterval is the readiness poll period of the client loop.
	PollInterval time.Duration `yaml:"poll_interval"`

	// StaleTimeout is how long a command may wait for a reply before eviction.
	StaleTimeout time.Duration `yaml:"stale_timeout"`

	// ReportStale delivers a FAIL reply for evicted commands instead of dropping them.
	ReportStale bool `yaml:"report_stale"`

	// Events attaches to the daemon's unsolicited event stream on start.
	Events bool `yaml:"events"`
}

// WorkflowConfig tunes the orchestration engine and status poller.
type WorkflowConfig struct {
	ResponseTimeout  time.Duration `yaml:"response_timeout"`
	ScanTimeout      time.Duration `yaml:"scan_timeout"`
	ScanPollInterval time.Duration `yaml:"scan_poll_interval"`
	StatusInterval   time.Duration `yaml:"status_interval"`
	HealthInterval   time.Duration `yaml:"health_interval"`
}

// SupplicantConfig contains settings for managing the wpa_supplicant daemon.
type SupplicantConfig struct {
	// Managed indicates whether wpaif should run wpa_supplicant itself.
	// If false, the daemon is expected to be running externally (e.g. as a systemd service).
	Managed bool `yaml:"managed"`

	// Binary is the path to the wpa_supplicant executable.
	// Default: "/sbin/wpa_supplicant"
	Binary string `yaml:"binary"`

	// Interface is the wireless interface to manage (e.g. "wlan0").
	Interface string `yaml:"interface"`

	// ConfigFile is the wpa_supplicant configuration file.
	ConfigFile string `yaml:"config_file"`

	// CtrlDir is the control interface directory passed with -C.
	// Default: "/var/run/wpa_supplicant"
	CtrlDir string `yaml:"ctrl_dir"`

	// Driver is the driver backend passed with -D. Default: "nl80211"
	Driver string `yaml:"driver"`

	// RestartOnFailure enables automatic restart if wpa_supplicant exits.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the initial time to wait before restarting.
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// HealthCheckInterval is how often the daemon is PINGed.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// StartupTimeout bounds the wait for the control socket to appear.
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

// DevicePath returns the control socket wpa_supplicant creates for Interface.
func (s SupplicantConfig) DevicePath() string {
	return filepath.Join(s.CtrlDir, s.Interface)
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for wireless telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains local HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WPAIF_SECTION_KEY
// For example: WPAIF_WPA_DEVICE, WPAIF_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	// A managed daemon dictates where its control socket lives.
	if cfg.WPA.Device == "" && cfg.Supplicant.Managed && cfg.Supplicant.Interface != "" {
		cfg.WPA.Device = cfg.Supplicant.DevicePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Name: "wpaif",
		},
		WPA: WPAConfig{
			SocketDir:    os.TempDir(),
			PollInterval: 10 * time.Millisecond,
			StaleTimeout: 5 * time.Second,
		},
		Workflow: WorkflowConfig{
			ResponseTimeout:  10 * time.Second,
			ScanTimeout:      10 * time.Second,
			ScanPollInterval: 500 * time.Millisecond,
			StatusInterval:   time.Second,
			HealthInterval:   30 * time.Second,
		},
		Supplicant: SupplicantConfig{
			Binary:              "/sbin/wpa_supplicant",
			Interface:           "wlan0",
			ConfigFile:          "/etc/wpa_supplicant/wpa_supplicant.conf",
			CtrlDir:             "/var/run/wpa_supplicant",
			Driver:              "nl80211",
			RestartOnFailure:    true,
			RestartDelaySeconds: 5,
			MaxRestartAttempts:  10,
			HealthCheckInterval: 30 * time.Second,
			StartupTimeout:      10 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wpaif",
			},
			QoS: 2,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "/var/log/wpaif/wpaif.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WPAIF_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WPAIF_TOPIC_ROOT"); v != "" {
		cfg.Bridge.TopicRoot = v
	}

	if v := os.Getenv("WPAIF_WPA_DEVICE"); v != "" {
		cfg.WPA.Device = v
	}

	// MQTT
	if v := os.Getenv("WPAIF_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WPAIF_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WPAIF_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("WPAIF_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.Name == "" {
		errs = append(errs, "bridge.name is required")
	}

	if c.WPA.Device == "" {
		errs = append(errs, "wpa.device is required (or enable supplicant.managed)")
	}
	if c.WPA.SocketDir == "" {
		errs = append(errs, "wpa.socket_dir is required")
	}
	if c.WPA.PollInterval <= 0 {
		errs = append(errs, "wpa.poll_interval must be positive")
	}
	if c.WPA.StaleTimeout < c.WPA.PollInterval {
		errs = append(errs, "wpa.stale_timeout must be at least wpa.poll_interval")
	}

	if c.Workflow.ResponseTimeout <= 0 {
		errs = append(errs, "workflow.response_timeout must be positive")
	}
	if c.Workflow.ScanTimeout <= 0 {
		errs = append(errs, "workflow.scan_timeout must be positive")
	}
	if c.Workflow.StatusInterval <= 0 {
		errs = append(errs, "workflow.status_interval must be positive")
	}

	if c.Supplicant.Managed {
		if c.Supplicant.Binary == "" {
			errs = append(errs, "supplicant.binary is required when managed")
		}
		if c.Supplicant.Interface == "" {
			errs = append(errs, "supplicant.interface is required when managed")
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
