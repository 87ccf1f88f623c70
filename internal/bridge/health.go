package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/wpaif/internal/wpa"
)

const (
	defaultHealthInterval = 30 * time.Second
	healthQoS             = 1
)

// ClientMonitor exposes the protocol client's state to the health reporter.
type ClientMonitor interface {
	IsRunning() bool
	Stats() wpa.Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Bridge is the bridge name reported in health messages.
	Bridge string

	// Version is the bridge software version.
	Version string

	// Topic is the retained health topic. Required.
	Topic string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages. Required.
	Publisher Publisher

	// Client provides protocol client statistics.
	Client ClientMonitor

	// Device is the control socket path reported in health messages.
	Device string
}

// HealthReporter manages periodic health status reporting.
// It publishes a retained health message at regular intervals.
type HealthReporter struct {
	logHolder

	bridge    string
	version   string
	topic     string
	device    string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	client    ClientMonitor

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
//   - error: If the publisher or topic is missing
func NewHealthReporter(cfg HealthReporterConfig) (*HealthReporter, error) {
	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	return &HealthReporter{
		bridge:    cfg.Bridge,
		version:   cfg.Version,
		topic:     cfg.Topic,
		device:    cfg.Device,
		startTime: time.Now(),
		interval:  orDefault(cfg.Interval, defaultHealthInterval),
		publisher: cfg.Publisher,
		client:    cfg.Client,
		done:      make(chan struct{}),
	}, nil
}

// Start publishes a "starting" status, then reports every interval until
// ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	if err := h.publishStatus(HealthStarting, ""); err != nil {
		h.logError("publishing starting status", err)
	}

	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop halts reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishNow immediately publishes the current health status.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Current returns the health message that would be published now.
func (h *HealthReporter) Current() HealthMessage {
	status, reason := h.determineStatus()
	return h.message(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("publishing health", err)
			}
		}
	}
}

// determineStatus evaluates the protocol client and gateway connection.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if !h.publisher.IsConnected() {
		return HealthDegraded, "gateway disconnected"
	}
	if h.client == nil || !h.client.IsRunning() {
		return HealthDegraded, "control socket closed"
	}

	stats := h.client.Stats()
	if stats.LastActivity.IsZero() || time.Since(stats.LastActivity) > h.interval {
		return HealthDegraded, "no replies from wpa_supplicant"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        h.bridge,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Device:        h.device,
	}
	if h.client != nil {
		stats := h.client.Stats()
		msg.WPA = &stats
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	return publishJSON(h.publisher, h.topic, healthQoS, true, h.message(status, reason))
}
