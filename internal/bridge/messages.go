package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/wpaif/internal/wpa"
)

// Request is a single action received from the gateway.
// Topic: {root}/{name}/action
//
// SSID and PSK are base64 encoded. They are pointers so that an absent
// field can be told apart from an empty one.
type Request struct {
	Command   wpa.Verb `json:"command"`
	SSID      *string  `json:"ssid,omitempty"`
	PSK       *string  `json:"psk,omitempty"`
	NetworkID string   `json:"network_id,omitempty"`
}

// ParseRequest decodes and validates an action payload.
//
// Returns:
//   - Request: The decoded request
//   - error: ErrInvalidPayload or ErrUnknownCommand
func ParseRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if req.Command == "" {
		return Request{}, fmt.Errorf("%w: missing command", ErrInvalidPayload)
	}
	if !isSupported(req.Command) {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
	return req, nil
}

// Message is a result published on the base topic.
// Topic: {root}/{name}
type Message struct {
	Command wpa.Verb   `json:"command"`
	Result  wpa.Result `json:"result"`
}

// NewMessage builds a result message from a reply. Echoed arguments are
// not carried over.
func NewMessage(reply wpa.Reply) Message {
	return Message{Command: reply.Verb, Result: reply.Result}
}

// failure is the message reported when a workflow for verb cannot finish.
func failure(verb wpa.Verb) Message {
	return Message{Command: verb, Result: wpa.Fail()}
}

// Failed reports whether the message carries the failure token.
func (m Message) Failed() bool {
	return m.Result.Failed()
}

// EventMessage wraps an unsolicited daemon event.
// Topic: {root}/{name}/event
type EventMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`
	Event     string    `json:"event"`
	Raw       string    `json:"raw"`
}

// NewEventMessage converts a parsed notification.
func NewEventMessage(n wpa.Notification) EventMessage {
	return EventMessage{
		Timestamp: time.Now().UTC(),
		Level:     n.Level,
		Event:     n.Event,
		Raw:       n.Raw,
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is running with a problem.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained health document.
// Topic: {root}/{name}/health
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Device        string       `json:"device,omitempty"`
	WPA           *wpa.Stats   `json:"wpa,omitempty"`
}

// Publisher sends payloads to the gateway.
// This is typically implemented by the MQTT client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ResultObserver receives every workflow result after it is published.
type ResultObserver interface {
	ObserveResult(msg Message)
}

// publishJSON marshals v and publishes it.
func publishJSON(p Publisher, topic string, qos byte, retained bool, v any) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s message: %w", topic, err)
	}
	return p.Publish(topic, payload, qos, retained)
}
