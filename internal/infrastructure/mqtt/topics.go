package mqtt

import "strings"

// Topic suffixes below the bridge base topic.
const (
	// SuffixAction carries inbound requests ({"command": ...}).
	SuffixAction = "action"

	// SuffixEvent carries unsolicited wpa_supplicant notifications.
	SuffixEvent = "event"

	// SuffixHealth carries the retained bridge health report.
	SuffixHealth = "health"

	// SuffixAvailability carries the retained online/offline marker and the LWT.
	SuffixAvailability = "availability"
)

// Topics provides builders for wpaif MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("home/wpaif")
//	topics.Action() // "home/wpaif/action"
type Topics struct {
	Base string
}

// NewTopics returns a builder rooted at base. Trailing slashes are removed.
func NewTopics(base string) Topics {
	return Topics{Base: strings.TrimRight(base, "/")}
}

// Results returns the topic workflow results and status telemetry are published on.
//
// Example: home/wpaif
func (t Topics) Results() string {
	return t.Base
}

// Action returns the topic inbound requests arrive on.
//
// Example: home/wpaif/action
func (t Topics) Action() string {
	return t.join(SuffixAction)
}

// Event returns the topic unsolicited notifications are forwarded to.
//
// Example: home/wpaif/event
func (t Topics) Event() string {
	return t.join(SuffixEvent)
}

// Health returns the retained health report topic.
//
// Example: home/wpaif/health
func (t Topics) Health() string {
	return t.join(SuffixHealth)
}

// Availability returns the retained online/offline topic.
//
// Example: home/wpaif/availability
func (t Topics) Availability() string {
	return t.join(SuffixAvailability)
}

// IsAction reports whether topic is an action topic, matching on the last segment.
func (Topics) IsAction(topic string) bool {
	i := strings.LastIndex(topic, "/")
	return topic[i+1:] == SuffixAction
}

func (t Topics) join(suffix string) string {
	if t.Base == "" {
		return suffix
	}
	return t.Base + "/" + suffix
}
