package influxdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSignal = "wifi_signal"
	MeasurementStatus = "wifi_status"
)

// stateCompleted is the wpa_state value of an associated, authenticated link.
const stateCompleted = "COMPLETED"

// signalFields maps SIGNAL_POLL keys to wifi_signal field names.
var signalFields = map[string]string{
	"RSSI":      "rssi",
	"AVG_RSSI":  "avg_rssi",
	"LINKSPEED": "linkspeed",
	"NOISE":     "noise",
	"FREQUENCY": "frequency",
}

// WriteSignal records a SIGNAL_POLL reply as a wifi_signal point.
//
// Only numeric keys listed in signalFields are written; anything else,
// and values that do not parse as integers, are skipped. Nothing is
// written if no field survives.
//
// Parameters:
//   - device: Control socket name used as the "device" tag (e.g. "wlan0")
//   - values: Parsed key=value reply
//   - ts: Sample time
func (c *Client) WriteSignal(device string, values map[string]string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point, ok := signalPoint(device, values, ts)
	if !ok {
		return
	}
	c.writeAPI.WritePoint(point)
}

// WriteStatus records a STATUS reply as a wifi_status point.
//
// Parameters:
//   - device: Control socket name used as the "device" tag
//   - values: Parsed key=value reply (wpa_state, ssid, freq, ...)
//   - ts: Sample time
func (c *Client) WriteStatus(device string, values map[string]string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point, ok := statusPoint(device, values, ts)
	if !ok {
		return
	}
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func signalPoint(device string, values map[string]string, ts time.Time) (*write.Point, bool) {
	fields := make(map[string]interface{}, len(signalFields))
	for key, field := range signalFields {
		raw, ok := values[key]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			continue
		}
		fields[field] = n
	}
	if len(fields) == 0 {
		return nil, false
	}

	return write.NewPoint(MeasurementSignal, map[string]string{"device": device}, fields, ts), true
}

func statusPoint(device string, values map[string]string, ts time.Time) (*write.Point, bool) {
	state, ok := values["wpa_state"]
	if !ok {
		return nil, false
	}

	tags := map[string]string{"device": device}
	if ssid := values["ssid"]; ssid != "" {
		tags["ssid"] = ssid
	}

	fields := map[string]interface{}{
		"wpa_state": state,
		"connected": state == stateCompleted,
	}
	if freq, err := strconv.ParseInt(values["freq"], 10, 64); err == nil {
		fields["freq"] = freq
	}
	if bssid := values["bssid"]; bssid != "" {
		fields["bssid"] = bssid
	}

	return write.NewPoint(MeasurementStatus, tags, fields, ts), true
}
