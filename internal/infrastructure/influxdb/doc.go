// Package influxdb provides InfluxDB connectivity for wpaif telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, sample writing and health monitoring.
//
// # Measurements
//
//   - wifi_signal: rssi, avg_rssi, linkspeed, noise, frequency (SIGNAL_POLL)
//   - wifi_status: wpa_state, connected, freq, bssid (STATUS)
//
// Both carry a "device" tag; wifi_status also carries "ssid" when associated.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry not configured
//	}
//	defer client.Close()
//
//	client.WriteSignal("wlan0", map[string]string{"RSSI": "-52"}, time.Now())
//
// # Error Handling
//
// Writes are non-blocking and batched; failures are delivered through the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
