// Package bridge turns gateway requests into wpa_supplicant command
// sequences and publishes the results.
//
// Three workers share one wpa.Client:
//
//   - Engine: reads requests from the action topic, runs one workflow at a
//     time (scan, list, reconfigure, enable, disable, select) and publishes
//     the outcome on the base topic.
//   - Poller: issues STATUS every tick and SIGNAL_POLL while associated,
//     publishing each successful reply straight to the base topic.
//   - HealthReporter: publishes a retained health document on a timer.
//
// EventForwarder relays unsolicited daemon events to the event topic.
//
// Result messages have the shape:
//
//	{"command": "SET_NETWORK", "result": "OK"}
//	{"command": "STATUS", "result": {"wpa_state": "COMPLETED", ...}}
//	{"command": "SCAN", "result": [{"bssid": "...", "ssid": "..."}]}
//
// A step that fails reports the failure token for the requested verb:
//
//	{"command": "SET_NETWORK", "result": "FAIL"}
package bridge
