// Package api implements the local HTTP status API and WebSocket event
// stream for wpaif.
//
// Endpoints (all read-only):
//   - GET /api/v1/health:  process, gateway and control socket health
//   - GET /api/v1/status:  latest STATUS and SIGNAL_POLL snapshot
//   - GET /api/v1/metrics: runtime, protocol client, engine and daemon stats
//   - GET /api/v1/ws:      WebSocket event stream
//
// # WebSocket channels
//
// Clients subscribe with {"type":"subscribe","payload":{"channels":[...]}}
// or by passing ?channels=wpa.status,wpa.event on the upgrade request.
//
//   - wpa.status: every successful STATUS reply
//   - wpa.signal: every successful SIGNAL_POLL reply
//   - wpa.event:  unsolicited daemon events
//   - wpa.result: results of gateway requests
//
// The Hub implements the bridge observer interfaces, so it can be attached
// directly to the engine, poller and event forwarder.
//
// The server binds to localhost by default and has no authentication.
package api
