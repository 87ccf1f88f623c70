package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/wpaif/internal/wpa"
)

// Slot is the only network id the bridge manages.
const Slot = "0"

// isSupported reports whether the engine has a workflow for verb.
func isSupported(verb wpa.Verb) bool {
	switch verb {
	case wpa.VerbScan, wpa.VerbListNetworks, wpa.VerbSetNetwork,
		wpa.VerbEnableNetwork, wpa.VerbDisableNetwork, wpa.VerbSelectNetwork:
		return true
	}
	return false
}

func (e *Engine) dispatch(ctx context.Context, req Request) Message {
	switch req.Command {
	case wpa.VerbScan:
		return e.scan(ctx)
	case wpa.VerbListNetworks:
		return e.listNetworks(ctx)
	case wpa.VerbSetNetwork:
		return e.setNetwork(ctx, req)
	case wpa.VerbEnableNetwork:
		return e.slotCommand(ctx, req, e.client.EnableNetwork)
	case wpa.VerbDisableNetwork:
		return e.slotCommand(ctx, req, e.client.DisableNetwork)
	case wpa.VerbSelectNetwork:
		return e.slotCommand(ctx, req, e.client.SelectNetwork)
	}
	// ParseRequest rejects everything else.
	return failure(req.Command)
}

// scan starts a scan and polls for results until some appear or the scan
// deadline passes.
func (e *Engine) scan(ctx context.Context) Message {
	if _, ok := e.exchange(ctx, wpa.VerbScan, func(opts ...wpa.SendOption) error {
		return e.client.Scan(opts...)
	}); !ok {
		return failure(wpa.VerbScan)
	}

	deadline := time.Now().Add(e.scanTimeout)
	for time.Now().Before(deadline) {
		reply, ok := e.exchange(ctx, wpa.VerbScanResults, func(opts ...wpa.SendOption) error {
			return e.client.ScanResults(opts...)
		})
		if !ok {
			return failure(wpa.VerbScan)
		}
		if !reply.Result.Empty() {
			return Message{Command: wpa.VerbScan, Result: reply.Result}
		}

		wait := min(e.scanPollInterval, time.Until(deadline))
		if wait <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return failure(wpa.VerbScan)
		case <-time.After(wait):
		}
	}

	e.timeouts.Add(1)
	e.logWarn("scan produced no results", "timeout", e.scanTimeout)
	return failure(wpa.VerbScan)
}

func (e *Engine) listNetworks(ctx context.Context) Message {
	reply, ok := e.exchange(ctx, wpa.VerbListNetworks, func(opts ...wpa.SendOption) error {
		return e.client.ListNetworks(opts...)
	})
	if !ok {
		return failure(wpa.VerbListNetworks)
	}
	return NewMessage(reply)
}

// setNetwork rewrites slot 0 with new credentials and drops every other
// configured network.
//
// Steps:
//  1. Decode ssid and psk (no device calls on failure).
//  2. LIST_NETWORKS; REMOVE_NETWORK every id other than the slot.
//  3. Slot absent: ADD_NETWORK, which must return the slot id.
//     Slot present: DISABLE_NETWORK the slot (failure is only logged).
//  4. SET_NETWORK ssid, then SET_NETWORK psk.
//
// Any aborted step reports SET_NETWORK FAIL.
func (e *Engine) setNetwork(ctx context.Context, req Request) Message {
	ssid, err := decodeCredential(wpa.ParamSSID, req.SSID)
	if err != nil {
		e.logWarn("rejecting set network request", "error", err)
		return failure(wpa.VerbSetNetwork)
	}
	psk, err := decodeCredential(wpa.ParamPSK, req.PSK)
	if err != nil {
		e.logWarn("rejecting set network request", "error", err)
		return failure(wpa.VerbSetNetwork)
	}

	list, ok := e.exchange(ctx, wpa.VerbListNetworks, func(opts ...wpa.SendOption) error {
		return e.client.ListNetworks(opts...)
	})
	if !ok {
		return failure(wpa.VerbSetNetwork)
	}

	found := false
	for _, row := range list.Result.Rows {
		id, ok := row.Get(wpa.LabelNetworkID)
		if !ok {
			continue
		}
		if id == Slot {
			found = true
			continue
		}
		if _, ok := e.exchange(ctx, wpa.VerbRemoveNetwork, func(opts ...wpa.SendOption) error {
			return e.client.RemoveNetwork(id, opts...)
		}); !ok {
			e.logWarn("failed to remove network", "network_id", id)
		}
	}

	if found {
		if _, ok := e.exchange(ctx, wpa.VerbDisableNetwork, func(opts ...wpa.SendOption) error {
			return e.client.DisableNetwork(Slot, opts...)
		}); !ok {
			e.logWarn("failed to disable network before update", "network_id", Slot)
		}
	} else {
		added, ok := e.exchange(ctx, wpa.VerbAddNetwork, func(opts ...wpa.SendOption) error {
			return e.client.AddNetwork(opts...)
		})
		if !ok {
			return failure(wpa.VerbSetNetwork)
		}
		if added.Result.Text != Slot {
			e.logWarn("daemon assigned unexpected network id", "network_id", added.Result.Text, "want", Slot)
			return failure(wpa.VerbSetNetwork)
		}
	}

	for _, p := range []struct{ param, value string }{
		{wpa.ParamSSID, ssid},
		{wpa.ParamPSK, psk},
	} {
		if _, ok := e.exchange(ctx, wpa.VerbSetNetwork, func(opts ...wpa.SendOption) error {
			return e.client.SetNetwork(Slot, p.param, p.value, opts...)
		}); !ok {
			e.logWarn("failed to set network parameter", "param", p.param)
			return failure(wpa.VerbSetNetwork)
		}
	}

	return Message{Command: wpa.VerbSetNetwork, Result: wpa.Text(wpa.TokenOK)}
}

// slotCommand runs an id-scoped verb against the managed slot and passes
// the reply through.
func (e *Engine) slotCommand(ctx context.Context, req Request, send func(id string, opts ...wpa.SendOption) error) Message {
	if req.NetworkID != "" && req.NetworkID != Slot {
		e.logWarn("only the managed network slot can be addressed", "command", req.Command, "network_id", req.NetworkID)
		return failure(req.Command)
	}

	reply, ok := e.exchange(ctx, req.Command, func(opts ...wpa.SendOption) error {
		return send(Slot, opts...)
	})
	if !ok {
		return failure(req.Command)
	}
	return NewMessage(reply)
}

// exchange sends one command and waits for its reply.
//
// Returns:
//   - wpa.Reply: The reply, valid only when ok is true
//   - bool: False if sending failed, the daemon answered FAIL, the wait
//     timed out or ctx was cancelled
func (e *Engine) exchange(ctx context.Context, verb wpa.Verb, send func(opts ...wpa.SendOption) error) (wpa.Reply, bool) {
	e.drainResponses()

	if err := send(wpa.WithReplyTo(e.responses)); err != nil {
		e.logError("sending command", err, "command", verb)
		return wpa.Reply{}, false
	}
	return e.awaitResponse(ctx, verb)
}

func (e *Engine) awaitResponse(ctx context.Context, verb wpa.Verb) (wpa.Reply, bool) {
	timer := time.NewTimer(e.responseTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return wpa.Reply{}, false
		case <-timer.C:
			e.timeouts.Add(1)
			e.logWarn("timed out waiting for response", "command", verb, "timeout", e.responseTimeout)
			return wpa.Reply{}, false
		case reply := <-e.responses:
			if reply.Verb != verb {
				e.logDebug("discarding unrelated response", "command", reply.Verb, "awaiting", verb)
				continue
			}
			if reply.Failed() {
				e.logWarn("command failed", "command", verb)
				return wpa.Reply{}, false
			}
			return reply, true
		}
	}
}

// drainResponses discards replies left over from earlier steps.
func (e *Engine) drainResponses() {
	for {
		select {
		case reply := <-e.responses:
			e.logDebug("discarding stale response", "command", reply.Verb)
		default:
			return
		}
	}
}

// decodeCredential decodes a base64 ssid or psk into UTF-8 text.
func decodeCredential(name string, encoded *string) (string, error) {
	if encoded == nil {
		return "", fmt.Errorf("%w: %s missing", ErrInvalidPayload, name)
	}
	raw, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not base64", ErrInvalidPayload, name)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: %s is not UTF-8", ErrInvalidPayload, name)
	}
	return string(raw), nil
}
