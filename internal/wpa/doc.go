// Package wpa implements a client for the wpa_supplicant control interface.
//
// The daemon listens on a unix datagram socket per wireless interface.
// Requests are a verb optionally followed by space-separated arguments;
// replies are plain text. Lines starting with "<" are unsolicited event
// notifications, delivered only after ATTACH.
//
// # Command flow
//
// Commands are queued from any goroutine and sent strictly one at a time by
// the client's poll loop. The next command is sent only after the current
// one is answered, fails to transmit, or goes stale (no reply within the
// stale timeout). Replies go to the command's own channel (WithReplyTo) or
// the client's default sink.
//
// # Reply shapes
//
//	FAIL                            failure marker, whatever the verb
//	SCAN, *_NETWORK, ATTACH, ...    trimmed text ("OK", "0", "PONG")
//	SCAN_RESULTS, LIST_NETWORKS     rows labelled by the "/"-separated header
//	STATUS, SIGNAL_POLL             key=value mapping
//
// # Usage
//
//	client, err := wpa.NewClient(wpa.Options{Device: "/var/run/wpa_supplicant/wlan0"})
//	if err != nil {
//	    return err
//	}
//	if err := client.Start(); err != nil {
//	    return err
//	}
//	defer client.Stop()
//
//	reply, err := client.Do(ctx, wpa.NewCommand(wpa.VerbStatus, nil))
package wpa
