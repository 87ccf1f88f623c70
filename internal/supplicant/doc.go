// Package supplicant runs wpa_supplicant as a supervised child process.
//
// Supervision is optional: when the daemon is managed externally (for
// example by systemd) the Supervisor methods are no-ops and wpaif only
// talks to the existing control socket.
//
// When managed, the Supervisor:
//   - starts wpa_supplicant with -i, -c, -C and -D taken from config
//   - waits for the control socket to appear before returning from Start
//   - logs every line the daemon writes to stdout or stderr
//   - PINGs the daemon periodically and kills it after three failures
//   - restarts it with exponential backoff, up to a configured limit
//   - stops it with SIGTERM, then SIGKILL after a grace period
//
// Example usage:
//
//	sup, err := supplicant.NewSupervisor(cfg.Supplicant)
//	if err != nil {
//	    return err
//	}
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package supplicant
