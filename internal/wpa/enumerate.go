package wpa

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultCtrlDir is where wpa_supplicant creates its control sockets.
const DefaultCtrlDir = "/var/run/wpa_supplicant"

// Enumerate lists the control sockets in dir, one per managed interface.
//
// Parameters:
//   - dir: Control directory; empty means DefaultCtrlDir
//
// Returns:
//   - []string: Full socket paths in name order
//   - error: If the directory cannot be read
func Enumerate(dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultCtrlDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading control directory: %w", err)
	}

	var sockets []string
	for _, entry := range entries {
		if entry.Type()&os.ModeSocket == 0 {
			continue
		}
		sockets = append(sockets, filepath.Join(dir, entry.Name()))
	}
	return sockets, nil
}
