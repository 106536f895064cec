//go:build windows

package cmd

import "os"

// Windows has no SIGUSR1; the daemon runs without a foreground signal.
func foregroundSignal() os.Signal {
	return nil
}
