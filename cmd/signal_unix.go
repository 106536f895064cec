//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// foregroundSignal is the signal that asks the daemon for a foreground
// sync check.
func foregroundSignal() os.Signal {
	return syscall.SIGUSR1
}
