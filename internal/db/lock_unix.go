//go:build unix

package db

import (
	"os"
	"syscall"
)

// tryLock takes the exclusive flock without blocking; a held lock surfaces
// as EWOULDBLOCK and the caller backs off and retries.
func (l *writeLocker) tryLock() error {
	return syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (l *writeLocker) unlock() {
	if l.lockFile == nil {
		return
	}
	syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
}

// isProcessAlive reports whether the PID recorded in the lock file still
// belongs to a running process. FindProcess never fails on Unix, so the
// real check is signal 0.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
