//go:build windows

package db

import (
	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for a process
// that has not terminated.
const stillActive = 259

// tryLock locks one byte at offset 0 via LockFileEx; FAIL_IMMEDIATELY
// makes the call non-blocking so a held lock returns an error for the
// caller's backoff loop.
func (l *writeLocker) tryLock() error {
	return windows.LockFileEx(
		windows.Handle(l.lockFile.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		1, 0, // byte range: length 1, high bits 0
		new(windows.Overlapped),
	)
}

func (l *writeLocker) unlock() {
	if l.lockFile == nil {
		return
	}
	windows.UnlockFileEx(
		windows.Handle(l.lockFile.Fd()),
		0,
		1, 0,
		new(windows.Overlapped),
	)
}

// isProcessAlive reports whether the PID recorded in the lock file still
// belongs to a running process.
func isProcessAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == stillActive
}
