package util

import (
	"errors"
	"syscall"
)

// IsProcessAlive reports whether a process with the given pid exists.
// Exited processes that have not been reaped yet count as alive.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// signal 0 performs the existence and permission checks only
	err := syscall.Kill(pid, syscall.Signal(0))

	return err == nil || errors.Is(err, syscall.EPERM)
}
