//go:build unix

package daemonctl

import (
	"errors"

	"golang.org/x/sys/unix"
)

func terminateProcess(pid int) error {
	return signalProcess(pid, unix.SIGTERM)
}

func killProcess(pid int) error {
	return signalProcess(pid, unix.SIGKILL)
}

func signalProcess(pid int, sig unix.Signal) error {
	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return errProcessGone
	}
	return err
}

// processAlive treats EPERM as alive: the pid exists but belongs to another user.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
