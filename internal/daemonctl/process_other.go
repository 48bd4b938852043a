//go:build !unix

package daemonctl

import (
	"errors"
	"fmt"
	"os"

	"buildd/internal/procenv"
)

// terminateProcess has no graceful signal to send here; Stop falls back to
// killProcess.
func terminateProcess(int) error {
	return fmt.Errorf("graceful termination: %w", procenv.ErrUnsupportedOS)
}

func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return errProcessGone
	}
	defer proc.Release()
	if err := proc.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return errProcessGone
		}
		return err
	}
	return nil
}

// processAlive reports whether pid can still be opened.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}
