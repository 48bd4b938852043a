//go:build unix

package procenv

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"buildd/internal/faults"
)

// Native controls the current process through the operating system.
type Native struct{}

// Current returns the Environment for this build target.
func Current() Environment { return Native{} }

func (Native) SetEnvironment(env map[string]string) error {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if name == "" {
			continue
		}
		if _, keep := env[name]; keep {
			continue
		}
		if err := os.Unsetenv(name); err != nil {
			return faults.Wrap(faults.ErrIO, "procenv", "set environment", "unset "+name, err)
		}
	}
	for name, value := range env {
		if err := os.Setenv(name, value); err != nil {
			return faults.Wrap(faults.ErrIO, "procenv", "set environment", "set "+name, err)
		}
	}
	return nil
}

func (n Native) MaybeSetEnvironment(env map[string]string) bool {
	return n.SetEnvironment(env) == nil
}

func (Native) SetEnvironmentVariable(name, value string) error {
	if err := os.Setenv(name, value); err != nil {
		return faults.Wrap(faults.ErrIO, "procenv", "set environment variable", name, err)
	}
	return nil
}

func (n Native) MaybeSetEnvironmentVariable(name, value string) bool {
	return n.SetEnvironmentVariable(name, value) == nil
}

func (Native) RemoveEnvironmentVariable(name string) error {
	if err := os.Unsetenv(name); err != nil {
		return faults.Wrap(faults.ErrIO, "procenv", "remove environment variable", name, err)
	}
	return nil
}

func (n Native) MaybeRemoveEnvironmentVariable(name string) bool {
	return n.RemoveEnvironmentVariable(name) == nil
}

func (Native) ProcessDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", faults.Wrap(faults.ErrIO, "procenv", "get process directory", "", err)
	}
	return dir, nil
}

func (n Native) MaybeProcessDir() (string, bool) {
	dir, err := n.ProcessDir()
	return dir, err == nil
}

func (Native) SetProcessDir(dir string) error {
	if err := os.Chdir(dir); err != nil {
		return faults.Wrap(faults.ErrIO, "procenv", "set process directory", dir, err)
	}
	return nil
}

func (n Native) MaybeSetProcessDir(dir string) bool {
	return n.SetProcessDir(dir) == nil
}

func (Native) PID() (int, error) { return os.Getpid(), nil }

func (Native) MaybePID() (int, bool) { return os.Getpid(), true }

// Detach calls setsid(2). It fails when the process already leads a process
// group, which is the case when started directly from an interactive shell
// without a fork.
func (Native) Detach() error {
	if _, err := unix.Setsid(); err != nil {
		return faults.Wrap(faults.ErrUnavailable, "procenv", "detach", fmt.Sprintf("setsid for pid %d", os.Getpid()), err)
	}
	return nil
}

func (n Native) MaybeDetach() bool {
	return n.Detach() == nil
}

var _ Environment = Native{}
