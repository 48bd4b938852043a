package procenv

import (
	"errors"
	"fmt"
	"runtime"

	"buildd/internal/faults"
)

// ErrUnsupportedOS is returned by strict operations on hosts without native
// process integration. It also matches faults.ErrUnavailable.
var ErrUnsupportedOS = errors.New("operating system not supported")

// Environment controls the current process.
type Environment interface {
	// SetEnvironment replaces the whole process environment with env.
	SetEnvironment(env map[string]string) error
	MaybeSetEnvironment(env map[string]string) bool

	SetEnvironmentVariable(name, value string) error
	MaybeSetEnvironmentVariable(name, value string) bool

	RemoveEnvironmentVariable(name string) error
	MaybeRemoveEnvironmentVariable(name string) bool

	ProcessDir() (string, error)
	MaybeProcessDir() (string, bool)

	SetProcessDir(dir string) error
	MaybeSetProcessDir(dir string) bool

	PID() (int, error)
	MaybePID() (int, bool)

	// Detach starts a new session so the process no longer belongs to the
	// launching terminal.
	Detach() error
	MaybeDetach() bool
}

// Unsupported is the Environment for hosts without native support. Strict
// forms fail with ErrUnsupportedOS; Maybe forms report false.
type Unsupported struct {
	OS string
}

// NewUnsupported returns an Unsupported environment for the running OS.
func NewUnsupported() Unsupported {
	return Unsupported{OS: runtime.GOOS}
}

func (u Unsupported) unavailable(operation string) error {
	return faults.Wrap(faults.ErrUnavailable, "procenv", operation,
		fmt.Sprintf("we don't support this operating system: %s", u.OS), ErrUnsupportedOS)
}

func (u Unsupported) SetEnvironment(map[string]string) error {
	return u.unavailable("set environment")
}

func (Unsupported) MaybeSetEnvironment(map[string]string) bool { return false }

func (u Unsupported) SetEnvironmentVariable(string, string) error {
	return u.unavailable("set environment variable")
}

func (Unsupported) MaybeSetEnvironmentVariable(string, string) bool { return false }

func (u Unsupported) RemoveEnvironmentVariable(string) error {
	return u.unavailable("remove environment variable")
}

func (Unsupported) MaybeRemoveEnvironmentVariable(string) bool { return false }

func (u Unsupported) ProcessDir() (string, error) {
	return "", u.unavailable("get process directory")
}

func (Unsupported) MaybeProcessDir() (string, bool) { return "", false }

func (u Unsupported) SetProcessDir(string) error {
	return u.unavailable("set process directory")
}

func (Unsupported) MaybeSetProcessDir(string) bool { return false }

func (u Unsupported) PID() (int, error) {
	return 0, u.unavailable("get pid")
}

func (Unsupported) MaybePID() (int, bool) { return 0, false }

func (u Unsupported) Detach() error {
	return u.unavailable("detach")
}

func (Unsupported) MaybeDetach() bool { return false }

var _ Environment = Unsupported{}
