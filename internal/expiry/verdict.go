package expiry

import "fmt"

// Status is the outcome of one check or of a whole tick.
type Status int

const (
	NotTriggered Status = iota
	GracefulExpire
	ImmediateExpire
)

func (s Status) String() string {
	switch s {
	case NotTriggered:
		return "not_triggered"
	case GracefulExpire:
		return "graceful"
	case ImmediateExpire:
		return "immediate"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Verdict is a single check result. Reason is required unless Status is
// NotTriggered.
type Verdict struct {
	Status Status
	Reason string
}

// Triggered reports whether the verdict asks for expiration.
func (v Verdict) Triggered() bool { return v.Status != NotTriggered }

// Pass returns the not-triggered verdict.
func Pass() Verdict { return Verdict{} }

// Graceful returns a verdict that drains in-flight work before stopping.
func Graceful(reason string) Verdict {
	return Verdict{Status: GracefulExpire, Reason: reason}
}

// Immediate returns a verdict that stops without draining.
func Immediate(reason string) Verdict {
	return Verdict{Status: ImmediateExpire, Reason: reason}
}
