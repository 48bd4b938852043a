package expiry

import "context"

// Check evaluates one expiration condition against current state.
// Implementations must be safe for concurrent use with themselves across
// ticks and should return promptly when ctx is done.
type Check interface {
	Name() string
	Evaluate(ctx context.Context) (Verdict, error)
}

type funcCheck struct {
	name string
	fn   func(context.Context) (Verdict, error)
}

// CheckFunc adapts fn into a named Check.
func CheckFunc(name string, fn func(context.Context) (Verdict, error)) Check {
	return funcCheck{name: name, fn: fn}
}

func (c funcCheck) Name() string { return c.name }

func (c funcCheck) Evaluate(ctx context.Context) (Verdict, error) {
	return c.fn(ctx)
}
