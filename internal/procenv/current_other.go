//go:build !unix

package procenv

// Current returns the Environment for this build target.
func Current() Environment { return NewUnsupported() }
