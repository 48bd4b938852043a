// Package logging assembles structured slog loggers and formatting helpers used
// across the build daemon.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and tags every record with the daemon session ID so log lines from
// one resident process can be told apart from the next. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so the cache, the
// expiration engine, and the lifecycle controller emit data with the same
// shape.
package logging
