// Package memory reports host physical memory to the expiration engine.
//
// Info is the seam between the engine and the operating system: the host
// implementation reads live values through gopsutil, while tests and the CLI
// can pass a Snapshot with synthetic readings. Total and free values are
// best-effort snapshots and are not guaranteed to be consistent with each
// other.
package memory
