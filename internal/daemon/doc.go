// Package daemon coordinates the long-running buildd process.
//
// It owns the task cache, the stop-event journal, and the expiration engine,
// and enforces one daemon per state directory with a flock lock. The daemon
// is the engine's Controller: when the engine decides to expire, the daemon
// stops admitting work, journals the decision, waits for in-flight work on a
// graceful expiry, and then closes Done so the process can exit.
//
// Keep orchestration here: the cache and the checks stay ignorant of process
// lifecycle.
package daemon
