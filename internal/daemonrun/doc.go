// Package daemonrun assembles a buildd daemon process: logging with a run
// session ID, log retention, process environment setup, pid file, cache,
// journal, expiration checks, and signal handling.
package daemonrun
