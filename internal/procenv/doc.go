// Package procenv exposes process-level environment control to the daemon:
// environment variables, working directory, PID, and session detach.
//
// Every operation comes in two forms. The strict form returns an error when
// the host cannot perform it. The Maybe form reports success as a bool and
// never returns an error, for best-effort callers that degrade silently.
// Unsupported implements both forms for hosts without native integration.
package procenv
