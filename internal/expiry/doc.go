// Package expiry decides when a resident daemon should stop.
//
// A Check evaluates one health condition and returns a Verdict. The Engine
// runs every registered Check on each tick, reduces the verdicts by severity,
// and drives a one-way state machine:
//
//	RUNNING --graceful--> DRAINING --MarkStopped--> STOPPED
//	RUNNING --immediate--> STOPPED
//
// Leaving RUNNING is permanent for the engine instance. The Controller is
// notified exactly once, on that transition, and owns drain and exit
// sequencing; the engine never exits the process.
//
// Checks fail open: an error, panic, or timeout is logged, recorded on the
// Decision, and otherwise treated as not triggered.
package expiry
