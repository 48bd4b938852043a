// Package daemonctl starts, stops, and inspects a background buildd daemon.
//
// A daemon is running when another process holds the flock on the instance
// lock file; its pid comes from the pid file written by daemonrun.
package daemonctl
