// Package faults defines the error taxonomy shared by the cache, the
// expiration engine, and the process-environment capability.
//
// Errors are tagged with one of the exported sentinel markers and wrapped with
// component/operation context so callers classify them with errors.Is instead
// of string matching. Configuration errors fail construction; I/O errors are
// returned from cache traffic; unavailable-capability errors come from hosts
// that lack native integration; check failures never leave the engine.
package faults
