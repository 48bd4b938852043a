// Package fileutil holds small file helpers shared by the task cache and the
// CLI: streaming content digests and atomic whole-file replacement.
package fileutil
