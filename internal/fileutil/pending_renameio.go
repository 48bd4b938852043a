//go:build !windows

package fileutil

import "github.com/google/renameio"

// NewPendingFile creates a temporary file for path inside dir, or inside a
// directory on the same filesystem as path when dir is empty. The temporary
// name is path's base name prefixed with a dot.
func NewPendingFile(dir, path string) (PendingFile, error) {
	pending, err := renameio.TempFile(dir, path)
	if err != nil {
		return nil, err
	}
	return pending, nil
}
