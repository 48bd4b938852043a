package fileutil

import (
	"io"
	"os"
)

// PendingFile is a temporary sibling of a target path. Content written to it
// becomes visible at the target only on CloseAtomicallyReplace. Cleanup removes
// the temporary file unless it was committed and is safe to defer.
type PendingFile interface {
	io.Writer
	Name() string
	Chmod(mode os.FileMode) error
	CloseAtomicallyReplace() error
	Cleanup() error
}
