//go:build windows

package fileutil

import (
	"os"
	"path/filepath"
)

type renamePending struct {
	*os.File
	path   string
	closed bool
	done   bool
}

// NewPendingFile creates a temporary file for path inside dir, or beside path
// when dir is empty. The temporary name is path's base name prefixed with a
// dot.
func NewPendingFile(dir, path string) (PendingFile, error) {
	if dir == "" {
		dir = filepath.Dir(path)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return &renamePending{File: f, path: path}, nil
}

func (p *renamePending) CloseAtomicallyReplace() error {
	if err := p.Sync(); err != nil {
		return err
	}
	p.closed = true
	if err := p.Close(); err != nil {
		return err
	}
	if err := os.Rename(p.Name(), p.path); err != nil {
		return err
	}
	p.done = true
	return nil
}

func (p *renamePending) Cleanup() error {
	if p.done {
		return nil
	}
	var closeErr error
	if !p.closed {
		closeErr = p.Close()
	}
	if err := os.Remove(p.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}
