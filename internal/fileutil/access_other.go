//go:build !unix

package fileutil

import (
	"errors"
	"io"
	"os"
)

// CheckReadable reports whether the caller may list dir.
func CheckReadable(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// CheckWritable creates and removes a scratch file in dir.
func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".access-*")
	if err != nil {
		return err
	}
	name := f.Name()
	closeErr := f.Close()
	if err := os.Remove(name); err != nil {
		return err
	}
	return closeErr
}
