//go:build unix

package fileutil

import "golang.org/x/sys/unix"

// CheckReadable reports whether the caller may list and traverse dir.
func CheckReadable(dir string) error {
	return unix.Access(dir, unix.R_OK|unix.X_OK)
}

// CheckWritable reports whether the caller may create entries in dir.
func CheckWritable(dir string) error {
	return unix.Access(dir, unix.W_OK|unix.X_OK)
}
