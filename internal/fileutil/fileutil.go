package fileutil

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"io"
	"os"

	"github.com/opencontainers/go-digest"
)

// DigestFile streams path through alg and returns the digest with the number of
// bytes read.
func DigestFile(path string, alg digest.Algorithm) (digest.Digest, int64, error) {
	if !alg.Available() {
		return "", 0, fmt.Errorf("digest algorithm %q unavailable", alg)
	}
	in, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	digester := alg.Digester()
	n, err := io.Copy(digester.Hash(), in)
	if err != nil {
		return "", n, err
	}
	return digester.Digest(), n, nil
}

// WriteFileAtomic streams r into dst through a temporary sibling and renames it
// into place, so readers observe either the old content or the complete new one.
func WriteFileAtomic(dst string, r io.Reader, mode os.FileMode) (int64, error) {
	pending, err := NewPendingFile("", dst)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	written, err := io.Copy(pending, r)
	if err != nil {
		return written, err
	}
	if err := pending.Chmod(mode); err != nil {
		return written, err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return written, err
	}
	return written, nil
}

// CopyFileVerified copies src to dst atomically and confirms the copy hashes to
// the same sha256 digest as the source. dst is removed on mismatch.
func CopyFileVerified(src, dst string) error {
	want, size, err := DigestFile(src, digest.SHA256)
	if err != nil {
		return fmt.Errorf("hash source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	written, err := WriteFileAtomic(dst, in, 0o644)
	if err != nil {
		return err
	}
	if written != size {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", size, written)
	}

	got, _, err := DigestFile(dst, digest.SHA256)
	if err != nil {
		return fmt.Errorf("hash copy: %w", err)
	}
	if got != want {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
