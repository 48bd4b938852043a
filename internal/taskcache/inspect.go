package taskcache

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"buildd/internal/faults"
	"buildd/internal/fileutil"
)

// Stats summarizes the cache directory contents.
type Stats struct {
	Entries    int
	TotalBytes int64
	// TempFiles counts leftover dot-prefixed temporaries from interrupted puts.
	TempFiles int
	// Foreign counts names that are neither entries nor temporaries.
	Foreign int
}

// Mismatch describes an entry whose content does not hash to its key.
type Mismatch struct {
	Key    Key
	Actual string
	Size   int64
}

// VerifyReport is the outcome of Verify.
type VerifyReport struct {
	Checked int
	// Skipped counts entries whose key length names no digest algorithm when
	// content checking is enabled.
	Skipped int
	// Unreadable lists entries that could not be read to the end.
	Unreadable []Key
	// Stray lists leftover temporaries and names that are not entries.
	Stray      []string
	Mismatches []Mismatch
}

// OK reports whether every entry was readable and, when content checking was
// enabled, matched its key. Stray names do not fail verification.
func (r VerifyReport) OK() bool {
	return len(r.Unreadable) == 0 && len(r.Mismatches) == 0
}

// VerifyOption configures Verify.
type VerifyOption func(*verifySettings)

type verifySettings struct {
	contentAddressed bool
}

// WithContentAddressed makes Verify rehash entries and compare against their
// keys. Keys normally fingerprint the inputs of a task rather than its output,
// so this only applies to caches populated by content hash.
func WithContentAddressed() VerifyOption {
	return func(v *verifySettings) { v.contentAddressed = true }
}

// Stats walks the cache directory once. It never modifies anything.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.walk(ctx, func(name string, key Key, info os.FileInfo) error {
		switch {
		case strings.HasPrefix(name, "."):
			stats.TempFiles++
		case key.IsZero() || !info.Mode().IsRegular():
			stats.Foreign++
		default:
			stats.Entries++
			stats.TotalBytes += info.Size()
		}
		return nil
	})
	return stats, err
}

// Keys lists entry keys in lexical order.
func (s *Store) Keys(ctx context.Context) ([]Key, error) {
	var keys []Key
	err := s.walk(ctx, func(_ string, key Key, info os.FileInfo) error {
		if !key.IsZero() && info.Mode().IsRegular() {
			keys = append(keys, key)
		}
		return nil
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i].hex < keys[j].hex })
	return keys, err
}

// Verify reads every entry to the end and lists stray names. With
// WithContentAddressed it also rehashes entries whose key length names a digest
// algorithm. Nothing is deleted.
func (s *Store) Verify(ctx context.Context, opts ...VerifyOption) (VerifyReport, error) {
	var settings verifySettings
	for _, opt := range opts {
		opt(&settings)
	}

	var report VerifyReport
	err := s.walk(ctx, func(name string, key Key, info os.FileInfo) error {
		if key.IsZero() || !info.Mode().IsRegular() {
			report.Stray = append(report.Stray, name)
			return nil
		}
		if !settings.contentAddressed {
			report.Checked++
			if err := readThrough(s.Path(key)); err != nil {
				report.Unreadable = append(report.Unreadable, key)
			}
			return nil
		}

		want, ok := key.Digest()
		if !ok {
			report.Skipped++
			return nil
		}
		report.Checked++
		got, size, err := fileutil.DigestFile(s.Path(key), want.Algorithm())
		if err != nil {
			report.Unreadable = append(report.Unreadable, key)
			return nil
		}
		if got != want {
			report.Mismatches = append(report.Mismatches, Mismatch{Key: key, Actual: got.Encoded(), Size: size})
		}
		return nil
	})
	return report, err
}

func readThrough(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(io.Discard, f)
	return err
}

func (s *Store) walk(ctx context.Context, fn func(name string, key Key, info os.FileInfo) error) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return faults.Wrap(faults.ErrIO, "taskcache", "list", s.dir, err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return faults.Wrap(faults.ErrIO, "taskcache", "stat", entry.Name(), err)
		}
		var key Key
		if !strings.HasPrefix(entry.Name(), ".") {
			if parsed, parseErr := ParseKey(entry.Name()); parseErr == nil && parsed.String() == entry.Name() {
				key = parsed
			}
		}
		if err := fn(entry.Name(), key, info); err != nil {
			return err
		}
	}
	return nil
}
