package taskcache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"buildd/internal/faults"
	"buildd/internal/fileutil"
	"buildd/internal/logging"
)

const entryMode os.FileMode = 0o644

// Observer receives cache outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	CacheLookup(hit bool)
	CachePut(err error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug and warning output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an observer for lookups and puts.
func WithObserver(observer Observer) Option {
	return func(s *Store) {
		s.observer = observer
	}
}

// Store is a task-result cache backed by one local directory.
type Store struct {
	dir      string
	logger   *slog.Logger
	observer Observer
}

// New opens the cache rooted at dir, creating it (with parents) when absent.
// An existing path must be a readable and writable directory. Violations are
// reported as faults.ErrConfiguration.
func New(dir string, opts ...Option) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, faults.Wrap(faults.ErrConfiguration, "taskcache", "open", "cache directory is empty", nil)
	}
	dir = filepath.Clean(dir)

	s := &Store{dir: dir, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "taskcache")

	if err := prepareDir(dir); err != nil {
		return nil, err
	}
	return s, nil
}

func prepareDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return faults.Wrap(faults.ErrConfiguration, "taskcache", "open",
				fmt.Sprintf("cache directory %s exists but is not a directory", dir), nil)
		}
		if err := fileutil.CheckReadable(dir); err != nil {
			return faults.Wrap(faults.ErrConfiguration, "taskcache", "open",
				fmt.Sprintf("cache directory %s is not readable", dir), err)
		}
		if err := fileutil.CheckWritable(dir); err != nil {
			return faults.Wrap(faults.ErrConfiguration, "taskcache", "open",
				fmt.Sprintf("cache directory %s is not writable", dir), err)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return faults.Wrap(faults.ErrConfiguration, "taskcache", "open",
				fmt.Sprintf("create cache directory %s", dir), err)
		}
		return nil
	default:
		return faults.Wrap(faults.ErrConfiguration, "taskcache", "open",
			fmt.Sprintf("stat cache directory %s", dir), err)
	}
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of key's entry.
func (s *Store) Path(key Key) string {
	return filepath.Join(s.dir, key.String())
}

// Describe returns a human-readable description of the cache.
func (s *Store) Describe() string {
	return "local directory cache in " + s.dir
}

// Get looks up key. ok is false with a nil error when no regular file exists
// for the key. The returned Reader defers all file I/O until it is read.
func (s *Store) Get(key Key) (*Reader, bool, error) {
	if key.IsZero() {
		return nil, false, faults.Wrap(faults.ErrConfiguration, "taskcache", "get", "zero key", nil)
	}
	path := s.Path(key)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.lookup(key, false)
			return nil, false, nil
		}
		return nil, false, faults.Wrap(faults.ErrIO, "taskcache", "get", key.String(), err)
	}
	if !info.Mode().IsRegular() {
		s.lookup(key, false)
		return nil, false, nil
	}
	s.lookup(key, true)
	return &Reader{key: key, path: path, size: info.Size()}, true, nil
}

// Has reports whether a regular file exists for key.
func (s *Store) Has(key Key) bool {
	if key.IsZero() {
		return false
	}
	info, err := os.Stat(s.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// Put stores the bytes produced by w under key, replacing any prior entry.
// Content is written to a temporary file and renamed into place; on failure
// the temporary file is removed and a prior entry is left untouched.
func (s *Store) Put(key Key, w Writer) error {
	err := s.put(key, w)
	if s.observer != nil {
		s.observer.CachePut(err)
	}
	if err != nil {
		logging.WarnWithContext(s.logger, "task result put failed", "cache_put_failed",
			logging.String(logging.FieldCacheKey, key.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on "+s.dir),
			logging.String(logging.FieldImpact, "result will be recomputed on next request"))
	}
	return err
}

func (s *Store) put(key Key, w Writer) error {
	if key.IsZero() {
		return faults.Wrap(faults.ErrConfiguration, "taskcache", "put", "zero key", nil)
	}
	if w == nil {
		return faults.Wrap(faults.ErrConfiguration, "taskcache", "put", "nil writer", nil)
	}
	path := s.Path(key)

	pending, err := fileutil.NewPendingFile(s.dir, path)
	if err != nil {
		return faults.Wrap(faults.ErrIO, "taskcache", "put", "create temporary file", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	written, err := w.WriteTo(pending)
	if err != nil {
		return faults.Wrap(faults.ErrIO, "taskcache", "put", "write "+key.String(), err)
	}
	if err := pending.Chmod(entryMode); err != nil {
		return faults.Wrap(faults.ErrIO, "taskcache", "put", "chmod temporary file", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return faults.Wrap(faults.ErrIO, "taskcache", "put", "commit "+key.String(), err)
	}

	s.logger.Debug("stored task result",
		logging.String(logging.FieldCacheKey, key.String()),
		logging.Int64("bytes", written))
	return nil
}

func (s *Store) lookup(key Key, hit bool) {
	if s.observer != nil {
		s.observer.CacheLookup(hit)
	}
	s.logger.Debug("task result lookup",
		logging.String(logging.FieldCacheKey, key.String()),
		logging.Bool("hit", hit))
}
