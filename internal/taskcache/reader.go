package taskcache

import (
	"io"
	"os"

	"buildd/internal/faults"
)

// Reader is a lazy handle to a stored entry. It holds only the path; the file
// is opened when content is requested, so a Reader that is never read costs
// nothing.
type Reader struct {
	key  Key
	path string
	size int64
}

// Key returns the entry key.
func (r *Reader) Key() Key { return r.key }

// Path returns the entry file path.
func (r *Reader) Path() string { return r.path }

// Size returns the entry size observed when the Reader was created.
func (r *Reader) Size() int64 { return r.size }

// Open returns a stream over the entry bytes. The caller must close it.
func (r *Reader) Open() (io.ReadCloser, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, "taskcache", "open entry", r.key.String(), err)
	}
	return f, nil
}

// Read opens the entry, passes the stream to fn and closes it afterwards.
func (r *Reader) Read(fn func(io.Reader) error) (err error) {
	rc, err := r.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = faults.Wrap(faults.ErrIO, "taskcache", "close entry", r.key.String(), closeErr)
		}
	}()
	return fn(rc)
}

// Bytes reads the whole entry into memory.
func (r *Reader) Bytes() ([]byte, error) {
	var data []byte
	err := r.Read(func(rd io.Reader) error {
		var readErr error
		data, readErr = io.ReadAll(rd)
		if readErr != nil {
			return faults.Wrap(faults.ErrIO, "taskcache", "read entry", r.key.String(), readErr)
		}
		return nil
	})
	return data, err
}
