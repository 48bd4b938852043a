package taskcache

import (
	"bytes"
	"io"
)

// Writer produces an entry's bytes. It matches io.WriterTo, so *bytes.Reader,
// *strings.Reader and *bytes.Buffer can be passed directly.
type Writer = io.WriterTo

// WriterFunc adapts a function that streams content into a Writer.
type WriterFunc func(w io.Writer) error

// WriteTo calls f and reports how many bytes it wrote.
func (f WriterFunc) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := f(cw)
	return cw.n, err
}

// BytesWriter returns a Writer for an in-memory value.
func BytesWriter(data []byte) Writer {
	return bytes.NewReader(data)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
