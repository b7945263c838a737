package tee

import (
	"io"
	"sync"

	"streamtap/pkg/framesink"
)

// ReadWriter mirrors both directions of a bidirectional channel such as a
// network connection or a PTY. Reads are tagged framesink.TagInput and
// writes framesink.TagOutput by default; each direction's tag can be changed
// through In and Out.
type ReadWriter struct {
	In  *Reader
	Out *Writer

	rw        io.ReadWriter
	closeOnce sync.Once
	closeErr  error
}

// NewReadWriter wraps rw. opts apply to both directions; a WithTag option
// therefore gives both directions the same tag.
func NewReadWriter(rw io.ReadWriter, sink framesink.Sink, opts ...Option) *ReadWriter {
	return &ReadWriter{
		In:  NewReader(rw, sink, opts...),
		Out: NewWriter(rw, sink, opts...),
		rw:  rw,
	}
}

func (t *ReadWriter) Read(p []byte) (int, error) {
	return t.In.Read(p)
}

func (t *ReadWriter) Write(p []byte) (int, error) {
	return t.Out.Write(p)
}

// Flush flushes the wrapped channel when it has a Flush method.
func (t *ReadWriter) Flush() error {
	return t.Out.Flush()
}

// Close closes the wrapped channel once.
func (t *ReadWriter) Close() error {
	t.closeOnce.Do(func() {
		if c, ok := t.rw.(io.Closer); ok {
			t.closeErr = c.Close()
		}
	})
	return t.closeErr
}
