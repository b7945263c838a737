// Package tee wraps byte channels so that every successful read or write is
// also mirrored into a framesink.Sink.
//
// The wrapped channel's results are returned unchanged. What the caller sees
// from a tee is exactly what it would have seen from the channel itself.
// Flush and Close pass through to the channel and never touch the sink; the
// sink's owner flushes it.
package tee

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"streamtap/pkg/framesink"
)

// Option configures a tee.
type Option func(*mirror)

// WithTag overrides the default tag.
func WithTag(tag framesink.Tag) Option {
	return func(m *mirror) { m.tag.Store(uint32(tag)) }
}

// WithStrictMirror makes a sink failure fail the read or write that
// triggered it. The byte count still reports what the channel transferred.
// Without it, sink failures go to the error handler only.
func WithStrictMirror() Option {
	return func(m *mirror) { m.strict = true }
}

// WithErrorHandler sets the function called with every sink failure. The
// default logs a warning.
func WithErrorHandler(fn func(error)) Option {
	return func(m *mirror) { m.onError = fn }
}

// mirror is the part shared by every tee: the sink, the tag and the
// failure policy.
type mirror struct {
	sink    framesink.Sink
	tag     atomic.Uint32
	strict  bool
	onError func(error)

	mu      sync.Mutex
	lastErr error
}

func newMirror(sink framesink.Sink, tag framesink.Tag, opts []Option) *mirror {
	m := &mirror{sink: sink}
	m.tag.Store(uint32(tag))
	for _, opt := range opts {
		opt(m)
	}
	if m.onError == nil {
		m.onError = func(err error) {
			slog.Warn("Failed to mirror bytes into sink", "error", err, "tag", m.Tag().String())
		}
	}
	return m
}

// Tag returns the tag attached to mirrored runs.
func (m *mirror) Tag() framesink.Tag {
	return framesink.Tag(m.tag.Load())
}

// SetTag changes the tag for subsequent runs. Safe to call at any time.
func (m *mirror) SetTag(tag framesink.Tag) {
	m.tag.Store(uint32(tag))
}

// Err returns the most recent sink failure, if any.
func (m *mirror) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// forward mirrors p and returns the error the caller should see on top of
// the channel's own error.
func (m *mirror) forward(p []byte, channelErr error) error {
	if len(p) == 0 {
		return channelErr
	}
	err := m.sink.AddRun(m.Tag(), p)
	if err == nil {
		return channelErr
	}

	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.onError(err)

	if m.strict && channelErr == nil {
		return err
	}
	return channelErr
}

// Reader mirrors everything read from an io.Reader.
type Reader struct {
	*mirror
	r io.Reader
}

// NewReader wraps r. Runs are tagged framesink.TagInput unless overridden.
func NewReader(r io.Reader, sink framesink.Sink, opts ...Option) *Reader {
	return &Reader{mirror: newMirror(sink, framesink.TagInput, opts), r: r}
}

func (t *Reader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		err = t.forward(p[:n], err)
	}
	return n, err
}

// Close closes the wrapped reader when it is an io.Closer.
func (t *Reader) Close() error {
	if c, ok := t.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Writer mirrors everything written to an io.Writer.
type Writer struct {
	*mirror
	w io.Writer
}

// NewWriter wraps w. Runs are tagged framesink.TagOutput unless overridden.
func NewWriter(w io.Writer, sink framesink.Sink, opts ...Option) *Writer {
	return &Writer{mirror: newMirror(sink, framesink.TagOutput, opts), w: w}
}

// Write mirrors the n bytes the wrapped writer accepted, even when it
// accepted fewer than len(p).
func (t *Writer) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		err = t.forward(p[:n], err)
	}
	return n, err
}

// Flush flushes the wrapped writer when it has a Flush method.
func (t *Writer) Flush() error {
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close closes the wrapped writer when it is an io.Closer.
func (t *Writer) Close() error {
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
