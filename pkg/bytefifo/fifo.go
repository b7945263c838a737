// Package bytefifo implements a byte pipe: producers append bytes, and a
// consumer reads them back through io.Reader. Reads either block until data
// arrives or return ErrNoData immediately, depending on the mode.
package bytefifo

import (
	"context"
	"errors"
	"io"
	"sync"

	"streamtap/pkg/growbuf"
)

var (
	// ErrNoData is returned by reads on an empty non-blocking FIFO. It is
	// not end of stream: more data may arrive later.
	ErrNoData = errors.New("bytefifo: no data available")

	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("bytefifo: closed")
)

// FIFO is a byte-oriented pipe. The zero value is not usable; call New.
type FIFO struct {
	mu       sync.Mutex
	buf      *growbuf.Buffer
	blocking bool
	closed   bool
	// wake is closed and replaced whenever readers should re-check state
	wake chan struct{}
	// interrupted counts Interrupt calls so a reader can tell it was woken
	// by one, even if data arrived in the same instant
	interrupted uint64
}

// Option configures a FIFO.
type Option func(*FIFO)

// WithNonBlocking makes reads on an empty FIFO return ErrNoData instead of
// waiting.
func WithNonBlocking() Option {
	return func(f *FIFO) { f.blocking = false }
}

// WithBuffer sets the backing buffer. The FIFO takes ownership of it.
func WithBuffer(buf *growbuf.Buffer) Option {
	return func(f *FIFO) { f.buf = buf }
}

// New creates a FIFO. Reads block by default.
func New(opts ...Option) *FIFO {
	f := &FIFO{
		blocking: true,
		wake:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.buf == nil {
		f.buf = growbuf.NewDefault()
	}
	return f
}

// broadcast wakes every waiting reader. Caller holds mu.
func (f *FIFO) broadcast() {
	close(f.wake)
	f.wake = make(chan struct{})
}

// Append makes p available to readers and wakes any blocked reader.
func (f *FIFO) Append(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if len(p) == 0 {
		return nil
	}
	f.buf.Append(p)
	f.broadcast()
	return nil
}

// Write implements io.Writer on top of Append.
func (f *FIFO) Write(p []byte) (int, error) {
	if err := f.Append(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Unread pushes p back in front of the unread bytes, so the next read
// returns p first.
func (f *FIFO) Unread(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || len(p) == 0 {
		return
	}
	f.buf.Insert(0, p)
	f.broadcast()
}

// Read implements io.Reader. See ReadContext.
func (f *FIFO) Read(p []byte) (int, error) {
	return f.ReadContext(context.Background(), p)
}

// ReadContext reads up to len(p) bytes. On an empty blocking FIFO it waits
// until data is appended. Cancellation of ctx, Interrupt and Close end the
// wait with io.EOF rather than an error.
func (f *FIFO) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	f.mu.Lock()
	seen := f.interrupted
	for {
		if f.closed {
			f.mu.Unlock()
			return 0, io.EOF
		}
		if f.buf.Len() > 0 {
			out := f.buf.Take(len(p))
			f.mu.Unlock()
			return copy(p, out), nil
		}
		if !f.blocking {
			f.mu.Unlock()
			return 0, ErrNoData
		}
		if f.interrupted != seen {
			f.mu.Unlock()
			return 0, io.EOF
		}

		wake := f.wake
		f.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return 0, io.EOF
		}
		f.mu.Lock()
	}
}

// ReadByte implements io.ByteReader.
func (f *FIFO) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := f.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Len returns the number of unread bytes.
func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Len()
}

// Blocking reports whether reads wait for data.
func (f *FIFO) Blocking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocking
}

// Interrupt wakes every blocked reader; each returns io.EOF. The FIFO stays
// open and later reads behave normally.
func (f *FIFO) Interrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.interrupted++
	f.broadcast()
}

// Close discards buffered content and wakes blocked readers. Later appends
// fail with ErrClosed and reads return io.EOF.
func (f *FIFO) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.buf.Reset()
	f.broadcast()
	return nil
}
