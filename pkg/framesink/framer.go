package framesink

import (
	"sync"

	"streamtap/pkg/growbuf"
)

// DefaultBoundary ends a frame at carriage return, line feed.
var DefaultBoundary = []byte("\r\n")

// Framer re-segments the mirrored byte stream into frames that end at a
// boundary pattern and forwards each frame to the wrapped sink as one run.
//
// Bytes accumulate per tag. A run with a different tag than the pending
// bytes first forwards the pending bytes as a frame of its own, even though
// no boundary was seen. Boundaries are located by searching the accumulated
// bytes, which is correct for patterns that overlap themselves.
type Framer struct {
	mu       sync.Mutex
	next     Sink
	boundary []byte
	buf      *growbuf.Buffer
	tag      Tag
	// scanned is how far the buffer is known to hold no boundary start
	scanned int
}

var _ Sink = (*Framer)(nil)

// NewFramer wraps next. A nil boundary selects DefaultBoundary; an empty
// non-nil one is rejected.
func NewFramer(next Sink, boundary []byte) (*Framer, error) {
	if boundary == nil {
		boundary = DefaultBoundary
	}
	if len(boundary) == 0 {
		return nil, ErrEmptyBoundary
	}
	return &Framer{
		next:     next,
		boundary: append([]byte(nil), boundary...),
		buf:      growbuf.NewDefault(),
	}, nil
}

// Boundary returns a copy of the boundary pattern.
func (f *Framer) Boundary() []byte {
	return append([]byte(nil), f.boundary...)
}

// Pending returns the number of accumulated bytes not yet forwarded.
func (f *Framer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Len()
}

func (f *Framer) AddRun(tag Tag, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if tag != f.tag && f.buf.Len() > 0 {
		if err := f.emitPending(); err != nil {
			return err
		}
	}
	f.tag = tag
	f.buf.Append(p)
	return f.emitFrames()
}

func (f *Framer) AddByte(tag Tag, b byte) error {
	return f.AddRun(tag, []byte{b})
}

// AddComment forwards the comment to the wrapped sink unchanged. Pending
// bytes stay pending.
func (f *Framer) AddComment(tag Tag, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next.AddComment(tag, text)
}

// Flush forwards whatever is pending as a final frame, then flushes the
// wrapped sink. Call it at teardown or trailing bytes are lost.
func (f *Framer) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.emitPending(); err != nil {
		return err
	}
	return f.next.Flush()
}

// emitFrames forwards every complete frame in the buffer. Caller holds mu.
func (f *Framer) emitFrames() error {
	for f.buf.Len() >= len(f.boundary) {
		p := f.buf.IndexOf(f.boundary, f.scanned)
		if p < 0 {
			// a boundary can still start in the last len-1 bytes
			f.scanned = max(0, f.buf.Len()-len(f.boundary)+1)
			return nil
		}
		end := p + len(f.boundary)
		frame := f.buf.Slice(0, end)
		f.buf.DeleteHead(end)
		f.scanned = 0
		if err := f.next.AddRun(f.tag, frame); err != nil {
			return err
		}
	}
	return nil
}

// emitPending forwards the buffer as one frame regardless of boundaries.
// Caller holds mu.
func (f *Framer) emitPending() error {
	if f.buf.Len() == 0 {
		return nil
	}
	frame := f.buf.Bytes()
	f.buf.Clear()
	f.scanned = 0
	return f.next.AddRun(f.tag, frame)
}
