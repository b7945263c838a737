package framesink

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// TextLogSink writes one line per run:
//
//	[<tag>] <2006-01-02 15:04:05.000> <rendered payload>
//
// Comments produce a line with the comment text instead of a payload. One
// mutex covers every call, so lines from concurrent tees never interleave.
type TextLogSink struct {
	mu       sync.Mutex
	w        io.Writer
	renderer Renderer
	now      func() time.Time
}

var _ Sink = (*TextLogSink)(nil)

// TextLogOption configures a TextLogSink.
type TextLogOption func(*TextLogSink)

// WithRenderer sets the payload renderer. The default is AutoRenderer.
func WithRenderer(r Renderer) TextLogOption {
	return func(s *TextLogSink) { s.renderer = r }
}

// WithClock sets the time source used for line timestamps.
func WithClock(now func() time.Time) TextLogOption {
	return func(s *TextLogSink) { s.now = now }
}

// NewTextLogSink writes lines to w.
func NewTextLogSink(w io.Writer, opts ...TextLogOption) *TextLogSink {
	s := &TextLogSink{
		w:        w,
		renderer: AutoRenderer,
		now:      nowFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FormatLine renders one log line, including the trailing newline.
func FormatLine(tag Tag, ts time.Time, text string) string {
	return fmt.Sprintf("[%c] %s %s\n", byte(tag), ts.Format(TimestampLayout), text)
}

func (s *TextLogSink) writeLine(tag Tag, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := io.WriteString(s.w, FormatLine(tag, s.now(), text))
	return err
}

func (s *TextLogSink) AddRun(tag Tag, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return s.writeLine(tag, s.renderer.Render(p))
}

func (s *TextLogSink) AddByte(tag Tag, b byte) error {
	return s.writeLine(tag, s.renderer.Render([]byte{b}))
}

func (s *TextLogSink) AddComment(tag Tag, text string) error {
	return s.writeLine(tag, text)
}

// Flush flushes the destination when it supports it.
func (s *TextLogSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// WriteFrame writes a previously captured frame, keeping its own timestamp.
func (s *TextLogSink) WriteFrame(f Frame) error {
	text := f.Comment
	if !f.IsComment() {
		text = s.renderer.Render(f.Payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := io.WriteString(s.w, FormatLine(f.Tag, f.Time, text))
	return err
}
