package outputlog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"streamtap/pkg/framesink"
)

// Sink writes every run it receives as one record. Records are written
// synchronously under one mutex, so concurrent tees never interleave.
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	names StreamNames
	now   func() time.Time
}

var _ framesink.Sink = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithStreamNames sets the tag to stream name table. Names that are not
// valid stream names are ignored.
func WithStreamNames(names StreamNames) Option {
	return func(s *Sink) {
		s.names = StreamNames{}
		for tag, name := range names {
			if ValidStream(name) {
				s.names[tag] = name
			}
		}
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// NewSink writes records to w.
func NewSink(w io.Writer, opts ...Option) *Sink {
	s := &Sink{
		w:     w,
		names: DefaultStreamNames,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Names returns the tag to stream name table in use.
func (s *Sink) Names() StreamNames {
	return s.names
}

func (s *Sink) write(stream string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := FormatChunk(Chunk{
		Stream:    stream,
		Timestamp: s.now().UTC(),
		Content:   content,
	})
	if _, err := s.w.Write(record); err != nil {
		return fmt.Errorf("write %s record: %w", stream, err)
	}
	return nil
}

func (s *Sink) AddRun(tag framesink.Tag, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return s.write(s.names.Name(tag), p)
}

func (s *Sink) AddByte(tag framesink.Tag, b byte) error {
	return s.write(s.names.Name(tag), []byte{b})
}

func (s *Sink) AddComment(tag framesink.Tag, text string) error {
	return s.write(commentPrefix+s.names.Name(tag), []byte(text))
}

// Flush flushes the destination when it supports it.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
