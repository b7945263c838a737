// Package framesink defines the receiving end of mirrored byte traffic.
//
// A Sink accepts runs of bytes tagged with the channel they came from. The
// concrete sinks in this package write runs to disk (DiskSink), dump them as
// timestamped log lines (TextLogSink) or queue them as frames for another
// goroutine (QueueSink). A Framer wraps any Sink and re-segments the byte
// stream at a boundary pattern before forwarding it.
package framesink

import (
	"errors"
	"time"
)

// Tag identifies the channel or direction a run of bytes came from. It is
// printed as a single character in log lines.
type Tag byte

const (
	// TagInput is the default tag of input-direction tees.
	TagInput Tag = 'I'
	// TagOutput is the default tag of output-direction tees.
	TagOutput Tag = 'O'
)

// String returns the tag as a one-character string.
func (t Tag) String() string {
	return string(rune(t))
}

// Sink receives mirrored bytes. Implementations must be safe for concurrent
// use, since several tees may share one sink, and must not keep p after the
// call returns.
type Sink interface {
	// AddRun accepts a run of bytes observed on the channel tagged tag.
	AddRun(tag Tag, p []byte) error
	// AddByte accepts a single byte.
	AddByte(tag Tag, b byte) error
	// AddComment accepts an out-of-band annotation.
	AddComment(tag Tag, text string) error
	// Flush pushes out anything the sink is holding.
	Flush() error
}

// TimestampLayout is the timestamp format of text log lines.
const TimestampLayout = "2006-01-02 15:04:05.000"

var (
	ErrQueueFull       = errors.New("framesink: queue full")
	ErrQueueClosed     = errors.New("framesink: queue closed")
	ErrEmptyBoundary   = errors.New("framesink: empty boundary pattern")
	ErrInvalidCapacity = errors.New("framesink: queue capacity must be positive")
)

// Frame is one discrete unit handed to a queue consumer. A comment frame
// carries Comment and no Payload. Frames are not modified after creation.
type Frame struct {
	Tag     Tag
	Time    time.Time
	Payload []byte
	Comment string
}

// IsComment reports whether f is an out-of-band comment.
func (f Frame) IsComment() bool {
	return f.Payload == nil
}

// nowFunc is the default clock of sinks that stamp frames.
func nowFunc() time.Time {
	return time.Now()
}
