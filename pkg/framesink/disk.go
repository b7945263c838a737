package framesink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// DiskSink writes every run straight to its destination and flushes after
// each call. Tags are ignored and comments dropped, so the destination
// receives exactly the mirrored bytes.
type DiskSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
}

var _ Sink = (*DiskSink)(nil)

// NewDiskSink writes to w. Closing the sink does not close w.
func NewDiskSink(w io.Writer) *DiskSink {
	return &DiskSink{w: bufio.NewWriter(w)}
}

// OpenDiskSink appends to the file at path, creating it if needed. Close
// closes the file.
func OpenDiskSink(path string) (*DiskSink, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open disk sink: %w", err)
	}
	return &DiskSink{w: bufio.NewWriter(file), closer: file}, nil
}

func (d *DiskSink) AddRun(_ Tag, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.w.Write(p); err != nil {
		return err
	}
	return d.w.Flush()
}

func (d *DiskSink) AddByte(_ Tag, b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.w.WriteByte(b); err != nil {
		return err
	}
	return d.w.Flush()
}

// AddComment drops the comment.
func (d *DiskSink) AddComment(Tag, string) error {
	return nil
}

func (d *DiskSink) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w.Flush()
}

// Close flushes and, for sinks opened with OpenDiskSink, closes the file.
func (d *DiskSink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.w.Flush()
	if d.closer != nil {
		if cerr := d.closer.Close(); err == nil {
			err = cerr
		}
		d.closer = nil
	}
	return err
}
