package outputlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reader parses records written by Sink.
type Reader struct {
	r *bufio.Reader
}

// NewReader reads records from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record. It returns io.EOF at a clean end of input;
// any other error means the record was malformed or cut off.
func (o *Reader) Next() (Chunk, error) {
	var chunk Chunk

	stream, err := o.readUntil(' ')
	if err != nil {
		if errors.Is(err, io.EOF) && stream == "" {
			return chunk, io.EOF
		}
		return chunk, fmt.Errorf("reading stream: %w", unexpected(err))
	}
	if !ValidStream(stream) {
		return chunk, fmt.Errorf("invalid stream name %q", stream)
	}
	chunk.Stream = stream

	timestampStr, err := o.readUntil(' ')
	if err != nil {
		return chunk, fmt.Errorf("reading timestamp: %w", unexpected(err))
	}
	timestamp, err := time.Parse(TimestampLayout, timestampStr)
	if err != nil {
		return chunk, fmt.Errorf("parsing timestamp: %w", err)
	}
	chunk.Timestamp = timestamp

	lengthStr, err := o.readUntil(':')
	if err != nil {
		return chunk, fmt.Errorf("reading length: %w", unexpected(err))
	}
	length, err := strconv.Atoi(lengthStr)
	if err != nil || length < 0 {
		return chunk, fmt.Errorf("parsing length %q: invalid", lengthStr)
	}

	if b, err := o.r.ReadByte(); err != nil {
		return chunk, fmt.Errorf("reading space after colon: %w", unexpected(err))
	} else if b != ' ' {
		return chunk, fmt.Errorf("expected space after colon, got %q", b)
	}

	chunk.Content = make([]byte, length)
	if _, err := io.ReadFull(o.r, chunk.Content); err != nil {
		return chunk, fmt.Errorf("reading content (%d bytes): %w", length, unexpected(err))
	}

	if b, err := o.r.ReadByte(); err != nil {
		return chunk, fmt.Errorf("reading final newline: %w", unexpected(err))
	} else if b != '\n' {
		return chunk, fmt.Errorf("expected newline separator, got %q", b)
	}

	return chunk, nil
}

// readUntil reads up to delim and returns what came before it.
func (o *Reader) readUntil(delim byte) (string, error) {
	s, err := o.r.ReadString(delim)
	if err != nil {
		return s, err
	}
	return strings.TrimSuffix(s, string(delim)), nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Channel emits every record until the end of input. A malformed record is
// emitted with Error set and ends the stream.
func (o *Reader) Channel() <-chan Chunk {
	channel := make(chan Chunk)
	go func() {
		defer close(channel)
		for {
			chunk, err := o.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				chunk.Error = err
				channel <- chunk
				return
			}
			channel <- chunk
		}
	}()
	return channel
}

// StreamReader returns an io.Reader over the content of one stream. Other
// streams and the timestamps are skipped.
func (o *Reader) StreamReader(stream string) io.Reader {
	return &streamReader{stream: stream, channel: o.Channel()}
}

// All returns the concatenated content of every stream, keyed by stream.
func (o *Reader) All() (map[string][]byte, error) {
	result := make(map[string][]byte)
	for chunk := range o.Channel() {
		if chunk.Error != nil {
			return result, chunk.Error
		}
		result[chunk.Stream] = append(result[chunk.Stream], chunk.Content...)
	}
	return result, nil
}

type streamReader struct {
	stream  string
	channel <-chan Chunk
	pending []byte
}

func (sr *streamReader) Read(p []byte) (int, error) {
	if len(sr.pending) > 0 {
		n := copy(p, sr.pending)
		sr.pending = sr.pending[n:]
		return n, nil
	}

	for chunk := range sr.channel {
		if chunk.Error != nil {
			return 0, chunk.Error
		}
		if chunk.Stream != sr.stream || len(chunk.Content) == 0 {
			continue
		}
		n := copy(p, chunk.Content)
		sr.pending = chunk.Content[n:]
		return n, nil
	}
	return 0, io.EOF
}
