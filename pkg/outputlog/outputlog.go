package outputlog

import (
	"fmt"
	"strings"
	"time"

	"streamtap/pkg/framesink"
)

// TimestampLayout is the timestamp format of records.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// commentPrefix marks the stream of a comment record.
const commentPrefix = "comment."

// Chunk is one parsed or to-be-written record.
type Chunk struct {
	Stream    string
	Timestamp time.Time // UTC timestamp
	Content   []byte
	Error     error
}

// FormatChunk formats a Chunk as one record.
// Format: "stream timestamp length: content\n"
func FormatChunk(chunk Chunk) []byte {
	timestamp := chunk.Timestamp.UTC().Format(TimestampLayout)
	record := fmt.Appendf(nil, "%s %s %d: ", chunk.Stream, timestamp, len(chunk.Content))
	record = append(record, chunk.Content...)
	return append(record, '\n')
}

// IsComment reports whether the chunk holds a comment.
func (c Chunk) IsComment() bool {
	return strings.HasPrefix(c.Stream, commentPrefix)
}

// Frame converts the chunk back into a frame, resolving its stream name
// through names. It fails for streams that map to no tag.
func (c Chunk) Frame(names StreamNames) (framesink.Frame, error) {
	stream := strings.TrimPrefix(c.Stream, commentPrefix)
	tag, ok := names.Tag(stream)
	if !ok {
		return framesink.Frame{}, fmt.Errorf("outputlog: unknown stream %q", c.Stream)
	}
	frame := framesink.Frame{Tag: tag, Time: c.Timestamp}
	if c.IsComment() {
		frame.Comment = string(c.Content)
	} else {
		frame.Payload = append([]byte{}, c.Content...)
	}
	return frame, nil
}

// StreamNames maps tags to stream names.
type StreamNames map[framesink.Tag]string

// DefaultStreamNames names the two default tee tags.
var DefaultStreamNames = StreamNames{
	framesink.TagInput:  "input",
	framesink.TagOutput: "output",
}

// Name returns the stream name of tag. Tags without a name get
// "tag.<hex>", which keeps stream names within the allowed characters.
func (n StreamNames) Name(tag framesink.Tag) string {
	if name, ok := n[tag]; ok {
		return name
	}
	return fmt.Sprintf("tag.%02x", byte(tag))
}

// Tag resolves a stream name produced by Name back to its tag.
func (n StreamNames) Tag(stream string) (framesink.Tag, bool) {
	for tag, name := range n {
		if name == stream {
			return tag, true
		}
	}
	var b byte
	if _, err := fmt.Sscanf(stream, "tag.%02x", &b); err == nil && len(stream) == len("tag.00") {
		return framesink.Tag(b), true
	}
	return 0, false
}

// ValidStream reports whether stream is a legal stream name.
func ValidStream(stream string) bool {
	if len(stream) == 0 || len(stream) > 64 {
		return false
	}
	for i := 0; i < len(stream); i++ {
		c := stream[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '.', c == '/', c == '-':
		default:
			return false
		}
	}
	return true
}
