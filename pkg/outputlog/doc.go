// Package outputlog records mirrored frames in a binary-safe log that keeps
// every stream apart, and reads such logs back.
//
// # Record Format
//
// Each frame becomes one record:
//
//	stream timestamp length: content\n
//
// # Fields
//
//   - stream: Matches regex [a-zA-Z0-9_./-]{1,64}. Derived from the frame tag
//     through StreamNames, for example input or output. Comments are stored
//     under comment.<stream>.
//   - timestamp: UTC timestamp with nanoseconds: 2006-01-02T15:04:05.000000000Z
//   - length: Integer byte length of the content.
//   - `: ` Literal separator between length and content.
//   - content: Exactly length bytes. Content can contain newlines.
//   - \n: Always written after content, so a reader can detect a record that
//     was cut off in the middle.
//
// # Examples
//
//	output 2025-01-07T12:34:56.789000000Z 7: HELLO\r\n\n
//	input 2025-01-07T12:34:57.000000000Z 4: ls\r\n\n
//	comment.output 2025-01-07T12:34:58.000000000Z 13: exit status 0\n
//
// # Binary Data Support
//
// The format supports binary data including:
//
//   - Null bytes (\0)
//   - Non-printable characters
//   - Any byte value from 0-255
package outputlog
