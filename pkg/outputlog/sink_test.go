package outputlog

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamtap/pkg/framesink"
	"streamtap/pkg/tee"
)

func fixedClock() time.Time {
	return time.Date(2025, 1, 7, 12, 34, 56, 789000000, time.UTC)
}

func TestSink_WritesRecords(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, WithClock(fixedClock))

	require.NoError(t, sink.AddRun(framesink.TagOutput, []byte("HELLO\r\n")))
	require.NoError(t, sink.AddByte(framesink.TagInput, 'q'))
	require.NoError(t, sink.AddComment(framesink.TagOutput, "exit status 0"))
	require.NoError(t, sink.AddRun(framesink.TagOutput, nil))
	require.NoError(t, sink.Flush())

	require.Equal(t,
		"output 2025-01-07T12:34:56.789000000Z 7: HELLO\r\n\n"+
			"input 2025-01-07T12:34:56.789000000Z 1: q\n"+
			"comment.output 2025-01-07T12:34:56.789000000Z 13: exit status 0\n",
		buf.String())
}

func TestSink_CustomStreamNames(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, WithClock(fixedClock), WithStreamNames(StreamNames{
		'<': "stdin",
		'>': "bad name",
	}))

	require.NoError(t, sink.AddRun('<', []byte("a")))
	require.NoError(t, sink.AddRun('>', []byte("b")))

	result, err := NewReader(&buf).All()
	require.NoError(t, err)
	require.Equal(t, "a", string(result["stdin"]))
	require.Equal(t, "b", string(result["tag.3e"]))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestSink_WriteError(t *testing.T) {
	sink := NewSink(failingWriter{})
	err := sink.AddRun(framesink.TagOutput, []byte("x"))
	require.ErrorContains(t, err, "write output record")
	require.ErrorContains(t, err, "disk full")
}

func TestSink_RoundTripThroughTees(t *testing.T) {
	var record bytes.Buffer
	sink := NewSink(&record)

	var stdout, stdin bytes.Buffer
	out := tee.NewWriter(&stdout, sink)
	in := tee.NewWriter(&stdin, sink, tee.WithTag(framesink.TagInput))

	binary := allBytes()
	_, err := out.Write(binary)
	require.NoError(t, err)
	_, err = in.Write([]byte("user input\n"))
	require.NoError(t, err)
	_, err = out.Write([]byte("more"))
	require.NoError(t, err)

	result, err := NewReader(&record).All()
	require.NoError(t, err)
	require.Equal(t, append(binary, []byte("more")...), result["output"])
	require.Equal(t, "user input\n", string(result["input"]))
}

func TestSink_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf)

	var wg sync.WaitGroup
	for _, tag := range []framesink.Tag{framesink.TagInput, framesink.TagOutput} {
		tag := tag
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				require.NoError(t, sink.AddRun(tag, fmt.Appendf(nil, "%c%d\n", tag, i)))
			}
		}()
	}
	wg.Wait()

	counts := map[string]int{}
	for chunk := range NewReader(&buf).Channel() {
		require.NoError(t, chunk.Error)
		counts[chunk.Stream]++
	}
	require.Equal(t, map[string]int{"input": 50, "output": 50}, counts)
}

func TestSink_OrderPreservation(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf)
	w := tee.NewWriter(&bytes.Buffer{}, sink)

	for i := 1; i <= 100; i++ {
		_, err := fmt.Fprintf(w, "line %d\n", i)
		require.NoError(t, err)
	}

	i := 1
	for chunk := range NewReader(&buf).Channel() {
		require.NoError(t, chunk.Error)
		require.Equal(t, fmt.Sprintf("line %d\n", i), string(chunk.Content))
		i++
	}
	require.Equal(t, 101, i)
}
