package framesink

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	Tag     Tag
	Payload string
}

// recordingSink keeps every call it receives.
type recordingSink struct {
	mu       sync.Mutex
	runs     []recordedRun
	comments []string
	flushes  int
	err      error
}

func (r *recordingSink) AddRun(tag Tag, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.runs = append(r.runs, recordedRun{Tag: tag, Payload: string(p)})
	return nil
}

func (r *recordingSink) AddByte(tag Tag, b byte) error {
	return r.AddRun(tag, []byte{b})
}

func (r *recordingSink) AddComment(_ Tag, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments = append(r.comments, text)
	return nil
}

func (r *recordingSink) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func (r *recordingSink) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.Payload)
	}
	return out
}

func newTestFramer(t *testing.T, boundary string) (*Framer, *recordingSink) {
	t.Helper()
	rec := &recordingSink{}
	var pattern []byte
	if boundary != "" {
		pattern = []byte(boundary)
	}
	f, err := NewFramer(rec, pattern)
	require.NoError(t, err)
	return f, rec
}

func TestFramer_BoundarySpanningTwoWrites(t *testing.T) {
	f, rec := newTestFramer(t, "")

	require.NoError(t, f.AddRun(TagOutput, []byte("HELLO\r")))
	require.Empty(t, rec.runs)

	require.NoError(t, f.AddRun(TagOutput, []byte("\nWORLD\r\n")))
	require.Equal(t, []string{"HELLO\r\n", "WORLD\r\n"}, rec.payloads())
	require.Equal(t, TagOutput, rec.runs[0].Tag)
	require.Equal(t, TagOutput, rec.runs[1].Tag)
	require.Equal(t, 0, f.Pending())
}

func TestFramer_FlushEmitsPartial(t *testing.T) {
	f, rec := newTestFramer(t, "")

	require.NoError(t, f.AddRun(TagInput, []byte("PART")))
	require.NoError(t, f.AddRun(TagInput, []byte("IAL")))
	require.Empty(t, rec.runs)

	require.NoError(t, f.Flush())
	require.Equal(t, []recordedRun{{Tag: TagInput, Payload: "PARTIAL"}}, rec.runs)
	require.Equal(t, 0, f.Pending())
	require.Equal(t, 1, rec.flushes)

	// nothing left to emit on a second flush
	require.NoError(t, f.Flush())
	require.Len(t, rec.runs, 1)
}

func TestFramer_SeveralFramesInOneRun(t *testing.T) {
	f, rec := newTestFramer(t, "")

	require.NoError(t, f.AddRun(TagOutput, []byte("a\r\nb\r\n\r\nc")))
	require.Equal(t, []string{"a\r\n", "b\r\n", "\r\n"}, rec.payloads())
	require.Equal(t, 1, f.Pending())
}

func TestFramer_BufferEqualToBoundary(t *testing.T) {
	f, rec := newTestFramer(t, "")

	require.NoError(t, f.AddRun(TagOutput, []byte("\r\n")))
	require.Equal(t, []string{"\r\n"}, rec.payloads())
}

func TestFramer_TagSwitchEmitsPendingUnderOldTag(t *testing.T) {
	f, rec := newTestFramer(t, "")

	require.NoError(t, f.AddRun(TagOutput, []byte("prompt> ")))
	require.NoError(t, f.AddRun(TagInput, []byte("ls\r\n")))

	require.Equal(t, []recordedRun{
		{Tag: TagOutput, Payload: "prompt> "},
		{Tag: TagInput, Payload: "ls\r\n"},
	}, rec.runs)
}

func TestFramer_SelfOverlappingBoundary(t *testing.T) {
	f, rec := newTestFramer(t, "aa")

	require.NoError(t, f.AddRun(TagOutput, []byte("a")))
	require.NoError(t, f.AddRun(TagOutput, []byte("a")))
	require.NoError(t, f.AddRun(TagOutput, []byte("a")))
	require.Equal(t, []string{"aa"}, rec.payloads())
	require.Equal(t, 1, f.Pending())

	require.NoError(t, f.AddRun(TagOutput, []byte("xaab")))
	require.Equal(t, []string{"aa", "axaa"}, rec.payloads())
}

func TestFramer_PartialPrefixThenMismatch(t *testing.T) {
	// a naive counter that resets on mismatch loses the match starting at
	// the second 'a' of "aab"
	f, rec := newTestFramer(t, "ab")

	require.NoError(t, f.AddRun(TagOutput, []byte("a")))
	require.NoError(t, f.AddRun(TagOutput, []byte("a")))
	require.NoError(t, f.AddRun(TagOutput, []byte("b")))
	require.Equal(t, []string{"aab"}, rec.payloads())
}

func TestFramer_ByteAtATime(t *testing.T) {
	f, rec := newTestFramer(t, "")

	for _, b := range []byte("one\r\ntwo\r\n") {
		require.NoError(t, f.AddByte(TagOutput, b))
	}
	require.Equal(t, []string{"one\r\n", "two\r\n"}, rec.payloads())
}

// frameAll feeds input through a fresh framer split at the given offsets and
// returns the emitted frames followed by the flushed remainder.
func frameAll(t *testing.T, boundary, input []byte, cuts []int) []string {
	t.Helper()
	rec := &recordingSink{}
	f, err := NewFramer(rec, boundary)
	require.NoError(t, err)

	prev := 0
	for _, c := range cuts {
		require.NoError(t, f.AddRun(TagOutput, input[prev:c]))
		prev = c
	}
	require.NoError(t, f.AddRun(TagOutput, input[prev:]))
	require.NoError(t, f.Flush())
	return rec.payloads()
}

func TestFramer_SplitInvariant(t *testing.T) {
	boundaries := [][]byte{[]byte("\r\n"), []byte("aa"), []byte("aba"), []byte("|")}
	inputs := [][]byte{
		[]byte("HELLO\r\nWORLD\r\n"),
		[]byte("aaaaabaaaa"),
		[]byte("abababa-ab-aba"),
		[]byte("x|y||z"),
		[]byte("no boundary at all"),
	}

	for _, boundary := range boundaries {
		for _, input := range inputs {
			whole := frameAll(t, boundary, input, nil)
			for cut := 0; cut <= len(input); cut++ {
				split := frameAll(t, boundary, input, []int{cut})
				require.Equal(t, whole, split, "boundary %q input %q cut %d", boundary, input, cut)
			}
		}
	}
}

func TestFramer_RandomChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	boundary := []byte("\r\n")

	var input []byte
	var want []string
	for i := 0; i < 50; i++ {
		line := bytes.Repeat([]byte{byte('a' + i%26)}, rng.Intn(10))
		line = append(line, boundary...)
		input = append(input, line...)
		want = append(want, string(line))
	}

	for trial := 0; trial < 20; trial++ {
		var cuts []int
		for pos := rng.Intn(5); pos < len(input); pos += 1 + rng.Intn(7) {
			cuts = append(cuts, pos)
		}
		require.Equal(t, want, frameAll(t, boundary, input, cuts))
	}
}

func TestFramer_CountsNonOverlappingOccurrences(t *testing.T) {
	rec := &recordingSink{}
	f, err := NewFramer(rec, []byte("aa"))
	require.NoError(t, err)

	// "aaaa" holds two non-overlapping "aa"
	require.NoError(t, f.AddRun(TagOutput, []byte("aaaa")))
	require.Equal(t, []string{"aa", "aa"}, rec.payloads())
	require.Equal(t, 0, f.Pending())
}

func TestFramer_CommentsPassThrough(t *testing.T) {
	f, rec := newTestFramer(t, "")

	require.NoError(t, f.AddRun(TagOutput, []byte("half")))
	require.NoError(t, f.AddComment(TagOutput, "process exited"))

	require.Equal(t, []string{"process exited"}, rec.comments)
	require.Equal(t, 4, f.Pending())
}

func TestFramer_EmptyBoundaryRejected(t *testing.T) {
	_, err := NewFramer(&recordingSink{}, []byte{})
	require.ErrorIs(t, err, ErrEmptyBoundary)
}

func TestFramer_DefaultBoundary(t *testing.T) {
	f, err := NewFramer(&recordingSink{}, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("\r\n"), f.Boundary())
}

func TestFramer_SinkErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	rec := &recordingSink{err: boom}
	f, err := NewFramer(rec, nil)
	require.NoError(t, err)

	require.ErrorIs(t, f.AddRun(TagOutput, []byte("x\r\n")), boom)
}

func TestFramer_OverTextLogSink(t *testing.T) {
	var out bytes.Buffer
	text := NewTextLogSink(&out, WithClock(fixedClock), WithRenderer(TextRenderer))
	f, err := NewFramer(text, nil)
	require.NoError(t, err)

	require.NoError(t, f.AddRun(TagOutput, []byte("HELLO\r")))
	require.NoError(t, f.AddRun(TagOutput, []byte("\nWORLD\r\n")))

	require.Equal(t,
		"[O] 2025-01-07 12:34:56.789 HELLO\\r\\n\n"+
			"[O] 2025-01-07 12:34:56.789 WORLD\\r\\n\n",
		out.String())
}

func TestFramer_OverQueueSink(t *testing.T) {
	q, err := NewQueueSink(4, WithQueueClock(fixedClock))
	require.NoError(t, err)
	f, err := NewFramer(q, nil)
	require.NoError(t, err)

	require.NoError(t, f.AddRun(TagInput, []byte("a\r\nb")))
	require.NoError(t, f.Flush())

	first, ok := q.Poll(0)
	require.True(t, ok)
	require.Equal(t, "a\r\n", string(first.Payload))
	second, ok := q.Poll(0)
	require.True(t, ok)
	require.Equal(t, "b", string(second.Payload))
	require.Equal(t, TagInput, second.Tag)
}
