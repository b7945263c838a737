package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"streamtap/internal/config"
	"streamtap/pkg/framesink"
	"streamtap/pkg/outputlog"
)

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVar(&sinkKind, "sink", "text", "")
	flags.StringVar(&boundary, "boundary", `\r\n`, "")
	flags.BoolVar(&noFraming, "no-framing", false, "")
	flags.StringVar(&overflow, "overflow", "block", "")
	flags.IntVar(&queueCapacity, "queue-capacity", 128, "")
	require.NoError(t, flags.Parse([]string{"--sink", "queue", "--boundary", `\x00`, "--overflow", "reject"}))

	cfg := config.Default()
	cfg.QueueCapacity = 7 // as if loaded from a file
	require.NoError(t, applyFlags(&cfg, flags))

	require.Equal(t, config.SinkQueue, cfg.Sink)
	require.Equal(t, []byte{0}, cfg.Boundary)
	require.True(t, cfg.Framing)
	require.Equal(t, framesink.OverflowReject, cfg.Overflow)
	require.Equal(t, 7, cfg.QueueCapacity)
}

func TestApplyFlags_RejectsBadValues(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVar(&boundary, "boundary", `\r\n`, "")
	require.NoError(t, flags.Parse([]string{"--boundary", ""}))

	cfg := config.Default()
	require.ErrorIs(t, applyFlags(&cfg, flags), framesink.ErrEmptyBoundary)
}

func TestReplay(t *testing.T) {
	ts := time.Date(2025, 1, 7, 12, 34, 56, 789000000, time.UTC)
	clock := func() time.Time { return ts }

	var record bytes.Buffer
	sink := outputlog.NewSink(&record, outputlog.WithClock(clock))
	require.NoError(t, sink.AddRun(framesink.TagInput, []byte("ls\r\n")))
	require.NoError(t, sink.AddRun(framesink.TagOutput, []byte{0x00, 0x01}))
	require.NoError(t, sink.AddComment(framesink.TagOutput, "exit status 0"))

	var out bytes.Buffer
	require.NoError(t, replay(&record, &out, framesink.AutoRenderer))

	stamp := ts.Format(framesink.TimestampLayout)
	require.Equal(t,
		"[I] "+stamp+` ls\r\n`+"\n"+
			"[O] "+stamp+" 00 01\n"+
			"[O] "+stamp+" exit status 0\n",
		out.String())
}

func TestReplay_Malformed(t *testing.T) {
	err := replay(strings.NewReader("garbage"), &bytes.Buffer{}, framesink.AutoRenderer)
	require.ErrorContains(t, err, "read recording")
}

func TestSession_QueueDrainsToLog(t *testing.T) {
	cfg := config.Default()
	cfg.Sink = config.SinkQueue
	cfg.Framing = false

	var logOut bytes.Buffer
	s, err := startSession(context.Background(), cfg, &logOut)
	require.NoError(t, err)

	require.NoError(t, s.pipeline.Sink.AddRun(framesink.TagOutput, []byte("hello")))
	require.NoError(t, s.close())

	require.Contains(t, logOut.String(), "[O] ")
	require.True(t, strings.HasSuffix(logOut.String(), " hello\n"))
}

func TestSession_RecordFile(t *testing.T) {
	cfg := config.Default()
	cfg.Sink = config.SinkRecord
	cfg.Output = filepath.Join(t.TempDir(), "rec.log")

	s, err := startSession(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, s.pipeline.Sink.AddRun(framesink.TagOutput, []byte("a\r\nb")))
	require.NoError(t, s.close())

	file, err := os.Open(cfg.Output)
	require.NoError(t, err)
	defer file.Close()

	var chunks []string
	for chunk := range outputlog.NewReader(file).Channel() {
		require.NoError(t, chunk.Error)
		chunks = append(chunks, string(chunk.Content))
	}
	require.Equal(t, []string{"a\r\n", "b"}, chunks)
}
