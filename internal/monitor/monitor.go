// Package monitor runs a command under a pseudo-terminal and mirrors both
// directions of its traffic into a sink.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"streamtap/pkg/bytefifo"
	"streamtap/pkg/framesink"
	"streamtap/pkg/tee"
)

// DefaultDrainTimeout bounds how long Run waits for trailing output once
// the command has exited.
const DefaultDrainTimeout = time.Second

// eofChar is the terminal EOF character sent when a non-terminal stdin ends.
const eofChar = 0x04

// Options describes one monitored command.
type Options struct {
	// Command is the argv to run. A single element is run with sh -c.
	Command []string
	Dir     string
	Env     []string

	Stdin  io.Reader // defaults to os.Stdin
	Stdout io.Writer // defaults to os.Stdout
	Sink   framesink.Sink

	InputTag  framesink.Tag // defaults to framesink.TagInput
	OutputTag framesink.Tag // defaults to framesink.TagOutput

	DrainTimeout time.Duration
	TeeOptions   []tee.Option
}

func (o *Options) setDefaults() {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.InputTag == 0 {
		o.InputTag = framesink.TagInput
	}
	if o.OutputTag == 0 {
		o.OutputTag = framesink.TagOutput
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
}

func command(ctx context.Context, argv []string) *exec.Cmd {
	if len(argv) == 1 {
		return exec.CommandContext(ctx, "sh", "-c", argv[0])
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}

// Run starts the command, copies stdin to it and its output to stdout
// through tees bound to opts.Sink, and waits for it to exit. The exit
// status is written to the sink as a comment and the sink is flushed. The
// returned code is -1 when the command was killed by a signal.
func Run(ctx context.Context, opts Options) (int, error) {
	if len(opts.Command) == 0 {
		return -1, errors.New("monitor: no command given")
	}
	if opts.Sink == nil {
		return -1, errors.New("monitor: no sink given")
	}
	opts.setDefaults()

	cmd := command(ctx, opts.Command)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return -1, fmt.Errorf("failed to start command with pty: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	slog.Info("Command started", "command", opts.Command, "pid", cmd.Process.Pid)

	stdinFile, isTerminal := terminalFile(opts.Stdin)
	if isTerminal {
		restore, err := makeRaw(stdinFile)
		if err != nil {
			slog.Warn("Failed to put terminal into raw mode", "error", err)
		} else {
			defer restore()
		}
		stopResize := propagateSize(stdinFile, ptmx)
		defer stopResize()
	} else {
		_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 24, Cols: 80})
	}

	teeOpts := func(tag framesink.Tag) []tee.Option {
		return append(append([]tee.Option{}, opts.TeeOptions...), tee.WithTag(tag))
	}
	input := tee.NewWriter(ptmx, opts.Sink, teeOpts(opts.InputTag)...)
	output := tee.NewReader(ptmx, opts.Sink, teeOpts(opts.OutputTag)...)

	// stdin is read into a FIFO so the PTY writer can be stopped once the
	// command exits, even while the stdin read is still blocked.
	pending := bytefifo.New()
	go pumpStdin(opts.Stdin, pending, !isTerminal)
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		forwardInput(ctx, pending, input)
	}()

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		if _, err := io.Copy(opts.Stdout, output); err != nil && !errors.Is(err, syscall.EIO) {
			slog.Error("Error reading from PTY", "error", err)
		}
	}()

	waitErr := cmd.Wait()

	select {
	case <-outputDone:
	case <-time.After(opts.DrainTimeout):
		slog.Warn("PTY output still open after exit, closing", "pid", cmd.Process.Pid)
		_ = ptmx.Close()
	}
	// input the command never read is dropped
	_ = pending.Close()
	<-inputDone

	code := -1
	status := "unknown"
	if state := cmd.ProcessState; state != nil {
		code = state.ExitCode()
		status = state.String()
	}
	slog.Info("Command exited", "pid", cmd.Process.Pid, "status", status)

	if err := opts.Sink.AddComment(opts.OutputTag, status); err != nil {
		slog.Warn("Failed to write exit status to sink", "error", err)
	}
	if err := opts.Sink.Flush(); err != nil {
		return code, fmt.Errorf("flush sink: %w", err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return code, ctxErr
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return code, fmt.Errorf("wait for command: %w", waitErr)
	}
	return code, nil
}

// pumpStdin copies r into the FIFO. When r is not a terminal its end is
// passed on as the terminal EOF character.
func pumpStdin(r io.Reader, pending *bytefifo.FIFO, sendEOF bool) {
	if _, err := io.Copy(pending, r); err != nil && !errors.Is(err, bytefifo.ErrClosed) {
		slog.Debug("Stdin copy ended", "error", err)
	}
	if sendEOF {
		_ = pending.Append([]byte{eofChar})
	}
}

// forwardInput writes queued stdin bytes to the PTY until the FIFO is
// closed or ctx is done.
func forwardInput(ctx context.Context, pending *bytefifo.FIFO, w io.Writer) {
	buf := make([]byte, 8192)
	for {
		n, err := pending.ReadContext(ctx, buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				slog.Debug("Error writing input to PTY", "error", werr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func terminalFile(r io.Reader) (*os.File, bool) {
	f, ok := r.(*os.File)
	if !ok {
		return nil, false
	}
	return f, term.IsTerminal(int(f.Fd()))
}

func makeRaw(f *os.File) (func(), error) {
	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, state) }, nil
}

// propagateSize copies the terminal size onto the PTY now and on every
// SIGWINCH until the returned function is called.
func propagateSize(tty, ptmx *os.File) func() {
	resize := make(chan os.Signal, 1)
	signal.Notify(resize, syscall.SIGWINCH)
	done := make(chan struct{})

	go func() {
		for {
			if err := pty.InheritSize(tty, ptmx); err != nil {
				slog.Debug("Error resizing PTY", "error", err)
			}
			select {
			case <-resize:
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(resize)
		close(done)
	}
}
