package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"streamtap/internal/logging"
	"streamtap/internal/monitor"
	"streamtap/pkg/framesink"
	"streamtap/pkg/outputlog"
	"streamtap/pkg/tee"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	sinkKind      string
	output        string
	boundary      string
	noFraming     bool
	queueCapacity int
	overflow      string
	render        string
	inspectAddr   string
)

var rootCmd = &cobra.Command{
	Use:   "streamtap",
	Short: "streamtap - Mirror byte streams into logs, recordings and inspectors",
	Long: `streamtap wraps a byte stream, passes it through unchanged and mirrors a
copy into a sink: a text log, a raw disk file, a binary-safe recording or a
bounded frame queue that can be inspected over WebSocket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCodeError carries the exit code of a monitored command up to main.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.code)
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command under a PTY and mirror its traffic",
	Long: `Run a command under a pseudo-terminal. Keyboard input and command output
pass through unchanged; both directions are mirrored into the sink, input
tagged I and output tagged O. A single argument is run with sh -c.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		s, err := startSession(ctx, cfg, os.Stderr)
		if err != nil {
			return err
		}

		code, runErr := monitor.Run(ctx, monitor.Options{
			Command: args,
			Sink:    s.pipeline.Sink,
		})
		if err := s.close(); err != nil {
			return errors.Join(runErr, err)
		}
		if runErr != nil {
			return runErr
		}
		if code != 0 {
			return exitCodeError{code: code}
		}
		return nil
	},
}

var pipeCmd = &cobra.Command{
	Use:   "pipe",
	Short: "Copy stdin to stdout and mirror it",
	Long:  `Copy stdin to stdout unchanged, mirroring every chunk read into the sink tagged I.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s, err := startSession(cmd.Context(), cfg, os.Stderr)
		if err != nil {
			return err
		}

		in := tee.NewReader(os.Stdin, s.pipeline.Sink)
		_, copyErr := io.Copy(os.Stdout, in)
		if copyErr != nil {
			copyErr = fmt.Errorf("copy stdin: %w", copyErr)
		}
		return errors.Join(copyErr, s.close())
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay record-file",
	Short: "Render a recording as text log lines",
	Long: `Read a recording written by the record sink and print every record as a
text log line with its original timestamp.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		defer file.Close()

		return replay(file, os.Stdout, monitor.RendererFor(cfg.Render))
	},
}

// replay writes every record of r to w as a text log line.
func replay(r io.Reader, w io.Writer, renderer framesink.Renderer) error {
	log := framesink.NewTextLogSink(w, framesink.WithRenderer(renderer))
	for chunk := range outputlog.NewReader(r).Channel() {
		if chunk.Error != nil {
			return fmt.Errorf("read recording: %w", chunk.Error)
		}
		frame, err := chunk.Frame(outputlog.DefaultStreamNames)
		if err != nil {
			return err
		}
		if err := log.WriteFrame(frame); err != nil {
			return fmt.Errorf("write line: %w", err)
		}
	}
	return log.Flush()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error (env "+logging.EnvLogLevel+" overrides)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	for _, cmd := range []*cobra.Command{runCmd, pipeCmd} {
		cmd.Flags().StringVar(&sinkKind, "sink", "text", "Sink: text, disk, record or queue")
		cmd.Flags().StringVarP(&output, "output", "o", "", "Output file of the sink (text defaults to stderr)")
		cmd.Flags().StringVar(&boundary, "boundary", `\r\n`, "Frame boundary as a Go-escaped string")
		cmd.Flags().BoolVar(&noFraming, "no-framing", false, "Mirror chunks as received instead of framing them")
		cmd.Flags().IntVar(&queueCapacity, "queue-capacity", framesink.DefaultQueueCapacity, "Frame capacity of the queue sink")
		cmd.Flags().StringVar(&overflow, "overflow", "block", "Queue overflow policy: block or reject")
		cmd.Flags().StringVar(&inspectAddr, "inspect-addr", "", "Serve queued frames over WebSocket on this address (queue sink only)")
	}
	for _, cmd := range []*cobra.Command{runCmd, pipeCmd, replayCmd} {
		cmd.Flags().StringVar(&render, "render", "auto", "Payload rendering: auto, text or hex")
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pipeCmd)
	rootCmd.AddCommand(replayCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var exitErr exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
