package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"streamtap/internal/config"
	"streamtap/internal/inspect"
	"streamtap/internal/logging"
	"streamtap/internal/monitor"
	"streamtap/pkg/framesink"
)

// loadConfig reads --config when given and applies every flag the user set
// on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if err := applyFlags(&cfg, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	logging.Configure(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("sink") {
		cfg.Sink = sinkKind
	}
	if flags.Changed("output") {
		cfg.Output = output
	}
	if flags.Changed("boundary") {
		b, err := config.ParseBoundary(boundary)
		if err != nil {
			return fmt.Errorf("--boundary: %w", err)
		}
		cfg.Boundary = b
	}
	if flags.Changed("no-framing") {
		cfg.Framing = !noFraming
	}
	if flags.Changed("queue-capacity") {
		cfg.QueueCapacity = queueCapacity
	}
	if flags.Changed("overflow") {
		policy, err := config.ParseOverflow(overflow)
		if err != nil {
			return fmt.Errorf("--overflow: %w", err)
		}
		cfg.Overflow = policy
	}
	if flags.Changed("render") {
		cfg.Render = render
	}
	if flags.Changed("inspect-addr") {
		cfg.InspectAddr = inspectAddr
	}
	return nil
}

// session owns the sink pipeline of one command and the goroutines that
// consume a queue sink.
type session struct {
	pipeline *monitor.Pipeline
	cancel   context.CancelFunc
	// consumers finish once the queue is closed and drained
	consumers []<-chan error
	server    <-chan error
}

// startSession builds the pipeline. A queue sink is drained either by an
// inspector hub, when an address is configured, or into a text log on logOut.
func startSession(ctx context.Context, cfg config.Config, logOut io.Writer) (*session, error) {
	p, err := monitor.NewPipeline(cfg, logOut)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &session{pipeline: p, cancel: cancel}
	if p.Queue == nil {
		return s, nil
	}

	renderer := monitor.RendererFor(cfg.Render)
	if cfg.InspectAddr != "" {
		hub := inspect.NewHub(p.Queue, inspect.WithRenderer(renderer))
		s.consumers = append(s.consumers, goErr(func() error { return hub.Run(ctx) }))
		s.server = goErr(func() error { return hub.ListenAndServe(ctx, cfg.InspectAddr) })
		return s, nil
	}

	log := framesink.NewTextLogSink(logOut, framesink.WithRenderer(renderer))
	s.consumers = append(s.consumers, goErr(func() error { return p.Drain(ctx, log) }))
	return s, nil
}

func goErr(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

// close flushes and closes the pipeline, waits for queue consumers to finish
// and stops the inspector.
func (s *session) close() error {
	errs := []error{s.pipeline.Close()}
	for _, ch := range s.consumers {
		errs = append(errs, <-ch)
	}
	s.cancel()
	if s.server != nil {
		if err := <-s.server; err != nil {
			slog.Warn("Inspector stopped with error", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
