package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"streamtap/internal/config"
	"streamtap/pkg/framesink"
	"streamtap/pkg/outputlog"
)

// Pipeline is the sink chain assembled from a Config. Sink is what tees
// write into: the Framer when framing is enabled, otherwise the base sink.
type Pipeline struct {
	Sink   framesink.Sink
	Framer *framesink.Framer    // nil without framing
	Queue  *framesink.QueueSink // non-nil for the queue sink

	closers []func() error
}

// RendererFor returns the renderer named by a config render mode.
func RendererFor(name string) framesink.Renderer {
	switch name {
	case config.RenderText:
		return framesink.TextRenderer
	case config.RenderHex:
		return framesink.HexRenderer
	default:
		return framesink.AutoRenderer
	}
}

// NewPipeline builds the sink chain for cfg. Text logs go to cfg.Output
// when set and to logOut otherwise.
func NewPipeline(cfg config.Config, logOut io.Writer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{}
	var base framesink.Sink

	switch cfg.Sink {
	case config.SinkText:
		w := logOut
		if cfg.Output != "" {
			file, err := openAppend(cfg.Output)
			if err != nil {
				return nil, err
			}
			p.closers = append(p.closers, file.Close)
			w = file
		}
		base = framesink.NewTextLogSink(w, framesink.WithRenderer(RendererFor(cfg.Render)))

	case config.SinkDisk:
		disk, err := framesink.OpenDiskSink(cfg.Output)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, disk.Close)
		base = disk

	case config.SinkRecord:
		file, err := openAppend(cfg.Output)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, file.Close)
		base = outputlog.NewSink(file)

	case config.SinkQueue:
		queue, err := framesink.NewQueueSink(cfg.QueueCapacity, framesink.WithOverflow(cfg.Overflow))
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, queue.Close)
		p.Queue = queue
		base = queue
	}

	p.Sink = base
	if cfg.Framing {
		framer, err := framesink.NewFramer(base, cfg.Boundary)
		if err != nil {
			return nil, err
		}
		p.Framer = framer
		p.Sink = framer
	}
	return p, nil
}

func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return file, nil
}

// Close flushes the chain and releases files and the queue, in reverse
// order of creation.
func (p *Pipeline) Close() error {
	errs := []error{p.Sink.Flush()}
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// Drain writes every queued frame to log until the queue is closed and
// empty or ctx is done. It only applies to queue pipelines.
func (p *Pipeline) Drain(ctx context.Context, log *framesink.TextLogSink) error {
	if p.Queue == nil {
		return errors.New("monitor: pipeline has no queue")
	}
	for {
		frame, err := p.Queue.Get(ctx)
		if errors.Is(err, framesink.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := log.WriteFrame(frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
}
