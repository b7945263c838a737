package framesink

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueCapacity is the frame capacity used when none is given.
const DefaultQueueCapacity = 128

// OverflowPolicy decides what a producer experiences when the queue is full.
type OverflowPolicy int

const (
	// OverflowBlock makes the producer wait for a free slot.
	OverflowBlock OverflowPolicy = iota
	// OverflowReject fails the producing call with ErrQueueFull.
	OverflowReject
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowBlock:
		return "block"
	case OverflowReject:
		return "reject"
	default:
		return "unknown"
	}
}

// QueueSink turns every received run into a Frame and stores it in a
// bounded FIFO for another goroutine to drain with Get or Poll.
type QueueSink struct {
	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
	policy    OverflowPolicy
	now       func() time.Time
}

var _ Sink = (*QueueSink)(nil)

// QueueOption configures a QueueSink.
type QueueOption func(*QueueSink)

// WithOverflow sets the overflow policy. The default is OverflowBlock.
func WithOverflow(p OverflowPolicy) QueueOption {
	return func(q *QueueSink) { q.policy = p }
}

// WithQueueClock sets the time source used to stamp frames.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *QueueSink) { q.now = now }
}

// NewQueueSink creates a queue holding at most capacity frames.
func NewQueueSink(capacity int, opts ...QueueOption) (*QueueSink, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	q := &QueueSink{
		frames: make(chan Frame, capacity),
		done:   make(chan struct{}),
		policy: OverflowBlock,
		now:    nowFunc,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Put enqueues f according to the overflow policy.
func (q *QueueSink) Put(f Frame) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	if q.policy == OverflowReject {
		select {
		case q.frames <- f:
			return nil
		default:
			return ErrQueueFull
		}
	}

	select {
	case q.frames <- f:
		return nil
	case <-q.done:
		return ErrQueueClosed
	}
}

func (q *QueueSink) AddRun(tag Tag, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return q.Put(Frame{
		Tag:     tag,
		Time:    q.now(),
		Payload: append([]byte(nil), p...),
	})
}

func (q *QueueSink) AddByte(tag Tag, b byte) error {
	return q.Put(Frame{Tag: tag, Time: q.now(), Payload: []byte{b}})
}

func (q *QueueSink) AddComment(tag Tag, text string) error {
	return q.Put(Frame{Tag: tag, Time: q.now(), Comment: text})
}

// Flush is a no-op: frames are visible to consumers as soon as they are
// queued.
func (q *QueueSink) Flush() error {
	return nil
}

// Get waits for the next frame. It fails with ctx.Err() when ctx is done,
// and with ErrQueueClosed once the queue is closed and drained.
func (q *QueueSink) Get(ctx context.Context) (Frame, error) {
	select {
	case f := <-q.frames:
		return f, nil
	default:
	}

	select {
	case f := <-q.frames:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-q.done:
		// frames queued before Close are still delivered
		select {
		case f := <-q.frames:
			return f, nil
		default:
			return Frame{}, ErrQueueClosed
		}
	}
}

// Poll waits up to timeout for the next frame. The boolean is false when
// the timeout elapsed or the queue is closed and drained.
func (q *QueueSink) Poll(timeout time.Duration) (Frame, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	f, err := q.Get(ctx)
	return f, err == nil
}

// Len returns the number of queued frames.
func (q *QueueSink) Len() int {
	return len(q.frames)
}

// Cap returns the queue capacity.
func (q *QueueSink) Cap() int {
	return cap(q.frames)
}

// Policy returns the overflow policy.
func (q *QueueSink) Policy() OverflowPolicy {
	return q.policy
}

// Close stops accepting frames and releases blocked producers with
// ErrQueueClosed. Frames already queued can still be drained.
func (q *QueueSink) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
