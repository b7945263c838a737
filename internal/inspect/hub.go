// Package inspect broadcasts queued frames to WebSocket clients.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"streamtap/pkg/framesink"
)

// DefaultClientBuffer is the number of messages buffered per client before
// messages to it are dropped.
const DefaultClientBuffer = 64

// Message is the JSON form of one frame sent to clients.
type Message struct {
	Tag     string    `json:"tag"`
	Time    time.Time `json:"time"`
	Payload []byte    `json:"payload,omitempty"` // base64 encoded
	Text    string    `json:"text,omitempty"`
	Comment string    `json:"comment,omitempty"`
}

// NewMessage converts f, rendering its payload with r for the text field.
func NewMessage(f framesink.Frame, r framesink.Renderer) Message {
	msg := Message{Tag: f.Tag.String(), Time: f.Time}
	if f.IsComment() {
		msg.Comment = f.Comment
		return msg
	}
	msg.Payload = f.Payload
	msg.Text = r.Render(f.Payload)
	return msg
}

// client is a single WebSocket subscriber
type client struct {
	id   uint64
	send chan Message
	done chan struct{}
}

// Hub drains a QueueSink and fans every frame out to the registered clients.
type Hub struct {
	queue    *framesink.QueueSink
	renderer framesink.Renderer
	buffer   int

	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  atomic.Uint64
	dropped atomic.Uint64

	// closed is closed when Run returns
	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithRenderer sets the renderer used for the text field of messages.
func WithRenderer(r framesink.Renderer) Option {
	return func(h *Hub) { h.renderer = r }
}

// WithClientBuffer sets the per-client message buffer.
func WithClientBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates a hub fed by queue.
func NewHub(queue *framesink.QueueSink, opts ...Option) *Hub {
	h := &Hub{
		queue:    queue,
		renderer: framesink.AutoRenderer,
		buffer:   DefaultClientBuffer,
		clients:  make(map[uint64]*client),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run broadcasts frames until the queue is closed and drained, or ctx is
// done. Connected clients are told to disconnect when it returns.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeOnce.Do(func() { close(h.closed) })

	for {
		frame, err := h.queue.Get(ctx)
		if errors.Is(err, framesink.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("inspect: drain queue: %w", err)
		}
		h.Broadcast(NewMessage(frame, h.renderer))
	}
}

// Broadcast sends msg to every client. A client whose buffer is full
// misses the message.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- msg:
		case <-c.done:
			// Client disconnected
		default:
			h.dropped.Add(1)
			slog.Warn("Inspect client channel full, dropping frame", "clientID", c.id, "tag", msg.Tag)
		}
	}
}

func (h *Hub) register() *client {
	c := &client{
		id:   h.nextID.Add(1),
		send: make(chan Message, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	slog.Info("Inspect client registered", "clientID", c.id)
	return c
}

// unregister removes c. The handler that created c closes c.done.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		slog.Info("Inspect client unregistered", "clientID", c.id)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many client messages were dropped so far.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
