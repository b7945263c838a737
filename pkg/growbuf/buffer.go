// Package growbuf provides an append-only byte store that grows in fixed
// increments and supports sub-sequence search and range deletion.
//
// A Buffer is the scratchpad used to accumulate mirrored bytes until a frame
// boundary shows up. Frames are small, so every operation takes one mutex
// for the whole buffer.
package growbuf

import (
	"bytes"
	"sync"
)

const (
	// DefaultInitialSize is the capacity allocated by NewDefault and Reset.
	DefaultInitialSize = 1024
	// DefaultIncrement is the step by which capacity grows.
	DefaultIncrement = 1024
)

// Buffer is a resizable byte store. Capacity only grows, and it grows
// linearly: each time an append does not fit, capacity is raised by the
// configured increment until it does.
type Buffer struct {
	mu        sync.Mutex
	data      []byte // len(data) is the capacity
	length    int
	initial   int
	increment int
}

// New creates a buffer with the given initial capacity and growth increment.
// Non-positive values fall back to the defaults.
func New(initial, increment int) *Buffer {
	if initial <= 0 {
		initial = DefaultInitialSize
	}
	if increment <= 0 {
		increment = DefaultIncrement
	}
	return &Buffer{
		data:      make([]byte, initial),
		initial:   initial,
		increment: increment,
	}
}

// NewDefault creates a buffer with DefaultInitialSize and DefaultIncrement.
func NewDefault() *Buffer {
	return New(DefaultInitialSize, DefaultIncrement)
}

// grow raises capacity in increments until it can hold need bytes.
// Caller holds mu.
func (b *Buffer) grow(need int) {
	capacity := len(b.data)
	if need <= capacity {
		return
	}
	for capacity < need {
		capacity += b.increment
	}
	next := make([]byte, capacity)
	copy(next, b.data[:b.length])
	b.data = next
}

// Append copies p to the end of the valid data.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.grow(b.length + len(p))
	copy(b.data[b.length:], p)
	b.length += len(p)
}

// Write implements io.Writer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// WriteByte implements io.ByteWriter. It never fails.
func (b *Buffer) WriteByte(c byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.grow(b.length + 1)
	b.data[b.length] = c
	b.length++
	return nil
}

// Insert places p at pos, shifting the bytes at and after pos to the right.
// A pos beyond the valid data appends.
func (b *Buffer) Insert(pos int, p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if pos < 0 {
		pos = 0
	}
	if pos > b.length {
		pos = b.length
	}
	b.grow(b.length + len(p))
	copy(b.data[pos+len(p):], b.data[pos:b.length])
	copy(b.data[pos:], p)
	b.length += len(p)
}

// IndexOf returns the first position at or after from where pattern occurs
// entirely within the valid data, or -1. A pattern longer than the data
// remaining after from is never found. An empty pattern matches at from.
func (b *Buffer) IndexOf(pattern []byte, from int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if from < 0 {
		from = 0
	}
	if from > b.length {
		return -1
	}
	if len(pattern) > b.length-from {
		return -1
	}
	i := bytes.Index(b.data[from:b.length], pattern)
	if i < 0 {
		return -1
	}
	return from + i
}

// DeleteHead drops the first n bytes and shifts the rest to offset 0.
func (b *Buffer) DeleteHead(n int) {
	b.Delete(0, n)
}

// DeleteTail drops the last n bytes.
func (b *Buffer) DeleteTail(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.length {
		n = b.length
	}
	clear(b.data[b.length-n : b.length])
	b.length -= n
}

// Delete drops n bytes starting at pos. Ranges extending past the data are
// truncated; a pos outside the data is a no-op.
func (b *Buffer) Delete(pos, n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if pos < 0 || pos >= b.length {
		return
	}
	if n > b.length-pos {
		n = b.length - pos
	}
	copy(b.data[pos:], b.data[pos+n:b.length])
	// zero the vacated tail so stale bytes never reappear
	clear(b.data[b.length-n : b.length])
	b.length -= n
}

// Clear empties the buffer but keeps its storage.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.data[:b.length])
	b.length = 0
}

// Reset empties the buffer and reallocates storage at the initial size.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = make([]byte, b.initial)
	b.length = 0
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Cap returns the current capacity.
func (b *Buffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Bytes returns a copy of the valid data.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data[:b.length]...)
}

// Slice returns a copy of the bytes in [from, to), clamped to the valid data.
func (b *Buffer) Slice(from, to int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if from < 0 {
		from = 0
	}
	if to > b.length {
		to = b.length
	}
	if from >= to {
		return nil
	}
	return append([]byte(nil), b.data[from:to]...)
}

// ByteAt returns the byte at i and whether i is within the valid data.
func (b *Buffer) ByteAt(i int) (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= b.length {
		return 0, false
	}
	return b.data[i], true
}

// Take removes and returns up to n bytes from the head in one locked step.
func (b *Buffer) Take(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.length {
		n = b.length
	}
	if n <= 0 {
		return nil
	}
	out := append([]byte(nil), b.data[:n]...)
	copy(b.data, b.data[n:b.length])
	clear(b.data[b.length-n : b.length])
	b.length -= n
	return out
}
