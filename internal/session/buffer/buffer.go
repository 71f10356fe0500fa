// Package buffer implements the fixed-capacity output buffer used for
// reconnection replay. Oldest entries are evicted FIFO once the buffer
// is full.
package buffer

import (
	"time"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 5000

// BufferedMessage is one replayable output entry.
type BufferedMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// RingBuffer is a fixed-capacity FIFO of buffered messages. It is not
// internally synchronized; callers own it through the session's lock.
type RingBuffer struct {
	entries []BufferedMessage
	head    int // index of the oldest entry
	size    int
}

// New creates a ring buffer with the given capacity. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer{
		entries: make([]BufferedMessage, capacity),
	}
}

// Push appends an entry, evicting the oldest when at capacity. O(1).
func (b *RingBuffer) Push(msg BufferedMessage) {
	if b.size < len(b.entries) {
		b.entries[(b.head+b.size)%len(b.entries)] = msg
		b.size++
		return
	}
	b.entries[b.head] = msg
	b.head = (b.head + 1) % len(b.entries)
}

// Len returns the number of buffered entries.
func (b *RingBuffer) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *RingBuffer) Cap() int {
	return len(b.entries)
}

// All returns a snapshot copy of the buffered entries in insertion order.
func (b *RingBuffer) All() []BufferedMessage {
	out := make([]BufferedMessage, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.head+i)%len(b.entries)]
	}
	return out
}

// Since returns a copy of the entries with Timestamp strictly after t,
// in insertion order. Returns nil if nothing is newer.
func (b *RingBuffer) Since(t time.Time) []BufferedMessage {
	var out []BufferedMessage
	for i := 0; i < b.size; i++ {
		entry := b.entries[(b.head+i)%len(b.entries)]
		if entry.Timestamp.After(t) {
			out = append(out, entry)
		}
	}
	return out
}
