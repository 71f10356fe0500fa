package buffer

import (
	"fmt"
	"testing"
	"time"
)

func entryAt(i int, ts time.Time) BufferedMessage {
	return BufferedMessage{
		Type:      "output",
		Payload:   fmt.Sprintf("chunk-%d", i),
		Timestamp: ts,
	}
}

func TestRingBuffer_PushAndAll(t *testing.T) {
	b := New(10)
	base := time.Now()

	for i := 0; i < 5; i++ {
		b.Push(entryAt(i, base.Add(time.Duration(i)*time.Millisecond)))
	}

	if b.Len() != 5 {
		t.Fatalf("Expected length 5, got %d", b.Len())
	}
	if b.Cap() != 10 {
		t.Fatalf("Expected capacity 10, got %d", b.Cap())
	}

	all := b.All()
	for i, entry := range all {
		want := fmt.Sprintf("chunk-%d", i)
		if entry.Payload != want {
			t.Errorf("Entry %d: expected payload %q, got %q", i, want, entry.Payload)
		}
	}
}

func TestRingBuffer_FIFOEviction(t *testing.T) {
	b := New(3)
	base := time.Now()

	for i := 0; i < 7; i++ {
		b.Push(entryAt(i, base.Add(time.Duration(i)*time.Millisecond)))
		if b.Len() > b.Cap() {
			t.Fatalf("Length %d exceeds capacity %d after push %d", b.Len(), b.Cap(), i)
		}
	}

	if b.Len() != 3 {
		t.Fatalf("Expected length 3, got %d", b.Len())
	}

	all := b.All()
	for i, entry := range all {
		// Only the last three pushes survive, oldest first.
		want := fmt.Sprintf("chunk-%d", 4+i)
		if entry.Payload != want {
			t.Errorf("Entry %d: expected payload %q, got %q", i, want, entry.Payload)
		}
	}
}

func TestRingBuffer_AllReturnsSnapshot(t *testing.T) {
	b := New(4)
	b.Push(entryAt(0, time.Now()))

	all := b.All()
	all[0].Payload = "mutated"

	if b.All()[0].Payload != "chunk-0" {
		t.Error("Mutating the snapshot changed the buffer contents")
	}
}

func TestRingBuffer_Since(t *testing.T) {
	b := New(10)
	base := time.Now()

	for i := 0; i < 6; i++ {
		b.Push(entryAt(i, base.Add(time.Duration(i)*time.Second)))
	}

	got := b.Since(base.Add(2 * time.Second))
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries after cutoff, got %d", len(got))
	}
	for i, entry := range got {
		want := fmt.Sprintf("chunk-%d", 3+i)
		if entry.Payload != want {
			t.Errorf("Entry %d: expected payload %q, got %q", i, want, entry.Payload)
		}
	}
}

func TestRingBuffer_SinceAfterNewest(t *testing.T) {
	b := New(10)
	base := time.Now()
	for i := 0; i < 3; i++ {
		b.Push(entryAt(i, base.Add(time.Duration(i)*time.Second)))
	}

	if got := b.Since(base.Add(2 * time.Second)); len(got) != 0 {
		t.Errorf("Expected no entries at the newest timestamp, got %d", len(got))
	}
	if got := b.Since(base.Add(time.Hour)); len(got) != 0 {
		t.Errorf("Expected no entries after the newest timestamp, got %d", len(got))
	}
}

func TestRingBuffer_SinceAfterEviction(t *testing.T) {
	b := New(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.Push(entryAt(i, base.Add(time.Duration(i)*time.Second)))
	}

	got := b.Since(base)
	if len(got) != 3 {
		t.Fatalf("Expected 3 surviving entries, got %d", len(got))
	}
	if got[0].Payload != "chunk-2" {
		t.Errorf("Expected oldest surviving entry chunk-2, got %v", got[0].Payload)
	}
}

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	if b := New(0); b.Cap() != DefaultCapacity {
		t.Errorf("Expected default capacity %d, got %d", DefaultCapacity, b.Cap())
	}
	if b := New(-1); b.Cap() != DefaultCapacity {
		t.Errorf("Expected default capacity %d, got %d", DefaultCapacity, b.Cap())
	}
}
