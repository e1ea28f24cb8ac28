package audio

import (
	"sync"
	"time"
)

// Buffer is the append-only PCM buffer for one recording session.
//
// Exactly one writer (the capture loop) appends frames; any number of readers
// may take consistent snapshots concurrently with writes. Appends are atomic
// units — a snapshot never observes a partially written frame. Bytes are never
// mutated or removed until [Buffer.Reset] starts a new session.
//
// The zero value is ready to use.
type Buffer struct {
	mu   sync.RWMutex
	data []byte
}

// NewBuffer returns an empty Buffer with capacity pre-allocated for roughly
// seconds of audio at the fixed format. seconds <= 0 allocates nothing.
func NewBuffer(seconds int) *Buffer {
	b := &Buffer{}
	if seconds > 0 {
		b.data = make([]byte, 0, seconds*BytesPerSecond)
	}
	return b
}

// Append adds one captured frame to the buffer. Single-writer only: the
// design guarantees one capture loop per session, so Append is not safe for
// concurrent calls with itself (it is safe concurrently with Snapshot).
func (b *Buffer) Append(frame []byte) {
	if len(frame) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, frame...)
	b.mu.Unlock()
}

// Snapshot returns a copy of all bytes appended so far. Safe to call
// concurrently with Append; the copy is immutable from the caller's point
// of view and always ends on a frame boundary.
func (b *Buffer) Snapshot() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len returns the number of bytes appended so far.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Duration returns the play time of the audio captured so far.
func (b *Buffer) Duration() time.Duration {
	return DurationForBytes(b.Len())
}

// Reset discards all buffered audio. Only valid while no capture loop is
// appending; the session controller calls it before starting a new session.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
}
