package audio_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/voiceai/quill/pkg/audio"
)

func TestBuffer_AppendSnapshot(t *testing.T) {
	t.Parallel()

	b := audio.NewBuffer(1)

	if got := b.Snapshot(); len(got) != 0 {
		t.Fatalf("empty buffer snapshot length = %d, want 0", len(got))
	}

	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4, 5})

	want := []byte{1, 2, 3, 4, 5}
	if got := b.Snapshot(); !bytes.Equal(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
	if got := b.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	b := audio.NewBuffer(0)
	b.Append([]byte{10, 20, 30})

	snap := b.Snapshot()
	snap[0] = 99

	if got := b.Snapshot()[0]; got != 10 {
		t.Errorf("buffer mutated through snapshot: first byte = %d, want 10", got)
	}
}

// Every snapshot taken concurrently with appends must be a prefix of the
// final buffer content, and must consist of whole frames.
func TestBuffer_ConcurrentSnapshotsArePrefixes(t *testing.T) {
	t.Parallel()

	const (
		frameSize = 64
		frames    = 200
	)

	b := audio.NewBuffer(0)

	var wg sync.WaitGroup
	snapshots := make([][]byte, 0, 64)
	var snapMu sync.Mutex

	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 8 {
			for {
				select {
				case <-done:
					return
				default:
				}
				s := b.Snapshot()
				snapMu.Lock()
				snapshots = append(snapshots, s)
				snapMu.Unlock()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	for i := range frames {
		frame := bytes.Repeat([]byte{byte(i)}, frameSize)
		b.Append(frame)
	}
	close(done)
	wg.Wait()

	final := b.Snapshot()
	if len(final) != frames*frameSize {
		t.Fatalf("final length = %d, want %d", len(final), frames*frameSize)
	}

	for i, s := range snapshots {
		if len(s)%frameSize != 0 {
			t.Errorf("snapshot %d length %d is not a whole number of frames", i, len(s))
		}
		if !bytes.HasPrefix(final, s) {
			t.Errorf("snapshot %d is not a prefix of the final buffer", i)
		}
	}
}

func TestBuffer_Reset(t *testing.T) {
	t.Parallel()

	b := audio.NewBuffer(0)
	b.Append(make([]byte, audio.BytesPerSecond))

	if got, want := b.Duration(), time.Second; got != want {
		t.Errorf("Duration() = %v, want %v", got, want)
	}

	b.Reset()
	if got := b.Len(); got != 0 {
		t.Errorf("Len() after Reset = %d, want 0", got)
	}
	if got := b.Duration(); got != 0 {
		t.Errorf("Duration() after Reset = %v, want 0", got)
	}
}

func TestBytesForDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    time.Duration
		want int
	}{
		{"one second", time.Second, 32000},
		{"half second overlap", 500 * time.Millisecond, 16000},
		{"zero", 0, 0},
		{"negative", -time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := audio.BytesForDuration(tt.d); got != tt.want {
				t.Errorf("BytesForDuration(%v) = %d, want %d", tt.d, got, tt.want)
			}
		})
	}
}
