package recorder_test

import (
	"sync"
	"testing"
	"time"

	"github.com/voiceai/quill/internal/recorder"
	"github.com/voiceai/quill/pkg/audio"
)

// chunkSink collects dispatched chunks for inspection.
type chunkSink struct {
	mu     sync.Mutex
	chunks []recorder.Chunk
}

func (s *chunkSink) dispatch(c recorder.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, c)
}

func (s *chunkSink) all() []recorder.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recorder.Chunk(nil), s.chunks...)
}

const (
	overlapBytes  = 16000 // 500 ms
	minChunkBytes = 32000 // 1 s
)

func newTestScheduler(buf *audio.Buffer, sink *chunkSink) *recorder.Scheduler {
	return recorder.NewScheduler(buf, sink.dispatch,
		recorder.WithOverlap(500*time.Millisecond),
		recorder.WithMinChunk(time.Second),
	)
}

func TestScheduler_MinimumChunkDeferral(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(0)
	sink := &chunkSink{}
	s := newTestScheduler(buf, sink)

	// 20000 bytes is under the 32000-byte minimum: the pass must dispatch
	// nothing and must not advance the cursor.
	buf.Append(make([]byte, 20000))
	s.Tick()

	if got := sink.all(); len(got) != 0 {
		t.Fatalf("dispatched %d chunks for a short window, want 0", len(got))
	}
	if got := s.Scheduled(); got != 0 {
		t.Errorf("Scheduled() = %d, want 0", got)
	}

	// Crossing the threshold later must produce a chunk starting at 0,
	// proving the cursor did not move on the deferred pass.
	buf.Append(make([]byte, 20000))
	s.Tick()

	chunks := sink.all()
	if len(chunks) != 1 {
		t.Fatalf("dispatched %d chunks, want 1", len(chunks))
	}
	if chunks[0].Start != 0 || chunks[0].End != 40000 {
		t.Errorf("chunk range = [%d,%d), want [0,40000)", chunks[0].Start, chunks[0].End)
	}
}

func TestScheduler_OverlapCorrectness(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(0)
	sink := &chunkSink{}
	s := newTestScheduler(buf, sink)

	buf.Append(make([]byte, 32000))
	s.Tick() // chunk 0: [0,32000), cursor = 32000

	buf.Append(make([]byte, 32000))
	s.Tick() // chunk 1 must start at cursor - overlap

	chunks := sink.all()
	if len(chunks) != 2 {
		t.Fatalf("dispatched %d chunks, want 2", len(chunks))
	}
	if want := 32000 - overlapBytes; chunks[1].Start != want {
		t.Errorf("chunk 1 start = %d, want %d", chunks[1].Start, want)
	}
	if chunks[1].End != 64000 {
		t.Errorf("chunk 1 end = %d, want 64000", chunks[1].End)
	}
	if got, want := len(chunks[1].PCM), 64000-(32000-overlapBytes); got != want {
		t.Errorf("chunk 1 pcm length = %d, want %d", got, want)
	}
}

func TestScheduler_OverlapClampedAtZero(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(0)
	sink := &chunkSink{}
	s := newTestScheduler(buf, sink)

	// First chunk: cursor is 0, so max(0, 0-16000) must clamp to 0.
	buf.Append(make([]byte, minChunkBytes))
	s.Tick()

	chunks := sink.all()
	if len(chunks) != 1 {
		t.Fatalf("dispatched %d chunks, want 1", len(chunks))
	}
	if chunks[0].Start != 0 {
		t.Errorf("chunk 0 start = %d, want 0", chunks[0].Start)
	}
}

func TestScheduler_SequenceMonotonicity(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(0)
	sink := &chunkSink{}
	s := newTestScheduler(buf, sink)

	for range 5 {
		buf.Append(make([]byte, minChunkBytes))
		s.Tick()
	}

	chunks := sink.all()
	if len(chunks) != 5 {
		t.Fatalf("dispatched %d chunks, want 5", len(chunks))
	}
	for i, c := range chunks {
		if c.Seq != i {
			t.Errorf("chunk %d has seq %d, want %d", i, c.Seq, i)
		}
	}
}

func TestScheduler_DrainTakesTailWithoutOverlapOrMinimum(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(0)
	sink := &chunkSink{}
	s := newTestScheduler(buf, sink)

	buf.Append(make([]byte, 32000))
	s.Tick() // cursor = 32000

	// A 5000-byte tail is under the minimum, but drain takes it anyway,
	// starting exactly at the cursor (no overlap on the terminal chunk).
	buf.Append(make([]byte, 5000))
	chunk, ok := s.Drain()
	if !ok {
		t.Fatal("Drain() = false, want a tail chunk")
	}
	if chunk.Start != 32000 || chunk.End != 37000 {
		t.Errorf("drain chunk range = [%d,%d), want [32000,37000)", chunk.Start, chunk.End)
	}
	if chunk.Seq != 1 {
		t.Errorf("drain chunk seq = %d, want 1", chunk.Seq)
	}

	// A second drain with no new audio yields nothing.
	if _, ok := s.Drain(); ok {
		t.Error("second Drain() produced a chunk, want none")
	}
}

func TestScheduler_DrainOnEmptyBuffer(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(audio.NewBuffer(0), &chunkSink{})
	if _, ok := s.Drain(); ok {
		t.Error("Drain() on empty buffer produced a chunk")
	}
}

// Drain completeness: the union of all dispatched ranges covers the whole
// buffer, with overlap as the only duplication.
func TestScheduler_RangesCoverBuffer(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(0)
	sink := &chunkSink{}
	s := newTestScheduler(buf, sink)

	for range 3 {
		buf.Append(make([]byte, 40000))
		s.Tick()
	}
	buf.Append(make([]byte, 7000))
	if chunk, ok := s.Drain(); ok {
		sink.dispatch(chunk)
	}

	chunks := sink.all()
	if len(chunks) == 0 {
		t.Fatal("no chunks dispatched")
	}
	covered := 0
	for _, c := range chunks {
		if c.Start > covered {
			t.Fatalf("gap before offset %d: chunk starts at %d", covered, c.Start)
		}
		if c.End > covered {
			covered = c.End
		}
	}
	if want := buf.Len(); covered != want {
		t.Errorf("covered [0,%d), want [0,%d)", covered, want)
	}
}

func TestScheduler_PeriodicTicksFireAndStopCancels(t *testing.T) {
	t.Parallel()

	buf := audio.NewBuffer(0)
	sink := &chunkSink{}
	s := recorder.NewScheduler(buf, sink.dispatch,
		recorder.WithPeriod(10*time.Millisecond),
		recorder.WithOverlap(500*time.Millisecond),
		recorder.WithMinChunk(time.Second),
	)

	buf.Append(make([]byte, minChunkBytes))
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for s.Scheduled() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("periodic tick never dispatched a chunk")
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler loop did not exit after Stop")
	}

	// No further dispatches after Stop, even with fresh audio.
	before := s.Scheduled()
	buf.Append(make([]byte, minChunkBytes))
	time.Sleep(50 * time.Millisecond)
	if got := s.Scheduled(); got != before {
		t.Errorf("Scheduled() advanced from %d to %d after Stop", before, got)
	}
}
