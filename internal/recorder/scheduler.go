package recorder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/voiceai/quill/pkg/audio"
)

// Default chunking parameters for the fixed capture format.
const (
	// DefaultPeriod is the fixed delay between scheduling passes.
	DefaultPeriod = 5 * time.Second

	// DefaultOverlap is the duration of already-processed audio re-included
	// at the start of the next chunk so word boundaries survive chunking.
	DefaultOverlap = 500 * time.Millisecond

	// DefaultMinChunk is the minimum amount of new audio required before a
	// chunk is dispatched. Shorter tails are deferred to the next pass or to
	// the final drain.
	DefaultMinChunk = time.Second
)

// SchedulerOption is a functional option for configuring a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPeriod sets the delay between scheduling passes. Defaults to 5 s.
func WithPeriod(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithOverlap sets the overlap duration. Defaults to 500 ms.
func WithOverlap(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d >= 0 {
			s.overlapBytes = audio.BytesForDuration(d)
		}
	}
}

// WithMinChunk sets the minimum new-audio duration per chunk. Defaults to 1 s.
func WithMinChunk(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d >= 0 {
			s.minChunkBytes = audio.BytesForDuration(d)
		}
	}
}

// WithSchedulerLogger sets the logger. Defaults to slog.Default().
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// Scheduler slices overlapping windows out of the session buffer on a fixed
// delay and hands them to a dispatch function.
//
// A Scheduler belongs to exactly one session: create a new one per session,
// Start it once capturing begins, Stop it when capturing ends. Scheduling
// passes never overlap; a slow pass delays its successor rather than running
// concurrently with it.
type Scheduler struct {
	buf      *audio.Buffer
	dispatch func(Chunk)
	log      *slog.Logger

	period        time.Duration
	overlapBytes  int
	minChunkBytes int

	// mu guards cursor and seq, and makes "snapshot + cursor" a single
	// critical section so the enough-new-audio decision is computed against a
	// consistent pair.
	mu     sync.Mutex
	cursor int
	seq    int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler reading from buf and handing chunks to
// dispatch. dispatch must not block for long; the dispatcher's Dispatch is
// fire-and-forget and satisfies this.
func NewScheduler(buf *audio.Buffer, dispatch func(Chunk), opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		buf:           buf,
		dispatch:      dispatch,
		log:           slog.Default(),
		period:        DefaultPeriod,
		overlapBytes:  audio.BytesForDuration(DefaultOverlap),
		minChunkBytes: audio.BytesForDuration(DefaultMinChunk),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the periodic tick loop on its own goroutine. Fixed-delay
// semantics: the next pass is scheduled only after the current one finishes.
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		timer := time.NewTimer(s.period)
		defer timer.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-timer.C:
				s.Tick()
				timer.Reset(s.period)
			}
		}
	}()
}

// Stop cancels all future scheduling passes. It does not touch chunks already
// handed to the dispatcher. Safe to call more than once and before Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done is closed once the tick loop has exited. Closed without Start only
// after Stop.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Tick runs one scheduling pass immediately: snapshot the buffer, compute the
// next overlapping window, and dispatch it if it meets the minimum length.
// When the window is too short nothing is dispatched and the cursor does not
// move. Safe to call concurrently with the periodic loop, though passes are
// serialised.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.buf.Snapshot()

	windowStart := s.cursor - s.overlapBytes
	if windowStart < 0 {
		windowStart = 0
	}
	if len(snap)-windowStart < s.minChunkBytes {
		return
	}

	chunk := Chunk{
		Seq:   s.seq,
		Start: windowStart,
		End:   len(snap),
		PCM:   snap[windowStart:],
	}
	s.seq++
	s.cursor = len(snap)

	s.log.Debug("chunk scheduled",
		"seq", chunk.Seq, "start", chunk.Start, "end", chunk.End)
	s.dispatch(chunk)
}

// Drain extracts the final unprocessed tail as a terminal chunk: no overlap,
// no minimum length. Returns false when no tail remains. The caller owns
// dispatching it (typically with a bounded synchronous wait).
func (s *Scheduler) Drain() (Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.buf.Snapshot()
	if len(snap) <= s.cursor {
		return Chunk{}, false
	}

	chunk := Chunk{
		Seq:   s.seq,
		Start: s.cursor,
		End:   len(snap),
		PCM:   snap[s.cursor:],
	}
	s.seq++
	s.cursor = len(snap)

	s.log.Debug("drain chunk extracted",
		"seq", chunk.Seq, "start", chunk.Start, "end", chunk.End)
	return chunk, true
}

// Scheduled returns the number of chunks assigned so far (periodic + drain).
func (s *Scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
