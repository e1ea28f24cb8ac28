package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voiceai/quill/pkg/backend"
)

// Default dispatcher parameters.
const (
	// DefaultWorkers bounds the number of concurrent backend calls.
	DefaultWorkers = 4

	// DefaultCallTimeout is the per-chunk backend timeout for periodic chunks.
	DefaultCallTimeout = 15 * time.Second

	// DefaultDrainTimeout bounds both the backend call for the terminal drain
	// chunk and the synchronous wait for its result.
	DefaultDrainTimeout = 10 * time.Second
)

// DispatcherOption is a functional option for configuring a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers bounds the worker pool. Defaults to 4.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithCallTimeout sets the per-chunk backend timeout. Defaults to 15 s.
func WithCallTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.callTimeout = t
		}
	}
}

// WithDrainTimeout sets the drain-chunk timeout. Defaults to 10 s.
func WithDrainTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.drainTimeout = t
		}
	}
}

// WithLanguage sets the BCP-47 language hint forwarded to the backend.
// Empty (the default) lets the backend auto-detect.
func WithLanguage(lang string) DispatcherOption {
	return func(d *Dispatcher) {
		d.language = lang
	}
}

// WithOnText sets the success callback. seq is the chunk's sequence number.
func WithOnText(fn func(seq int, text string)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onText = fn
	}
}

// WithOnError sets the failure callback.
func WithOnError(fn func(seq int, reason string)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onError = fn
	}
}

// WithDispatcherLogger sets the logger. Defaults to slog.Default().
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// Dispatcher submits chunks to a transcription backend on a bounded worker
// pool and reports each outcome through the configured callbacks.
//
// Callbacks fire in completion order, not sequence order; each carries the
// chunk's sequence number so the caller can apply its own ordering policy.
// A failed or timed-out chunk is reported once and its audio is dropped —
// chunks are never retried.
type Dispatcher struct {
	transcriber backend.Transcriber
	log         *slog.Logger

	workers      int
	callTimeout  time.Duration
	drainTimeout time.Duration

	onText  func(seq int, text string)
	onError func(seq int, reason string)

	sem *semaphore.Weighted

	mu       sync.RWMutex
	language string
}

// NewDispatcher creates a dispatcher submitting chunks to transcriber.
func NewDispatcher(transcriber backend.Transcriber, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transcriber:  transcriber,
		log:          slog.Default(),
		workers:      DefaultWorkers,
		callTimeout:  DefaultCallTimeout,
		drainTimeout: DefaultDrainTimeout,
		onText:       func(int, string) {},
		onError:      func(int, string) {},
	}
	for _, o := range opts {
		o(d)
	}
	d.sem = semaphore.NewWeighted(int64(d.workers))
	return d
}

// SetLanguage replaces the language hint for subsequently dispatched chunks.
// Chunks already in flight keep the hint they were dispatched with.
func (d *Dispatcher) SetLanguage(lang string) {
	d.mu.Lock()
	d.language = lang
	d.mu.Unlock()
}

// Language returns the current language hint.
func (d *Dispatcher) Language() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.language
}

// Dispatch submits chunk for transcription and returns immediately. The
// outcome is reported later through the onText or onError callback.
func (d *Dispatcher) Dispatch(chunk Chunk) {
	go d.process(context.Background(), chunk, d.callTimeout)
}

// DispatchAndWait submits the terminal drain chunk and blocks until its
// outcome has been reported or the drain timeout elapses. On timeout the
// chunk is abandoned (the callback may still fire later) and
// context.DeadlineExceeded is returned. Cancelling ctx aborts the in-flight
// backend call as well as the wait.
func (d *Dispatcher) DispatchAndWait(ctx context.Context, chunk Chunk) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.process(ctx, chunk, d.drainTimeout)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(d.drainTimeout):
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process runs one chunk through the pool, the backend, and post-processing.
func (d *Dispatcher) process(ctx context.Context, chunk Chunk, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The pool bound doubles as a queue bound: a chunk that cannot get a
	// worker before its own deadline is reported failed, not queued forever.
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.fail(chunk, fmt.Errorf("worker pool saturated: %w", err))
		return
	}
	defer d.sem.Release(1)

	start := time.Now()
	text, err := d.transcriber.Transcribe(ctx, chunk.PCM, d.Language())
	if err != nil {
		d.fail(chunk, err)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		// No recognisable speech. Not an error, not a result.
		d.log.Debug("chunk transcribed empty", "seq", chunk.Seq)
		return
	}

	d.log.Debug("chunk transcribed",
		"seq", chunk.Seq, "bytes", len(chunk.PCM), "took", time.Since(start))
	d.onText(chunk.Seq, appendSeparator(text))
}

func (d *Dispatcher) fail(chunk Chunk, err error) {
	d.log.Warn("chunk transcription failed", "seq", chunk.Seq, "error", err)
	d.onError(chunk.Seq, err.Error())
}

// appendSeparator appends a trailing space unless the text already ends in
// terminal punctuation, so consecutive fragments concatenate readably.
func appendSeparator(text string) string {
	switch text[len(text)-1] {
	case '.', '!', '?':
		return text
	}
	return text + " "
}
