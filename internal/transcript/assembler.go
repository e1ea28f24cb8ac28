// Package transcript assembles and stores the text produced by a recording
// session.
//
// The recorder reports chunk results in completion order; under variable
// backend latency chunk 3's text can arrive before chunk 2's. The Assembler
// is the ordering policy for callers that want an in-sequence transcript: it
// buffers out-of-order completions and releases fragments strictly by
// sequence number. Failed chunks are released as gap fragments so the reader
// can see where audio was lost.
//
// Store implementations persist released fragments per session; an in-memory
// store and a PostgreSQL store are provided.
package transcript

import (
	"strings"
	"sync"
)

// Fragment is one chunk's contribution to the session transcript.
type Fragment struct {
	// Seq is the chunk sequence number.
	Seq int

	// Text is the transcribed text, already separator-terminated by the
	// dispatcher. Empty when Failed.
	Text string

	// Failed marks a chunk whose transcription failed; its audio is lost and
	// the transcript has a gap here.
	Failed bool

	// Reason is the failure reason when Failed.
	Reason string
}

// Assembler buffers out-of-order chunk completions and releases them in
// sequence order.
//
// Chunks that transcribe to empty text produce no completion at all, so a
// sequence number can stay pending until Flush. Call Flush when the session
// ends to release everything still buffered, in ascending order.
//
// Safe for concurrent use.
type Assembler struct {
	mu      sync.Mutex
	next    int
	pending map[int]Fragment
	ordered []Fragment

	onRelease func(Fragment)
}

// AssemblerOption is a functional option for configuring an Assembler.
type AssemblerOption func(*Assembler)

// WithReleaseCallback sets a handler invoked for every released fragment, in
// sequence order. Invoked while the assembler's lock is not held.
func WithReleaseCallback(fn func(Fragment)) AssemblerOption {
	return func(a *Assembler) {
		a.onRelease = fn
	}
}

// NewAssembler creates an empty assembler expecting sequence numbers from 0.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{pending: make(map[int]Fragment)}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AddText records a successful chunk completion.
func (a *Assembler) AddText(seq int, text string) {
	a.add(Fragment{Seq: seq, Text: text})
}

// AddError records a failed chunk as a gap fragment.
func (a *Assembler) AddError(seq int, reason string) {
	a.add(Fragment{Seq: seq, Failed: true, Reason: reason})
}

func (a *Assembler) add(f Fragment) {
	a.mu.Lock()
	if f.Seq < a.next {
		// Duplicate or stale completion; sequence numbers are consumed once.
		a.mu.Unlock()
		return
	}
	a.pending[f.Seq] = f
	released := a.releaseContiguousLocked()
	a.mu.Unlock()

	a.notify(released)
}

// releaseContiguousLocked moves pending fragments into the ordered transcript
// for as long as the next expected sequence number is present.
func (a *Assembler) releaseContiguousLocked() []Fragment {
	var released []Fragment
	for {
		f, ok := a.pending[a.next]
		if !ok {
			return released
		}
		delete(a.pending, a.next)
		a.ordered = append(a.ordered, f)
		released = append(released, f)
		a.next++
	}
}

// Flush releases every still-pending fragment in ascending sequence order,
// skipping over sequence numbers that never completed (empty-text chunks).
// Call it once the session has stopped and no more completions can arrive.
func (a *Assembler) Flush() {
	a.mu.Lock()
	var released []Fragment
	for len(a.pending) > 0 {
		// Find the smallest pending sequence number at or past next.
		min := -1
		for seq := range a.pending {
			if min == -1 || seq < min {
				min = seq
			}
		}
		f := a.pending[min]
		delete(a.pending, min)
		a.ordered = append(a.ordered, f)
		released = append(released, f)
		a.next = min + 1
	}
	a.mu.Unlock()

	a.notify(released)
}

func (a *Assembler) notify(released []Fragment) {
	if a.onRelease == nil {
		return
	}
	for _, f := range released {
		a.onRelease(f)
	}
}

// Transcript returns the released fragments' text joined in sequence order.
// Failed fragments contribute nothing to the text.
func (a *Assembler) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var b strings.Builder
	for _, f := range a.ordered {
		if !f.Failed {
			b.WriteString(f.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// Fragments returns a copy of the released fragments in sequence order.
func (a *Assembler) Fragments() []Fragment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Fragment(nil), a.ordered...)
}

// Pending returns how many completions are buffered waiting for earlier
// sequence numbers.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Reset clears all state for a new session.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next = 0
	a.pending = make(map[int]Fragment)
	a.ordered = nil
}
