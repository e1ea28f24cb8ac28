// Package mock provides a test double for the backend.Transcriber interface.
//
// Use Transcriber to script per-chunk results and inspect which audio chunks
// were submitted:
//
//	tr := &mock.Transcriber{Results: []mock.Result{{Text: "hello"}}}
//	text, err := tr.Transcribe(ctx, pcm, "en")
package mock

import (
	"context"
	"sync"

	"github.com/voiceai/quill/pkg/backend"
)

// Result scripts the outcome of one Transcribe call.
type Result struct {
	// Text is returned as the transcription.
	Text string

	// Err, if non-nil, is returned instead of Text.
	Err error
}

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio bytes passed to Transcribe.
	PCM []byte

	// Language is the language hint passed to Transcribe.
	Language string
}

// Transcriber is a mock implementation of backend.Transcriber.
//
// Results are consumed in call order; once exhausted, calls return
// DefaultText, DefaultErr. When Func is set it overrides everything and is
// invoked directly (calls are still recorded).
type Transcriber struct {
	mu sync.Mutex

	// Results scripts the outcomes of successive Transcribe calls in order.
	Results []Result

	// DefaultText and DefaultErr are returned once Results is exhausted.
	DefaultText string
	DefaultErr  error

	// Func, if non-nil, handles every call instead of Results. Useful for
	// blocking on a channel to simulate slow backends.
	Func func(ctx context.Context, pcm []byte, language string) (string, error)

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	next int
}

// Transcribe records the call and returns the next scripted result.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	t.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{PCM: cp, Language: language})
	fn := t.Func
	var res Result
	if fn == nil {
		if t.next < len(t.Results) {
			res = t.Results[t.next]
			t.next++
		} else {
			res = Result{Text: t.DefaultText, Err: t.DefaultErr}
		}
	}
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm, language)
	}
	if res.Err != nil {
		return "", res.Err
	}
	return res.Text, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.TranscribeCalls)
}

// ResetCalls clears all recorded calls and rewinds scripted results.
func (t *Transcriber) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
	t.next = 0
}

// Ensure Transcriber implements backend.Transcriber at compile time.
var _ backend.Transcriber = (*Transcriber)(nil)
