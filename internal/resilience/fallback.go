package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voiceai/quill/pkg/backend"
)

// ErrAllFailed is returned when every backend in a [BackendFallback] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all transcription backends failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// backend in a [BackendFallback].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// fallbackEntry pairs a transcription backend with its dedicated breaker.
type fallbackEntry struct {
	name        string
	transcriber backend.Transcriber
	breaker     *CircuitBreaker
}

// BackendFallback wraps a primary and zero or more fallback transcription
// backends behind the [backend.Transcriber] interface. When the primary
// fails (or its circuit breaker is open), the next healthy fallback is tried
// in registration order, all within the single attempt the dispatcher makes
// for a chunk.
//
// BackendFallback is safe for concurrent use once assembled; AddFallback is
// not safe to call concurrently with Transcribe.
type BackendFallback struct {
	entries []fallbackEntry
	cfg     FallbackConfig
}

// Compile-time assertion that BackendFallback satisfies backend.Transcriber.
var _ backend.Transcriber = (*BackendFallback)(nil)

// NewBackendFallback creates a [BackendFallback] with primary as the first
// entry. Additional backends are registered via
// [BackendFallback.AddFallback].
func NewBackendFallback(primaryName string, primary backend.Transcriber, cfg FallbackConfig) *BackendFallback {
	cbCfg := cfg.CircuitBreaker
	cbCfg.Name = primaryName
	return &BackendFallback{
		entries: []fallbackEntry{
			{
				name:        primaryName,
				transcriber: primary,
				breaker:     NewCircuitBreaker(cbCfg),
			},
		},
		cfg: cfg,
	}
}

// AddFallback appends a fallback backend. Fallbacks are tried in the order
// they are added, after the primary.
func (f *BackendFallback) AddFallback(name string, t backend.Transcriber) {
	cbCfg := f.cfg.CircuitBreaker
	cbCfg.Name = name
	f.entries = append(f.entries, fallbackEntry{
		name:        name,
		transcriber: t,
		breaker:     NewCircuitBreaker(cbCfg),
	})
}

// Transcribe implements backend.Transcriber. It tries each backend in order
// until one succeeds; entries with an open breaker are skipped. When the
// context is cancelled the remaining backends are not tried. Returns
// [ErrAllFailed] wrapped with the last error if every backend fails.
func (f *BackendFallback) Transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	var lastErr error
	for i := range f.entries {
		entry := &f.entries[i]

		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		var text string
		err := entry.breaker.Execute(func() error {
			var innerErr error
			text, innerErr = entry.transcriber.Transcribe(ctx, pcm, language)
			return innerErr
		})
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend (circuit open)", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// States reports each backend's breaker state by name, for readiness
// reporting.
func (f *BackendFallback) States() map[string]State {
	states := make(map[string]State, len(f.entries))
	for i := range f.entries {
		states[f.entries[i].name] = f.entries[i].breaker.State()
	}
	return states
}
