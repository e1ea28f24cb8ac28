package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/voiceai/quill/internal/resilience"
	"github.com/voiceai/quill/pkg/audio/capture"
)

// Pinger is the subset of a connection pool used for readiness probing.
// [github.com/jackc/pgx/v5/pgxpool.Pool] satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DeviceChecker returns a [Checker] named "audio-device" that passes when the
// opener can enumerate at least one input source. It does not open a stream,
// so it is safe to run while a capture session is active.
func DeviceChecker(opener capture.Opener) Checker {
	return Checker{
		Name: "audio-device",
		Check: func(_ context.Context) error {
			sources, err := opener.Sources()
			if err != nil {
				return fmt.Errorf("enumerating sources: %w", err)
			}
			if len(sources) == 0 {
				return errors.New("no input sources available")
			}
			return nil
		},
	}
}

// StoreChecker returns a [Checker] named "store" that pings the transcript
// store's underlying connection pool.
func StoreChecker(p Pinger) Checker {
	return Checker{
		Name:  "store",
		Check: p.Ping,
	}
}

// BackendChecker returns a [Checker] named "backend" that passes while at
// least one transcription backend's circuit breaker is not open. A half-open
// breaker counts as available since probe calls are allowed through.
func BackendChecker(fb *resilience.BackendFallback) Checker {
	return Checker{
		Name: "backend",
		Check: func(_ context.Context) error {
			states := fb.States()
			for _, s := range states {
				if s != resilience.StateOpen {
					return nil
				}
			}
			return fmt.Errorf("all %d backend circuit breakers are open", len(states))
		},
	}
}
