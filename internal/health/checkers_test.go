package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voiceai/quill/internal/resilience"
	"github.com/voiceai/quill/pkg/audio/capture"
	capturemock "github.com/voiceai/quill/pkg/audio/capture/mock"
	backendmock "github.com/voiceai/quill/pkg/backend/mock"
)

func TestDeviceChecker(t *testing.T) {
	tests := []struct {
		name    string
		opener  *capturemock.Opener
		wantErr bool
	}{
		{
			name: "sources available",
			opener: &capturemock.Opener{
				SourcesList: []capture.Source{{ID: "mic0", Name: "Built-in Mic"}},
			},
		},
		{
			name:    "no sources",
			opener:  &capturemock.Opener{},
			wantErr: true,
		},
		{
			name: "enumeration fails",
			opener: &capturemock.Opener{
				SourcesErr: errors.New("subsystem not initialised"),
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := DeviceChecker(tc.opener)
			if c.Name != "audio-device" {
				t.Errorf("checker name = %q, want %q", c.Name, "audio-device")
			}
			err := c.Check(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(_ context.Context) error { return p.err }

func TestStoreChecker(t *testing.T) {
	c := StoreChecker(fakePinger{})
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}

	c = StoreChecker(fakePinger{err: errors.New("connection refused")})
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check() = nil, want error")
	}
}

func TestBackendChecker(t *testing.T) {
	failing := &backendmock.Transcriber{DefaultErr: errors.New("down")}
	fb := resilience.NewBackendFallback("primary", failing, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  1,
			ResetTimeout: time.Hour,
		},
	})

	c := BackendChecker(fb)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() with closed breaker = %v, want nil", err)
	}

	// Trip the only breaker; the checker should now fail.
	_, _ = fb.Transcribe(context.Background(), []byte{1}, "")
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check() with all breakers open = nil, want error")
	}
}
