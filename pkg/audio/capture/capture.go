// Package capture provides live audio input for Quill.
//
// The two primary abstractions are:
//
//   - [Device] — an open audio input line delivering raw PCM at the fixed
//     format defined in the audio package.
//   - [Loop] — the single-writer read loop that pulls fixed-size frames from a
//     Device and appends them to an [audio.Buffer] until told to stop.
//
// A PortAudio-backed [Opener] is provided in this package; test code should
// use the mock sub-package instead of a real device.
package capture

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/voiceai/quill/pkg/audio"
)

// FrameSize is the number of PCM bytes pulled from the device per read.
// 4096 bytes is 128 ms at the fixed format — small enough that a stop request
// is honoured promptly, large enough to keep per-read overhead negligible.
const FrameSize = 4096

// ErrDeviceUnavailable is returned when no compatible audio input line can be
// opened at the fixed capture format.
var ErrDeviceUnavailable = errors.New("capture: no compatible audio input device available")

// Device is an open audio input line. Read fills p with raw PCM bytes at the
// fixed format and returns the number of bytes read. Reads block until at
// least one frame of audio is available from the driver.
//
// A Device belongs to exactly one [Loop]; it is not safe for concurrent reads.
type Device interface {
	Read(p []byte) (int, error)
	Close() error
}

// Opener opens an audio input [Device] for a given source. Implementations
// must return an error wrapping [ErrDeviceUnavailable] when the source cannot
// deliver the fixed capture format.
type Opener interface {
	// Open opens the input line for source. A zero-value Source selects the
	// default input device.
	Open(source Source) (Device, error)

	// Sources enumerates the input sources currently available.
	Sources() ([]Source, error)
}

// LoopOption configures a [Loop].
type LoopOption func(*Loop)

// WithFrameCallback sets a handler invoked with the byte count of every frame
// appended to the buffer. It runs on the read loop goroutine and must return
// quickly.
func WithFrameCallback(fn func(bytes int)) LoopOption {
	return func(l *Loop) {
		l.onFrame = fn
	}
}

// Loop pulls fixed-size frames from a [Device] and appends them to the
// session buffer until stopped or the device read fails.
//
// State machine: Stopped → Running → Stopped. A Loop runs at most once;
// create a new Loop for each session.
type Loop struct {
	dev       Device
	buf       *audio.Buffer
	frameSize int
	onFrame   func(bytes int)

	stopped atomic.Bool
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// NewLoop creates a capture loop reading frameSize-byte frames from dev into
// buf. frameSize <= 0 selects [FrameSize].
func NewLoop(dev Device, buf *audio.Buffer, frameSize int, opts ...LoopOption) *Loop {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	l := &Loop{
		dev:       dev,
		buf:       buf,
		frameSize: frameSize,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Start launches the read loop on its own goroutine. The loop exits when
// [Loop.Stop] is called (checked every iteration) or when a device read
// fails; either way the device handle is released on exit.
func (l *Loop) Start() {
	go l.run()
}

// Stop signals the loop to exit. It returns immediately; the loop observes
// the flag within one frame-read duration. Use [Loop.Done] to wait for exit.
// Safe to call more than once.
func (l *Loop) Stop() {
	l.stopped.Store(true)
}

// Done is closed once the loop has exited and the device is released.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns the device read error that terminated the loop, or nil when the
// loop exited because Stop was called. Only meaningful after Done is closed.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) run() {
	defer close(l.done)
	defer l.dev.Close()

	frame := make([]byte, l.frameSize)
	for !l.stopped.Load() {
		n, err := l.dev.Read(frame)
		if n > 0 {
			l.buf.Append(frame[:n])
			if l.onFrame != nil {
				l.onFrame(n)
			}
		}
		if err != nil {
			// A read error after Stop is ordinary teardown, not a failure.
			if !l.stopped.Load() {
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
			}
			return
		}
	}
}
