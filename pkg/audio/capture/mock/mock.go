// Package mock provides test doubles for the capture package interfaces.
//
// Use Device to feed scripted PCM frames into a capture.Loop and inspect how
// it was driven. Use Opener to control what Open returns without touching real
// hardware.
//
// Example:
//
//	dev := &mock.Device{Frames: [][]byte{frame1, frame2}}
//	op := &mock.Opener{Device: dev}
//	d, _ := op.Open(capture.Source{})
package mock

import (
	"io"
	"sync"

	"github.com/voiceai/quill/pkg/audio/capture"
)

// Device is a mock implementation of capture.Device. It serves the frames in
// Frames one Read at a time, then blocks (or returns ReadErr / io.EOF).
type Device struct {
	mu sync.Mutex

	// Frames are the PCM frames returned by successive Read calls, in order.
	Frames [][]byte

	// ReadErr, if non-nil, is returned by Read once Frames is exhausted.
	// When nil, Read returns io.EOF after the last frame instead of blocking.
	ReadErr error

	// BlockWhenDrained makes Read block on the Release channel once Frames is
	// exhausted, simulating a device waiting for more audio. The blocked Read
	// returns (0, ReadErr-or-io.EOF) once Release is closed.
	BlockWhenDrained bool

	// Release unblocks drained Reads when BlockWhenDrained is set. Callers own
	// this channel and must initialise it before Read can block on it.
	Release chan struct{}

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// ReadCallCount is the number of times Read was called.
	ReadCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// Read copies the next scripted frame into p. Behaviour after the last frame
// is governed by BlockWhenDrained and ReadErr.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	d.ReadCallCount++
	if d.next < len(d.Frames) {
		frame := d.Frames[d.next]
		d.next++
		d.mu.Unlock()
		return copy(p, frame), nil
	}
	block := d.BlockWhenDrained
	release := d.Release
	err := d.ReadErr
	d.mu.Unlock()

	if block && release != nil {
		<-release
	}
	if err != nil {
		return 0, err
	}
	return 0, io.EOF
}

// Close records the call and returns CloseErr.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	return d.CloseErr
}

// Closed reports whether Close has been called at least once. Thread-safe.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CloseCallCount > 0
}

// Ensure Device implements capture.Device at compile time.
var _ capture.Device = (*Device)(nil)

// OpenCall records a single invocation of Opener.Open.
type OpenCall struct {
	// Source is the source passed to Open.
	Source capture.Source
}

// Opener is a mock implementation of capture.Opener.
type Opener struct {
	mu sync.Mutex

	// Device is returned by Open. If nil, Open returns a new empty Device.
	Device capture.Device

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// SourcesList is returned by Sources.
	SourcesList []capture.Source

	// SourcesErr, if non-nil, is returned as the error from Sources.
	SourcesErr error

	// OpenCalls records every call to Open.
	OpenCalls []OpenCall
}

// Open records the call and returns Device, OpenErr.
func (o *Opener) Open(source capture.Source) (capture.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenCalls = append(o.OpenCalls, OpenCall{Source: source})
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	if o.Device != nil {
		return o.Device, nil
	}
	return &Device{}, nil
}

// Sources returns SourcesList, SourcesErr.
func (o *Opener) Sources() ([]capture.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.SourcesList, o.SourcesErr
}

// OpenCallCount returns the number of Open calls. Thread-safe.
func (o *Opener) OpenCallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.OpenCalls)
}

// Ensure Opener implements capture.Opener at compile time.
var _ capture.Opener = (*Opener)(nil)
