// This file contains the PortAudio-backed Opener. The PortAudio C library
// must be available at link time (portaudio-2.0 via pkg-config).

package capture

import (
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/voiceai/quill/pkg/audio"
)

// Compile-time assertion that PortAudioOpener satisfies Opener.
var _ Opener = (*PortAudioOpener)(nil)

// PortAudioOpener opens input devices through PortAudio. Each successful Open
// holds the PortAudio runtime initialised until the returned Device is closed.
type PortAudioOpener struct{}

// NewPortAudioOpener returns an Opener backed by PortAudio.
func NewPortAudioOpener() *PortAudioOpener {
	return &PortAudioOpener{}
}

// Sources enumerates PortAudio devices that can record (MaxInputChannels > 0).
func (o *PortAudioOpener) Sources() ([]Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: enumerate devices: %w", err)
	}

	var sources []Source
	for _, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		hostAPI := ""
		if info.HostApi != nil {
			hostAPI = info.HostApi.Name
		}
		sources = append(sources, Source{
			ID:          info.Name,
			Name:        info.Name,
			HostAPI:     hostAPI,
			SystemAudio: isSystemAudioName(info.Name),
		})
	}
	return sources, nil
}

// Open opens the input line for source at the fixed capture format. A
// zero-value source selects the default input device. Returns an error
// wrapping [ErrDeviceUnavailable] when no matching device can be opened.
func (o *PortAudioOpener) Open(source Source) (Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrDeviceUnavailable, err)
	}

	samples := make([]int16, FrameSize/audio.BytesPerSample)

	var (
		stream *portaudio.Stream
		err    error
	)
	if source.ID == "" {
		stream, err = portaudio.OpenDefaultStream(
			audio.Channels, 0, float64(audio.SampleRate), len(samples), samples)
	} else {
		stream, err = o.openNamed(source.ID, samples)
	}
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open %q: %v", ErrDeviceUnavailable, source.DisplayName(), err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start %q: %v", ErrDeviceUnavailable, source.DisplayName(), err)
	}

	return &paDevice{stream: stream, samples: samples}, nil
}

// openNamed opens an input stream on the device whose name matches id.
func (o *PortAudioOpener) openNamed(id string, samples []int16) (*portaudio.Stream, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name != id || info.MaxInputChannels < 1 {
			continue
		}
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   info,
				Channels: audio.Channels,
				Latency:  info.DefaultLowInputLatency,
			},
			SampleRate:      float64(audio.SampleRate),
			FramesPerBuffer: len(samples),
		}
		return portaudio.OpenStream(params, samples)
	}
	return nil, fmt.Errorf("no input device named %q", id)
}

// paDevice adapts a PortAudio input stream to the [Device] interface.
type paDevice struct {
	stream  *portaudio.Stream
	samples []int16
}

// Read blocks until one frame of samples is available, then serialises it as
// 16-bit little-endian PCM into p. len(p) must be at least [FrameSize].
func (d *paDevice) Read(p []byte) (int, error) {
	if len(p) < len(d.samples)*audio.BytesPerSample {
		return 0, fmt.Errorf("capture: read buffer too small: %d < %d",
			len(p), len(d.samples)*audio.BytesPerSample)
	}
	if err := d.stream.Read(); err != nil {
		return 0, fmt.Errorf("capture: device read: %w", err)
	}
	for i, s := range d.samples {
		binary.LittleEndian.PutUint16(p[i*2:i*2+2], uint16(s))
	}
	return len(d.samples) * audio.BytesPerSample, nil
}

// Close stops the stream and releases the PortAudio runtime.
func (d *paDevice) Close() error {
	_ = d.stream.Stop()
	err := d.stream.Close()
	portaudio.Terminate()
	return err
}
