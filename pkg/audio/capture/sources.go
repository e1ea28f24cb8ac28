package capture

import "strings"

// Source describes one available audio input. A zero value selects the
// system default input device.
type Source struct {
	// ID is the opener-specific device identifier. Empty selects the default.
	ID string

	// Name is the driver-reported device name.
	Name string

	// HostAPI is the audio subsystem the device belongs to (e.g. "ALSA",
	// "Core Audio", "WASAPI"). May be empty.
	HostAPI string

	// SystemAudio reports whether the source captures system playback
	// (loopback / "stereo mix") rather than a microphone.
	SystemAudio bool
}

// DisplayName returns a user-facing label for the source.
func (s Source) DisplayName() string {
	name := s.Name
	if name == "" {
		name = "Default input"
	}
	if s.SystemAudio {
		return name + " (System Audio)"
	}
	return name
}

// isSystemAudioName reports whether a device name looks like a system-audio
// loopback source. These names are driver conventions, not a standard, so
// detection is a best-effort substring match.
func isSystemAudioName(name string) bool {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "stereo mix"),
		strings.Contains(n, "stereomix"),
		strings.Contains(n, "wave out"),
		strings.Contains(n, "loopback"),
		strings.Contains(n, "what u hear"),
		strings.Contains(n, "what you hear"),
		strings.Contains(n, "record what you hear"),
		strings.Contains(n, "rec. playback"):
		return true
	case strings.Contains(n, "monitor") && strings.Contains(n, "mix"):
		return true
	}
	return false
}
