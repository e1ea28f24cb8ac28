package audio

import "time"

// Fixed capture format: 16 kHz, 16-bit, mono, signed little-endian PCM.
const (
	// SampleRate is the capture sample rate in Hz.
	SampleRate = 16000

	// BitsPerSample is the sample bit depth.
	BitsPerSample = 16

	// Channels is the channel count (mono).
	Channels = 1

	// BytesPerSample is the storage size of one sample.
	BytesPerSample = BitsPerSample / 8

	// BytesPerSecond is the PCM data rate for the fixed format: 32 000 B/s.
	BytesPerSecond = SampleRate * Channels * BytesPerSample
)

// BytesForDuration returns the number of PCM bytes covering d at the fixed
// format. Negative durations yield 0.
func BytesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d.Milliseconds()) * BytesPerSecond / 1000
}

// DurationForBytes returns the play time of n PCM bytes at the fixed format.
func DurationForBytes(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / BytesPerSecond
}
