// Package audio provides the fixed PCM audio format used throughout Quill,
// the session-scoped append-only capture buffer, and WAV container encoding.
//
// The format is fixed at 16 kHz, 16-bit, mono, signed little-endian PCM —
// the format speech-to-text backends expect. All byte/duration conversions
// in this package assume that format.
//
// This package lives under pkg/ because backend implementations and external
// tooling are expected to consume [Buffer] snapshots and [EncodeWAV] output.
package audio
