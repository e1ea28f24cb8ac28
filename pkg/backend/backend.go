// Package backend defines the Transcriber interface for speech-to-text
// engines.
//
// A backend turns one chunk of raw PCM audio into text in a single blocking
// call. Unlike a streaming recognizer it holds no per-session state: the
// caller owns chunking, overlap, and ordering, and the backend only answers
// "what was said in these bytes". This keeps implementations trivially
// swappable — a cloud API, a local whisper.cpp server, and the CGO bindings
// all satisfy the same one-method contract.
//
// Implementations must be safe for concurrent use; the dispatcher invokes
// Transcribe from multiple goroutines at once.
package backend

import "context"

// Transcriber converts a chunk of audio into text.
type Transcriber interface {
	// Transcribe converts pcm — raw 16 kHz 16-bit mono signed little-endian
	// PCM — into text. language is a BCP-47 hint (e.g. "en"); empty lets the
	// backend auto-detect if it can.
	//
	// An empty string with a nil error is a valid result and means the chunk
	// contained no recognisable speech. Implementations must honour ctx
	// cancellation and deadlines.
	Transcribe(ctx context.Context, pcm []byte, language string) (string, error)
}
