// Package recorder implements the live recording and chunked transcription
// pipeline.
//
// Data flow: a capture.Loop appends device frames to an audio.Buffer. The
// Scheduler ticks on a fixed delay, slices the next unprocessed window of the
// buffer (re-including a short overlap against the previous window so word
// boundaries survive chunking), and hands each Chunk to the Dispatcher. The
// Dispatcher runs backend transcription calls on a bounded worker pool and
// reports results through callbacks tagged with the chunk's sequence number.
// The Controller owns the session lifecycle (Idle → Capturing → Draining →
// Idle) and runs one final drain pass over the untranscribed tail when a
// session stops.
//
// Two ordering properties hold: chunks are dispatched in strictly increasing
// sequence order, but result callbacks fire in completion order. Callers that
// want an in-sequence transcript should feed the callbacks into a
// transcript.Assembler rather than relying on callback order.
package recorder
