package recorder

// Chunk is an immutable slice of captured PCM audio dispatched for
// transcription. Start and End are byte offsets into the session buffer;
// PCM holds a copy of buffer[Start:End].
type Chunk struct {
	// Seq is the chunk's sequence number, monotonically increasing from 0
	// within a session in dispatch order.
	Seq int

	// Start is the inclusive buffer offset where the chunk begins. Because of
	// overlap it may lie before the previous chunk's End.
	Start int

	// End is the exclusive buffer offset where the chunk ends.
	End int

	// PCM is the chunk's audio at the fixed capture format.
	PCM []byte
}
