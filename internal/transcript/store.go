package transcript

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when a session has no stored fragments.
var ErrSessionNotFound = errors.New("transcript: session not found")

// Store persists transcript fragments per recording session.
//
// Implementations must be safe for concurrent use. Fragments are stored in
// the order they are appended; readers get them back ordered by sequence
// number regardless of append order.
type Store interface {
	// Append stores one fragment under sessionID.
	Append(ctx context.Context, sessionID string, f Fragment) error

	// Fragments returns all fragments for sessionID ordered by sequence
	// number. Returns ErrSessionNotFound when the session has none.
	Fragments(ctx context.Context, sessionID string) ([]Fragment, error)

	// Transcript returns the session's text joined in sequence order, with
	// failed fragments omitted. Returns ErrSessionNotFound when the session
	// has no fragments.
	Transcript(ctx context.Context, sessionID string) (string, error)

	// Sessions lists the stored session IDs, most recent first.
	Sessions(ctx context.Context) ([]string, error)
}

// joinFragments assembles fragment text in slice order, skipping failures.
func joinFragments(fragments []Fragment) string {
	var b []byte
	for _, f := range fragments {
		if !f.Failed {
			b = append(b, f.Text...)
		}
	}
	for len(b) > 0 && b[len(b)-1] == ' ' {
		b = b[:len(b)-1]
	}
	return string(b)
}
