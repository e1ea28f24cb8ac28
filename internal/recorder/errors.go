package recorder

import (
	"errors"

	"github.com/voiceai/quill/pkg/audio/capture"
)

var (
	// ErrAlreadyActive is returned by Start when a session is already running.
	ErrAlreadyActive = errors.New("recorder: a session is already active")

	// ErrNotActive is returned by Stop when no session is capturing.
	ErrNotActive = errors.New("recorder: no active session")

	// ErrDeviceUnavailable is returned by Start when no compatible audio
	// input line can be opened.
	ErrDeviceUnavailable = capture.ErrDeviceUnavailable
)
