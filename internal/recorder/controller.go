package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voiceai/quill/pkg/audio"
	"github.com/voiceai/quill/pkg/audio/capture"
	"github.com/voiceai/quill/pkg/backend"
)

// State is the controller's lifecycle state.
type State int

const (
	// StateIdle means no session is active.
	StateIdle State = iota

	// StateCapturing means a session is recording and scheduling chunks.
	StateCapturing

	// StateDraining means Stop is running its final pass over the buffer tail.
	StateDraining
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of the controller for callers and the API.
type Status struct {
	State           State
	SessionID       string
	StartedAt       time.Time
	ChunksProcessed int
	Duration        time.Duration
}

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithSource selects the audio input source for new sessions. The zero value
// (the default) selects the system default input.
func WithSource(src capture.Source) Option {
	return func(c *Controller) {
		c.source = src
	}
}

// WithDefaultLanguage sets the language hint for new sessions.
func WithDefaultLanguage(lang string) Option {
	return func(c *Controller) {
		c.language = lang
	}
}

// WithTextCallback sets the handler invoked for each transcribed chunk.
// Callbacks fire in completion order tagged with the chunk sequence number.
func WithTextCallback(fn func(seq int, text string)) Option {
	return func(c *Controller) {
		c.onText = fn
	}
}

// WithErrorCallback sets the handler invoked for each failed chunk.
func WithErrorCallback(fn func(seq int, reason string)) Option {
	return func(c *Controller) {
		c.onError = fn
	}
}

// WithDeviceFailureCallback sets the handler invoked when the capture device
// fails mid-session. The session has already ended when it fires.
func WithDeviceFailureCallback(fn func(err error)) Option {
	return func(c *Controller) {
		c.onDeviceFailure = fn
	}
}

// WithStateCallback sets a handler invoked after every lifecycle transition
// with the new state. It fires outside the controller's lock, so it may call
// back into the controller.
func WithStateCallback(fn func(st State)) Option {
	return func(c *Controller) {
		c.onState = fn
	}
}

// WithFrameCallback sets a handler invoked with the byte count of every
// captured frame, forwarded to each session's capture loop.
func WithFrameCallback(fn func(bytes int)) Option {
	return func(c *Controller) {
		c.onFrame = fn
	}
}

// WithSchedulerOptions forwards options to each session's Scheduler.
func WithSchedulerOptions(opts ...SchedulerOption) Option {
	return func(c *Controller) {
		c.schedOpts = append(c.schedOpts, opts...)
	}
}

// WithDispatcherOptions forwards options to each session's Dispatcher.
func WithDispatcherOptions(opts ...DispatcherOption) Option {
	return func(c *Controller) {
		c.dispOpts = append(c.dispOpts, opts...)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// Controller owns the recording session lifecycle: Idle → Capturing →
// Draining → Idle. It wires together the capture loop, the session buffer,
// the chunk scheduler, and the dispatcher, and guarantees at most one active
// session at a time.
type Controller struct {
	opener      capture.Opener
	transcriber backend.Transcriber
	log         *slog.Logger

	onText          func(seq int, text string)
	onError         func(seq int, reason string)
	onDeviceFailure func(err error)
	onState         func(st State)
	onFrame         func(bytes int)

	schedOpts []SchedulerOption
	dispOpts  []DispatcherOption

	mu       sync.Mutex
	state    State
	source   capture.Source
	language string

	// Current (or most recent) session. Retained after stop so duration and
	// chunk counts stay queryable until the next Start replaces them.
	sessionID string
	startedAt time.Time
	buf       *audio.Buffer
	loop      *capture.Loop
	sched     *Scheduler
	disp      *Dispatcher

	// gen invalidates stale capture-loop watchers after ForceStop.
	gen uint64
}

// New creates a controller recording from opener and transcribing through
// transcriber.
func New(opener capture.Opener, transcriber backend.Transcriber, opts ...Option) *Controller {
	c := &Controller{
		opener:      opener,
		transcriber: transcriber,
		log:         slog.Default(),
		onText:      func(int, string) {},
		onError:     func(int, string) {},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins a new recording session. Returns ErrAlreadyActive when a
// session is running (or still draining) and an error wrapping
// ErrDeviceUnavailable when the input device cannot be opened; in both cases
// no state changes.
func (c *Controller) Start() error {
	if err := c.start(); err != nil {
		return err
	}
	c.notifyState(StateCapturing)
	return nil
}

func (c *Controller) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrAlreadyActive
	}

	dev, err := c.opener.Open(c.source)
	if err != nil {
		return err
	}

	c.gen++
	gen := c.gen
	c.sessionID = uuid.NewString()
	c.startedAt = time.Now()
	c.buf = audio.NewBuffer(60)

	dispOpts := append([]DispatcherOption{
		WithLanguage(c.language),
		WithOnText(c.onText),
		WithOnError(c.onError),
		WithDispatcherLogger(c.log),
	}, c.dispOpts...)
	c.disp = NewDispatcher(c.transcriber, dispOpts...)

	schedOpts := append([]SchedulerOption{
		WithSchedulerLogger(c.log),
	}, c.schedOpts...)
	c.sched = NewScheduler(c.buf, c.disp.Dispatch, schedOpts...)

	var loopOpts []capture.LoopOption
	if c.onFrame != nil {
		loopOpts = append(loopOpts, capture.WithFrameCallback(c.onFrame))
	}
	c.loop = capture.NewLoop(dev, c.buf, 0, loopOpts...)
	c.loop.Start()
	c.sched.Start()
	c.state = StateCapturing

	go c.watchLoop(gen, c.loop)

	c.log.Info("recording session started",
		"session", c.sessionID, "source", c.source.DisplayName())
	return nil
}

// watchLoop surfaces a mid-session capture device failure: the session ends
// immediately (no drain — the device is gone) and the failure is reported
// through the device-failure callback.
func (c *Controller) watchLoop(gen uint64, loop *capture.Loop) {
	<-loop.Done()
	err := loop.Err()
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateCapturing {
		c.mu.Unlock()
		return
	}
	c.sched.Stop()
	c.state = StateIdle
	session := c.sessionID
	c.mu.Unlock()

	c.notifyState(StateIdle)
	c.log.Error("capture device failed, session ended", "session", session, "error", err)
	if c.onDeviceFailure != nil {
		c.onDeviceFailure(err)
	}
}

// notifyState reports a completed lifecycle transition. Never called with the
// controller lock held.
func (c *Controller) notifyState(st State) {
	if c.onState != nil {
		c.onState(st)
	}
}

// Stop ends the active session: cancels future scheduling passes, stops the
// capture loop and waits for it to exit, then runs exactly one drain pass
// over the unprocessed tail with a bounded wait. When Stop returns, every
// chunk has been dispatched; the drain chunk's result may still arrive
// asynchronously if the bounded wait elapsed first.
//
// Returns ErrNotActive when no session is capturing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateCapturing {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.state = StateDraining
	sched, loop, disp := c.sched, c.loop, c.disp
	session := c.sessionID
	c.mu.Unlock()

	c.notifyState(StateDraining)
	sched.Stop()
	loop.Stop()
	<-loop.Done()

	if chunk, ok := sched.Drain(); ok {
		if err := disp.DispatchAndWait(context.Background(), chunk); err != nil {
			c.log.Warn("drain chunk result still pending",
				"session", session, "seq", chunk.Seq, "error", err)
		}
	}

	// ForceStop may have ended the session during the drain; only the owner
	// of the Draining state reports the return to Idle.
	c.mu.Lock()
	ended := c.state == StateDraining
	if ended {
		c.state = StateIdle
	}
	c.mu.Unlock()

	if ended {
		c.notifyState(StateIdle)
	}
	c.log.Info("recording session stopped", "session", session)
	return nil
}

// ForceStop ends any active session immediately: no drain pass, the
// unprocessed tail is discarded, in-flight backend calls are abandoned.
// Never fails and always leaves the controller Idle; calling it while Idle
// (including before the first Start) is a no-op.
func (c *Controller) ForceStop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	sched, loop := c.sched, c.loop
	session := c.sessionID
	c.gen++
	c.state = StateIdle
	c.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if loop != nil {
		loop.Stop()
	}
	c.notifyState(StateIdle)
	c.log.Info("recording session force-stopped", "session", session)
}

// SetLanguage updates the language hint for the active session's pending
// chunks and for future sessions.
func (c *Controller) SetLanguage(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = lang
	if c.disp != nil {
		c.disp.SetLanguage(lang)
	}
}

// SetSource selects the input source for future sessions. Changing the
// source while a session is active is rejected with ErrAlreadyActive.
func (c *Controller) SetSource(src capture.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("recorder: cannot change source mid-session: %w", ErrAlreadyActive)
	}
	c.source = src
	return nil
}

// Sources enumerates the input sources currently available.
func (c *Controller) Sources() ([]capture.Source, error) {
	return c.opener.Sources()
}

// ChunksProcessed returns the number of chunks dispatched in the current (or
// most recent) session.
func (c *Controller) ChunksProcessed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sched == nil {
		return 0
	}
	return c.sched.Scheduled()
}

// Duration returns the amount of audio captured in the current (or most
// recent) session.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf == nil {
		return 0
	}
	return c.buf.Duration()
}

// Status returns a point-in-time view of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:     c.state,
		SessionID: c.sessionID,
		StartedAt: c.startedAt,
	}
	if c.sched != nil {
		st.ChunksProcessed = c.sched.Scheduled()
	}
	if c.buf != nil {
		st.Duration = c.buf.Duration()
	}
	return st
}
