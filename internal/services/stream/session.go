// Package stream owns the connection to one source and drives the periodic
// frame pull. A Session must only be used from the station loop.
package stream

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"platestation/internal/logger"
	"platestation/internal/models"
	"platestation/internal/services/capture"
	"platestation/internal/services/loop"
)

// State is the lifecycle position of a session.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots serialise the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	State     State                `json:"state"`
	ID        string               `json:"id,omitempty"`
	Source    *models.CameraSource `json:"source,omitempty"`
	StartedAt time.Time            `json:"started_at,omitempty"`
	Frames    uint64               `json:"frames"`
}

// Listener receives session events. All calls happen on the loop.
type Listener interface {
	// OnFrame hands over a freshly read frame; the listener must close it.
	OnFrame(frame models.Frame)
	// OnStreamLost fires exactly once per session that stops yielding frames.
	OnStreamLost(source models.CameraSource, err error)
	// OnStateChange fires after every transition.
	OnStateChange(snapshot Snapshot)
}

// Options tune the pull loop.
type Options struct {
	// Interval between the end of one pull and the start of the next.
	Interval time.Duration
	// ReadRetries is how many consecutive failed reads are tolerated. Zero
	// means the first failure ends the session.
	ReadRetries int
}

// cancelToken is shared with the pull scheduled for one run. Stopping flips it
// and the next tick returns without rescheduling.
type cancelToken struct {
	cancelled bool
}

// Session is a single-reader stream over one source.
type Session struct {
	opener    capture.Opener
	scheduler loop.Scheduler
	listener  Listener
	logger    *logger.Logger
	opts      Options

	state     State
	handle    capture.Handle
	source    models.CameraSource
	id        string
	startedAt time.Time
	frames    uint64
	failures  int

	token *cancelToken
	timer loop.Timer
}

// NewSession creates an idle session.
func NewSession(opener capture.Opener, scheduler loop.Scheduler, listener Listener, logger *logger.Logger, opts Options) *Session {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Millisecond
	}
	if opts.ReadRetries < 0 {
		opts.ReadRetries = 0
	}
	return &Session{
		opener:    opener,
		scheduler: scheduler,
		listener:  listener,
		logger:    logger,
		opts:      opts,
		state:     Idle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Snapshot returns a copy of the session's observable fields.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{State: s.state, ID: s.id, StartedAt: s.startedAt, Frames: s.frames}
	if s.handle != nil || s.state == Error {
		source := s.source
		snap.Source = &source
	}
	return snap
}

// Open connects to source and starts pulling. A session that is already running
// rejects the call with ErrSessionBusy; the caller stops it first. On failure the
// session stays idle and nothing is scheduled.
func (s *Session) Open(source models.CameraSource) error {
	if s.state == Running || s.state == Stopping {
		return ErrSessionBusy
	}
	if s.state == Error {
		s.setState(Idle)
	}

	handle, err := capture.Open(s.opener, source)
	if err != nil {
		return &ConnectionError{Source: source, Err: err}
	}
	if handle == nil {
		return &ConnectionError{Source: source}
	}
	if !handle.IsOpened() {
		handle.Close()
		return &ConnectionError{Source: source, Err: errors.New("source did not open")}
	}

	s.handle = handle
	s.source = source
	s.id = uuid.NewString()
	s.startedAt = time.Now()
	s.frames = 0
	s.failures = 0
	s.token = &cancelToken{}

	s.logger.Info("Session %s opened on %s", s.id, source)
	s.setState(Running)
	s.schedule(s.token, 0)
	return nil
}

// Stop releases the handle and returns to Idle. It is safe in any state and
// releases the handle at most once.
func (s *Session) Stop() {
	s.cancel()

	if s.handle != nil {
		s.setState(Stopping)
		s.release()
	}
	if s.state != Idle {
		s.setState(Idle)
		s.logger.Info("Session %s stopped", s.id)
	}
}

// CaptureStill reads one extra frame from the open handle. The regular pull
// cadence is not touched.
func (s *Session) CaptureStill() (models.Frame, error) {
	if s.state != Running || s.handle == nil {
		return nil, ErrNotOpen
	}
	frame, ok := s.handle.Read()
	if !ok || frame == nil {
		return nil, ErrNoFrame
	}
	if frame.Empty() {
		frame.Close()
		return nil, ErrNoFrame
	}
	return frame, nil
}

func (s *Session) schedule(token *cancelToken, delay time.Duration) {
	s.timer = s.scheduler.After(delay, func() { s.pull(token) })
}

// pull reads exactly one frame and reschedules itself while the run is live.
func (s *Session) pull(token *cancelToken) {
	if token.cancelled || token != s.token || s.state != Running || s.handle == nil {
		return
	}

	frame, ok := s.handle.Read()
	if ok && frame != nil && frame.Empty() {
		frame.Close()
		ok = false
	}
	if !ok || frame == nil {
		s.failures++
		if s.failures > s.opts.ReadRetries {
			s.lose()
			return
		}
		s.logger.Warning("Session %s: read failed (%d/%d), retrying", s.id, s.failures, s.opts.ReadRetries)
		s.schedule(token, s.opts.Interval)
		return
	}

	s.failures = 0
	s.frames++
	s.listener.OnFrame(frame)

	if !token.cancelled && s.state == Running {
		s.schedule(token, s.opts.Interval)
	}
}

// lose ends a run after a read failure: the handle is released, the session
// moves to Error and the listener hears about it once.
func (s *Session) lose() {
	s.cancel()
	s.release()
	s.logger.Error("Session %s lost connection to %s", s.id, s.source)
	s.setState(Error)
	s.listener.OnStreamLost(s.source, ErrStreamLost)
}

func (s *Session) cancel() {
	if s.token != nil {
		s.token.cancelled = true
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) release() {
	if s.handle == nil {
		return
	}
	if err := s.handle.Close(); err != nil {
		s.logger.Warning("Session %s: releasing handle: %v", s.id, err)
	}
	s.handle = nil
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.listener.OnStateChange(s.Snapshot())
}
