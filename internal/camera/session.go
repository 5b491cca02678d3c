package camera

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"idcapture/internal/camera/metrics"
	"idcapture/internal/platform/tracer"
)

// Session owns the lifecycle of one hardware stream:
//
//	Idle -> Acquiring -> Active -> Stopped
//	Active -> Capturing -> Active
//	any state but Stopped -> Failed(reason)
//
// Start always releases the previous stream before acquiring a new one, so a
// Session never holds more than one hardware handle. Acquisitions are
// serialized; a result that arrives after Stop or a newer Start is released
// and discarded.
type Session struct {
	device   Device
	env      Environment
	planner  *Planner
	playback PlaybackPolicy
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	now      func() time.Time

	// acquireMu serializes device Open calls.
	acquireMu sync.Mutex

	mu      sync.Mutex
	state   State
	reason  Reason
	purpose Purpose
	profile string
	stream  Stream
	sink    Sink
	active  bool
	// gen invalidates in-flight Start calls and capture leases.
	gen    uint64
	cancel context.CancelFunc

	listeners map[int]func(Event)
	nextID    int
}

type Option func(*Session)

// WithPlaybackPolicy overrides the playback re-assertion schedule.
func WithPlaybackPolicy(policy PlaybackPolicy) Option {
	return func(s *Session) {
		s.playback = policy
	}
}

// WithMetrics sets the metrics instance for the session.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for start and capture spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession creates an Idle session bound to one capture device.
func NewSession(device Device, env Environment, planner *Planner, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		device:    device,
		env:       env,
		planner:   planner,
		playback:  DefaultPlaybackPolicy(),
		logger:    logger,
		tracer:    tracer.NewNoop(),
		now:       time.Now,
		state:     StateIdle,
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.planner == nil {
		s.planner = NewPlanner(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// State returns the current state and, when Failed, its reason.
func (s *Session) State() (State, Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// Purpose returns the purpose of the latest Start.
func (s *Session) Purpose() Purpose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purpose
}

// OnEvent registers fn for every state transition and returns a function that
// removes it. fn runs synchronously after the session lock is released.
func (s *Session) OnEvent(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Start acquires a stream for purpose, attaches it to sink and blocks until the
// sink renders frames or the session fails. Any previously held stream is
// released first. Start is rejected with ReasonBusy while another Start or a
// capture is still in flight.
func (s *Session) Start(ctx context.Context, purpose Purpose, sink Sink) error {
	if !purpose.IsValid() {
		return &Error{Reason: ReasonUnknown, Message: "invalid capture purpose " + string(purpose)}
	}
	if sink == nil {
		return &Error{Reason: ReasonUnknown, Message: "display sink required"}
	}

	s.mu.Lock()
	if s.state == StateAcquiring || s.state == StateCapturing {
		state := s.state
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "camera: start rejected, session busy", "state", state.String())
		return NewError(ReasonBusy, nil)
	}
	var events []Event
	if s.state == StateActive || s.state == StateFailed {
		events = append(events, s.stopLocked())
	}
	s.gen++
	gen := s.gen
	actx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.purpose = purpose
	s.profile = ""
	events = append(events, s.transitionLocked(StateAcquiring, ReasonNone))
	s.mu.Unlock()
	s.emit(events...)
	defer cancel()

	actx, span := s.tracer.Start(actx, tracer.SpanCameraStart, tracer.String(tracer.AttrPurpose, purpose.String()))
	err := s.acquire(actx, gen, purpose, sink, span)
	if err != nil {
		span.SetAttributes(tracer.String(tracer.AttrReason, string(ReasonOf(err))))
	}
	span.End(err)
	return err
}

func (s *Session) acquire(ctx context.Context, gen uint64, purpose Purpose, sink Sink, span tracer.Span) error {
	if !s.env.SecureContext() {
		return s.fail(ctx, gen, NewError(ReasonInsecureContext, nil))
	}
	if !s.env.DeviceAPIAvailable() {
		return s.fail(ctx, gen, NewError(ReasonUnsupported, nil))
	}

	preferred, fallback := s.planner.Plan(purpose)
	started := time.Now()
	stream, profile, err := s.open(ctx, preferred, fallback, span)
	if s.metrics != nil {
		s.metrics.ObserveAcquisitionLatency(time.Since(started).Seconds())
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
		return NewError(ReasonSuperseded, err)
	}
	if err != nil {
		s.mu.Unlock()
		return s.fail(ctx, gen, err)
	}
	s.stream = stream
	s.profile = profile.Name
	span.SetAttributes(tracer.String(tracer.AttrProfile, profile.Name))

	props := InlinePlayback()
	if device, ok := ProfileFromContext(ctx); ok {
		props = device.PlaybackProperties()
	}
	if err := sink.Attach(stream, props); err != nil {
		s.mu.Unlock()
		return s.fail(ctx, gen, NewError(ReasonPlaybackFailed, err))
	}
	s.sink = sink
	s.mu.Unlock()

	perr := s.playback.confirm(ctx, sink, func(attempt int) {
		span.AddEvent(tracer.EventPlaybackReasserted, tracer.Int64("attempt", int64(attempt)))
		if s.metrics != nil {
			s.metrics.IncrementPlaybackReasserts()
		}
		s.logger.InfoContext(ctx, "camera: sink still paused, re-asserting playback",
			"purpose", purpose.String(),
			"attempt", attempt,
		)
	})

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return NewError(ReasonSuperseded, perr)
	}
	if perr != nil {
		s.mu.Unlock()
		return s.fail(ctx, gen, Classify(perr))
	}
	s.cancel = nil
	s.active = true
	ev := s.transitionLocked(StateActive, ReasonNone)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncrementActiveStreams()
		s.metrics.IncrementAcquisitions(purpose.String(), profile.Name)
	}
	s.logger.InfoContext(ctx, "camera: session active",
		"purpose", purpose.String(),
		"profile", profile.Name,
		"stream_id", stream.ID(),
	)
	s.emit(ev)
	return nil
}

// open requests the preferred profile and, when the failure allows it, retries
// once with the fallback profile.
func (s *Session) open(ctx context.Context, preferred, fallback ConstraintProfile, span tracer.Span) (Stream, ConstraintProfile, error) {
	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	stream, err := s.device.Open(ctx, preferred)
	if err == nil {
		return stream, preferred, nil
	}
	cerr := Classify(err)
	if !cerr.Reason.allowsFallback() || ctx.Err() != nil {
		return nil, preferred, cerr
	}

	s.logger.WarnContext(ctx, "camera: preferred constraints rejected, retrying with fallback",
		"reason", string(cerr.Reason),
		"error", err,
	)
	span.AddEvent(tracer.EventFallbackRetry, tracer.String(tracer.AttrReason, string(cerr.Reason)))
	if s.metrics != nil {
		s.metrics.IncrementFallbackRetries(string(cerr.Reason))
	}

	stream, err = s.device.Open(ctx, fallback)
	if err != nil {
		return nil, fallback, Classify(err)
	}
	return stream, fallback, nil
}

// fail releases whatever the Start with generation gen acquired and moves the
// session to Failed. Cancellation by the caller's context ends in Stopped.
func (s *Session) fail(ctx context.Context, gen uint64, err error) error {
	cerr := Classify(err)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return NewError(ReasonSuperseded, err)
	}
	s.cancel = nil
	s.releaseLocked()
	var ev Event
	if cerr.Reason == ReasonCanceled {
		ev = s.transitionLocked(StateStopped, ReasonNone)
	} else {
		ev = s.transitionLocked(StateFailed, cerr.Reason)
	}
	s.mu.Unlock()

	if cerr.Reason != ReasonCanceled {
		if s.metrics != nil {
			s.metrics.IncrementFailures(string(cerr.Reason))
		}
		s.logger.ErrorContext(ctx, "camera: session failed",
			"purpose", ev.Purpose.String(),
			"reason", string(cerr.Reason),
			"configuration_error", cerr.Reason.IsConfiguration(),
			"error", err,
		)
	}
	s.emit(ev)
	return cerr
}

// Stop releases the stream, detaches the sink and cancels any pending
// acquisition or playback retry. It is a no-op on an Idle or Stopped session.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	ev := s.stopLocked()
	s.mu.Unlock()

	s.logger.Info("camera: session stopped", "purpose", ev.Purpose.String())
	s.emit(ev)
}

func (s *Session) stopLocked() Event {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.releaseLocked()
	return s.transitionLocked(StateStopped, ReasonNone)
}

func (s *Session) releaseLocked() {
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
	if s.sink != nil {
		s.sink.Detach()
		s.sink = nil
	}
	if s.active {
		s.active = false
		if s.metrics != nil {
			s.metrics.DecrementActiveStreams()
		}
	}
}

func (s *Session) transitionLocked(state State, reason Reason) Event {
	s.state = state
	s.reason = reason
	return Event{
		State:   state,
		Purpose: s.purpose,
		Profile: s.profile,
		Reason:  reason,
		At:      s.now(),
	}
}

func (s *Session) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

// BeginCapture moves an Active session to Capturing and hands out a lease on
// the current frame source. Exactly one lease can exist at a time.
func (s *Session) BeginCapture() (*CaptureLease, error) {
	s.mu.Lock()
	switch s.state {
	case StateActive:
	case StateCapturing:
		s.mu.Unlock()
		return nil, NewError(ReasonAlreadyCapturing, nil)
	default:
		s.mu.Unlock()
		return nil, NewError(ReasonNotActive, nil)
	}
	ev := s.transitionLocked(StateCapturing, ReasonNone)
	lease := &CaptureLease{
		session: s,
		gen:     s.gen,
		purpose: s.purpose,
		profile: s.profile,
		source:  s.sink,
	}
	s.mu.Unlock()
	s.emit(ev)
	return lease, nil
}

// CaptureLease grants access to the frame source for one capture.
type CaptureLease struct {
	session *Session
	gen     uint64
	purpose Purpose
	profile string
	source  FrameSource
	once    sync.Once
}

func (l *CaptureLease) Purpose() Purpose {
	return l.purpose
}

// Profile is the constraint profile name the stream was acquired with.
func (l *CaptureLease) Profile() string {
	return l.profile
}

// Frame renders the current video frame.
func (l *CaptureLease) Frame() (image.Image, error) {
	img, err := l.source.Snapshot()
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrNoFrame
	}
	return img, nil
}

// Release returns the session to Active. A non-nil hardwareErr instead fails
// the session with ReasonFrameUnavailable and releases the stream. Release is
// idempotent and ignored if the session was stopped or restarted meanwhile.
func (l *CaptureLease) Release(hardwareErr error) {
	l.once.Do(func() {
		s := l.session
		s.mu.Lock()
		if s.gen != l.gen || s.state != StateCapturing {
			s.mu.Unlock()
			return
		}
		if hardwareErr == nil {
			ev := s.transitionLocked(StateActive, ReasonNone)
			s.mu.Unlock()
			s.emit(ev)
			return
		}
		s.releaseLocked()
		ev := s.transitionLocked(StateFailed, ReasonFrameUnavailable)
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.IncrementFailures(string(ReasonFrameUnavailable))
		}
		s.logger.Error("camera: frame capture failed",
			"purpose", l.purpose.String(),
			"error", hardwareErr,
		)
		s.emit(ev)
	})
}
