package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"idcapture/internal/audit"
	"idcapture/internal/camera"
	"idcapture/internal/capture"
	"idcapture/internal/identity/metrics"
	"idcapture/internal/identity/models"
	id "idcapture/pkg/domain"
	dErrors "idcapture/pkg/domain-errors"
	"idcapture/pkg/platform/circuit"
)

// Camera is the session the controller drives. *camera.Session implements it.
type Camera interface {
	Start(ctx context.Context, purpose camera.Purpose, sink camera.Sink) error
	Stop()
	State() (camera.State, camera.Reason)
	BeginCapture() (*camera.CaptureLease, error)
	OnEvent(fn func(camera.Event)) (unsubscribe func())
}

// Capturer produces a validated artifact from an active session.
type Capturer interface {
	Capture(ctx context.Context, src capture.LeaseSource) (*capture.Artifact, error)
}

// Store is the write facet of the identity session store.
type Store interface {
	Snapshot() models.Session
	SetStep(step models.Step) error
	PutArtifact(a *models.Artifact) error
	SetConsent(granted bool)
	SetLoading(loading bool)
	SetError(key string)
	ClearError()
	Reset() models.Session
}

// ManifestSigner signs the digest manifest of an assembled submission.
type ManifestSigner interface {
	Sign(flowID string, digests map[string]string, consent bool) (string, error)
}

// Message keys for flow errors that do not come from the camera.
const (
	KeyConsentRequired = "identity.flow.error.missing_consent"
	KeyCaptureRequired = "identity.flow.error.capture_required"
	KeyStepFailed      = "identity.flow.error.step_failed"
)

const defaultSuccessDelay = 3 * time.Second

type Option func(*Controller)

// WithAuditor publishes flow events.
func WithAuditor(a *audit.Publisher) Option {
	return func(c *Controller) {
		c.auditor = a
	}
}

// WithMetrics sets the metrics instance for the controller.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithStepHook registers h after the built-in camera hook. Hooks enter in
// registration order and exit in reverse.
func WithStepHook(h StepHook) Option {
	return func(c *Controller) {
		if h != nil {
			c.userHooks = append(c.userHooks, h)
		}
	}
}

// WithReacquireAfter restarts the camera after n consecutive failed captures
// on one step. Zero disables forced re-acquisition.
func WithReacquireAfter(n int) Option {
	return func(c *Controller) {
		c.breaker = circuit.New("capture_reacquire", n)
	}
}

// WithSuccessDelay sets how long the success step is shown before the flow
// returns to onboarding. Zero or negative disables the auto-return.
func WithSuccessDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.successDelay = d
	}
}

// WithSigner signs submissions. Without a signer the manifest token is empty.
func WithSigner(s ManifestSigner) Option {
	return func(c *Controller) {
		c.signer = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller sequences the flow steps and is the only writer of the store.
//
// Operations are serialized. Camera acquisition runs outside the lock so a
// user can navigate away while the device is still starting; results of an
// acquisition that was overtaken by a later transition are discarded.
type Controller struct {
	store    Store
	camera   Camera
	sink     camera.Sink
	capturer Capturer
	signer   ManifestSigner
	auditor  *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	breaker  *circuit.Breaker
	now      func() time.Time

	successDelay time.Duration
	userHooks    []StepHook
	hooks        []StepHook
	autoReturner *autoReturnHook
	unsubscribe  func()

	mu     sync.Mutex
	closed bool
	// capturing is set for the whole of a Capture call, lock wait included.
	capturing atomic.Bool
	// epoch advances on every step transition and reset.
	epoch atomic.Uint64
}

// New wires a controller to its collaborators. The store must hold a fresh
// session; the camera must not be shared with another controller.
func New(store Store, cam Camera, sink camera.Sink, capturer Capturer, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:        store,
		camera:       cam,
		sink:         sink,
		capturer:     capturer,
		logger:       logger,
		breaker:      circuit.New("capture_reacquire", 0),
		now:          time.Now,
		successDelay: defaultSuccessDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.autoReturner = &autoReturnHook{c: c}
	c.hooks = append(c.hooks, cameraHook{c: c})
	c.hooks = append(c.hooks, c.userHooks...)
	c.hooks = append(c.hooks, c.autoReturner)
	c.unsubscribe = cam.OnEvent(c.onCameraEvent)
	return c
}

// Snapshot returns the current session.
func (c *Controller) Snapshot() models.Session {
	return c.store.Snapshot()
}

// CameraState reports the camera session state for presentation.
func (c *Controller) CameraState() (camera.State, camera.Reason) {
	return c.camera.State()
}

// RecordConsent stores the biometric consent decision on the onboarding step.
func (c *Controller) RecordConsent(ctx context.Context, granted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, err := c.openLocked()
	if err != nil {
		return err
	}
	if snap.CurrentStep != models.StepOnboarding {
		return dErrors.New(dErrors.CodeInvalidState, "consent is recorded on the onboarding step")
	}
	c.store.SetConsent(granted)
	if granted {
		c.store.ClearError()
	}

	decision := models.AuditDecisionDeclined
	if granted {
		decision = models.AuditDecisionGranted
	}
	c.emitAudit(ctx, snap, audit.Event{
		Action:   models.AuditActionConsentRecorded,
		Decision: decision,
		Reason:   models.AuditReasonUserInitiated,
	})
	c.logger.InfoContext(ctx, "identity: consent recorded",
		"flow_id", snap.FlowID.String(),
		"granted", granted,
	)
	return nil
}

// Advance moves to the next step. Onboarding requires consent; a capture step
// requires its artifact. Success has no next step.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	snap, err := c.openLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	step := snap.CurrentStep
	switch {
	case step == models.StepOnboarding && !snap.BiometricConsent:
		c.store.SetError(KeyConsentRequired)
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeMissingConsent, "biometric consent is required to continue")
	case step.IsCapture():
		purpose, _ := step.Purpose()
		if _, ok := snap.Artifact(purpose); !ok {
			c.store.SetError(KeyCaptureRequired)
			c.mu.Unlock()
			return dErrors.New(dErrors.CodeInvalidState, "capture required before continuing")
		}
	}
	next, ok := step.Next()
	if !ok {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidState, "flow is already complete")
	}
	epoch := c.transitionLocked(ctx, snap, next, models.AuditReasonUserInitiated)
	c.mu.Unlock()
	return c.enter(ctx, next, epoch)
}

// Capture grabs a frame for the current step. An accepted artifact is stored
// and the flow advances; a rejected one leaves the step and the camera as they
// were and records the error. When the artifact is stored but the next step's
// camera fails to start, both are returned.
//
// A Capture issued while another is in flight is rejected with a conflict
// without waiting; it never runs against the step the first one advances to.
func (c *Controller) Capture(ctx context.Context) (*models.Artifact, error) {
	if !c.capturing.CompareAndSwap(false, true) {
		c.logger.WarnContext(ctx, "identity: capture rejected, another capture in flight")
		return nil, captureError(camera.NewError(camera.ReasonAlreadyCapturing, nil))
	}
	defer c.capturing.Store(false)

	c.mu.Lock()
	snap, err := c.openLocked()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	step := snap.CurrentStep
	purpose, ok := step.Purpose()
	if !ok {
		c.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeInvalidState, "no capture on step "+step.String())
	}

	result, err := c.capturer.Capture(ctx, c.camera)
	if err != nil {
		reacquire := c.captureFailedLocked(ctx, snap, purpose, err)
		epoch := c.epoch.Load()
		c.mu.Unlock()
		if reacquire {
			if rerr := c.startCamera(ctx, purpose); rerr != nil {
				c.recordFailure(epoch, rerr)
			}
		}
		return nil, captureError(err)
	}

	artifact, err := models.NewArtifact(id.NewArtifactID(), result.Purpose, result.ImageData, result.MIMEType,
		result.Width, result.Height, result.Digest, result.CapturedAt)
	if err != nil {
		c.mu.Unlock()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build artifact")
	}
	if err := c.store.PutArtifact(artifact); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.breaker.RecordSuccess()
	if c.metrics != nil {
		c.metrics.IncrementCaptureAccepted(purpose.String())
	}
	c.emitAudit(ctx, snap, audit.Event{
		Action:   models.AuditActionCaptureAccepted,
		Purpose:  purpose.String(),
		Decision: models.AuditDecisionAccepted,
		Digest:   artifact.Digest,
	})

	next, _ := step.Next()
	epoch := c.transitionLocked(ctx, c.store.Snapshot(), next, models.AuditReasonUserInitiated)
	c.mu.Unlock()
	return artifact, c.enter(ctx, next, epoch)
}

// captureFailedLocked records a failed capture and reports whether the failure
// streak calls for a forced re-acquisition, in which case the camera has
// already been stopped.
func (c *Controller) captureFailedLocked(ctx context.Context, snap models.Session, purpose camera.Purpose, err error) bool {
	reason := camera.ReasonOf(err)
	c.store.SetError(reason.MessageKey())
	if c.metrics != nil {
		c.metrics.IncrementCaptureFailed(purpose.String(), string(reason))
	}
	c.emitAudit(ctx, snap, audit.Event{
		Action:   models.AuditActionCaptureFailed,
		Purpose:  purpose.String(),
		Decision: models.AuditDecisionRejected,
		Reason:   string(reason),
	})
	c.logger.WarnContext(ctx, "identity: capture failed",
		"flow_id", snap.FlowID.String(),
		"step", snap.CurrentStep.String(),
		"reason", string(reason),
		"error", err,
	)

	switch reason {
	case camera.ReasonQualityRejected, camera.ReasonEncodeFailed, camera.ReasonFrameUnavailable:
	default:
		return false
	}
	if !c.breaker.RecordFailure() {
		return false
	}
	failures := c.breaker.Failures()
	c.breaker.Reset()
	c.camera.Stop()
	if c.metrics != nil {
		c.metrics.IncrementReacquisition(purpose.String())
	}
	c.logger.InfoContext(ctx, "identity: re-acquiring camera after failed captures",
		"flow_id", snap.FlowID.String(),
		"purpose", purpose.String(),
		"failures", failures,
	)
	return true
}

// RetryCapture clears the error and restarts the camera for the current step.
func (c *Controller) RetryCapture(ctx context.Context) error {
	c.mu.Lock()
	snap, err := c.openLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	purpose, ok := snap.CurrentStep.Purpose()
	if !ok {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidState, "no camera on step "+snap.CurrentStep.String())
	}
	c.store.ClearError()
	c.breaker.Reset()
	c.camera.Stop()
	epoch := c.epoch.Load()
	c.mu.Unlock()

	if err := c.startCamera(ctx, purpose); err != nil {
		return c.recordFailure(epoch, err)
	}
	return nil
}

// RequestPermission opens and releases the camera once to surface the
// platform permission prompt, then restarts the step's session.
func (c *Controller) RequestPermission(ctx context.Context) error {
	c.mu.Lock()
	snap, err := c.openLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	purpose, ok := snap.CurrentStep.Purpose()
	if !ok {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidState, "no camera on step "+snap.CurrentStep.String())
	}
	c.store.ClearError()
	c.camera.Stop()
	epoch := c.epoch.Load()
	c.mu.Unlock()

	probeErr := c.camera.Start(ctx, purpose, c.sink)
	c.camera.Stop()
	if probeErr != nil && camera.ReasonOf(probeErr) != camera.ReasonSuperseded {
		return c.recordFailure(epoch, wrapCameraError(probeErr))
	}
	c.logger.InfoContext(ctx, "identity: camera permission available",
		"flow_id", snap.FlowID.String(),
		"purpose", purpose.String(),
	)
	if err := c.startCamera(ctx, purpose); err != nil {
		return c.recordFailure(epoch, err)
	}
	return nil
}

// GoBack returns to the previous step, stopping the current step's camera
// first. Artifacts are kept.
func (c *Controller) GoBack(ctx context.Context) error {
	c.mu.Lock()
	snap, err := c.openLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	prev, ok := snap.CurrentStep.Prev()
	if !ok {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidState, "no previous step")
	}
	epoch := c.transitionLocked(ctx, snap, prev, models.AuditReasonBackNavigation)
	c.mu.Unlock()
	return c.enter(ctx, prev, epoch)
}

// GoHome leaves the success step for onboarding without waiting for the
// auto-return.
func (c *Controller) GoHome(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, err := c.openLocked()
	if err != nil {
		return err
	}
	if snap.CurrentStep != models.StepSuccess {
		return dErrors.New(dErrors.CodeInvalidState, "go home is only available on the success step")
	}
	c.resetLocked(ctx, snap, models.AuditReasonUserInitiated)
	return nil
}

// Reset stops the camera and restores the empty session. Resetting an empty
// session leaves it unchanged.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, err := c.openLocked()
	if err != nil {
		return err
	}
	c.resetLocked(ctx, snap, models.AuditReasonUserInitiated)
	return nil
}

// AuditTrail returns the recorded events of the current flow, oldest first.
func (c *Controller) AuditTrail(ctx context.Context) ([]audit.Event, error) {
	if c.auditor == nil {
		return []audit.Event{}, nil
	}
	return c.auditor.List(ctx, c.store.Snapshot().FlowID)
}

// Submission assembles the downstream payload. It requires all three
// artifacts and biometric consent; nothing is transmitted.
func (c *Controller) Submission(ctx context.Context) (*models.Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.store.Snapshot()
	if !snap.BiometricConsent {
		return nil, dErrors.New(dErrors.CodeMissingConsent, "biometric consent is required for submission")
	}
	if !snap.IdentityComplete() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "all captures are required for submission")
	}

	front, _ := snap.Artifact(camera.PurposeDocumentFront)
	back, _ := snap.Artifact(camera.PurposeDocumentBack)
	selfie, _ := snap.Artifact(camera.PurposeSelfie)
	sub := &models.Submission{
		FlowID:           snap.FlowID.String(),
		Front:            front,
		Back:             back,
		Selfie:           selfie,
		BiometricConsent: snap.BiometricConsent,
		AssembledAt:      c.now(),
	}
	if c.signer != nil {
		digests := map[string]string{
			front.Purpose.String():  front.Digest,
			back.Purpose.String():   back.Digest,
			selfie.Purpose.String(): selfie.Digest,
		}
		token, err := c.signer.Sign(sub.FlowID, digests, sub.BiometricConsent)
		if err != nil {
			return nil, err
		}
		sub.ManifestToken = token
	}
	c.emitAudit(ctx, snap, audit.Event{Action: models.AuditActionSubmissionAssembled})
	return sub, nil
}

// Close stops the camera, disarms the auto-return timer and rejects further
// operations.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.epoch.Add(1)
	c.autoReturner.disarm()
	c.camera.Stop()
	c.unsubscribe()
}

func (c *Controller) openLocked() (models.Session, error) {
	if c.closed {
		return models.Session{}, dErrors.New(dErrors.CodeInvalidState, "controller closed")
	}
	return c.store.Snapshot(), nil
}

// transitionLocked runs exit hooks for the current step and moves the store
// to step. The returned epoch identifies this transition for enter.
func (c *Controller) transitionLocked(ctx context.Context, snap models.Session, step models.Step, reason string) uint64 {
	from := snap.CurrentStep
	for i := len(c.hooks) - 1; i >= 0; i-- {
		c.hooks[i].OnExit(ctx, from)
	}
	c.breaker.Reset()
	if err := c.store.SetStep(step); err != nil {
		// steps come from the fixed sequence
		c.logger.ErrorContext(ctx, "identity: invalid step transition", "to", step.String(), "error", err)
	}
	epoch := c.epoch.Add(1)

	if c.metrics != nil {
		c.metrics.IncrementTransition(from.String(), step.String())
		if step == models.StepSuccess {
			c.metrics.IncrementCompleted()
		}
	}
	c.emitAudit(ctx, snap, audit.Event{
		Action: models.AuditActionStepEntered,
		Step:   step.String(),
		Reason: reason,
	})
	c.logger.InfoContext(ctx, "identity: step changed",
		"flow_id", snap.FlowID.String(),
		"from", from.String(),
		"to", step.String(),
		"reason", reason,
	)
	return epoch
}

// enter runs enter hooks for step unless a later transition overtook it.
func (c *Controller) enter(ctx context.Context, step models.Step, epoch uint64) error {
	for _, h := range c.hooks {
		if c.epoch.Load() != epoch {
			return nil
		}
		if err := h.OnEnter(ctx, step); err != nil {
			return c.recordFailure(epoch, err)
		}
	}
	return nil
}

// recordFailure stores the error key of an activation failure, unless the
// step it belonged to has already been left.
func (c *Controller) recordFailure(epoch uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch.Load() != epoch {
		return nil
	}
	c.store.SetError(errorKey(err))
	return err
}

// startCamera starts the session for purpose. A start overtaken by a newer
// one is not an error.
func (c *Controller) startCamera(ctx context.Context, purpose camera.Purpose) error {
	err := c.camera.Start(ctx, purpose, c.sink)
	if err == nil {
		return nil
	}
	reason := camera.ReasonOf(err)
	if reason == camera.ReasonSuperseded {
		return nil
	}
	if reason != camera.ReasonCanceled {
		snap := c.store.Snapshot()
		c.emitAudit(ctx, snap, audit.Event{
			Action:  models.AuditActionCameraFailed,
			Purpose: purpose.String(),
			Reason:  string(reason),
		})
	}
	return wrapCameraError(err)
}

func (c *Controller) resetLocked(ctx context.Context, snap models.Session, reason string) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		c.hooks[i].OnExit(ctx, snap.CurrentStep)
	}
	c.camera.Stop()
	c.breaker.Reset()
	c.epoch.Add(1)
	after := c.store.Reset()
	if after.Version == snap.Version {
		return
	}

	if c.metrics != nil {
		c.metrics.IncrementReset(reason)
	}
	c.emitAudit(ctx, snap, audit.Event{
		Action: models.AuditActionFlowReset,
		Step:   snap.CurrentStep.String(),
		Reason: reason,
	})
	c.logger.InfoContext(ctx, "identity: flow reset",
		"flow_id", snap.FlowID.String(),
		"from", snap.CurrentStep.String(),
		"reason", reason,
	)
}

func (c *Controller) epochSnapshot() uint64 {
	return c.epoch.Load()
}

// autoReturn resets the flow when the success step armed at epoch is still
// showing.
func (c *Controller) autoReturn(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch.Load() != epoch {
		return
	}
	snap := c.store.Snapshot()
	if snap.CurrentStep != models.StepSuccess {
		return
	}
	c.resetLocked(context.Background(), snap, models.AuditReasonAutoReturn)
}

// onCameraEvent mirrors the camera lifecycle into the session. It runs on the
// goroutine that moved the camera and must not take c.mu.
func (c *Controller) onCameraEvent(ev camera.Event) {
	switch ev.State {
	case camera.StateAcquiring, camera.StateCapturing:
		c.store.SetLoading(true)
	case camera.StateFailed:
		c.store.SetLoading(false)
		c.store.SetError(ev.Reason.MessageKey())
		if c.metrics != nil {
			c.metrics.IncrementCameraFailure(string(ev.Reason))
		}
	default:
		c.store.SetLoading(false)
	}
}

func (c *Controller) emitAudit(ctx context.Context, snap models.Session, ev audit.Event) {
	if c.auditor == nil {
		return
	}
	ev.FlowID = snap.FlowID
	if ev.Step == "" {
		ev.Step = snap.CurrentStep.String()
	}
	ev.Timestamp = c.now()
	if err := c.auditor.Emit(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "identity: failed to emit audit event",
			"action", ev.Action,
			"flow_id", ev.FlowID.String(),
			"error", err,
		)
	}
}

func wrapCameraError(err error) error {
	reason := camera.ReasonOf(err)
	return dErrors.Wrap(err, dErrors.CodeCameraUnavailable, reason.Message())
}

func captureError(err error) error {
	reason := camera.ReasonOf(err)
	switch reason {
	case camera.ReasonAlreadyCapturing:
		return dErrors.Wrap(err, dErrors.CodeConflict, reason.Message())
	case camera.ReasonNotActive:
		return dErrors.Wrap(err, dErrors.CodeInvalidState, reason.Message())
	default:
		return dErrors.Wrap(err, dErrors.CodeCaptureFailed, reason.Message())
	}
}

// errorKey picks the message key recorded for err.
func errorKey(err error) string {
	var camErr *camera.Error
	if errors.As(err, &camErr) {
		return camErr.Reason.MessageKey()
	}
	if dErrors.HasCode(err, dErrors.CodeMissingConsent) {
		return KeyConsentRequired
	}
	return KeyStepFailed
}
