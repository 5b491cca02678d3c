package camera_test

//go:generate mockgen -source=boundary.go -destination=mocks/mocks.go -package=mocks Device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idcapture/internal/camera"
	"idcapture/internal/camera/metrics"
	"idcapture/internal/camera/mocks"
	"idcapture/internal/camera/simulated"
)

var fastPlayback = camera.PlaybackPolicy{Delays: []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}}

type SessionSuite struct {
	suite.Suite
	ctx     context.Context
	device  *simulated.Device
	sink    *simulated.Sink
	metrics *metrics.Metrics
	session *camera.Session

	mu     sync.Mutex
	events []camera.Event
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.device = simulated.NewDevice(1280, 800)
	s.sink = simulated.NewSink()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.session = s.newSession(s.device, camera.StaticEnvironment{Secure: true, DeviceAPI: true})
	s.events = nil
}

func (s *SessionSuite) newSession(device camera.Device, env camera.Environment) *camera.Session {
	session := camera.NewSession(device, env, camera.NewPlanner(simulated.NewProber("video/webm")),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		camera.WithPlaybackPolicy(fastPlayback),
		camera.WithMetrics(s.metrics),
	)
	session.OnEvent(func(ev camera.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, ev)
	})
	return session
}

func (s *SessionSuite) states() []camera.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]camera.State, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.State)
	}
	return out
}

func (s *SessionSuite) requireState(want camera.State, wantReason camera.Reason) {
	state, reason := s.session.State()
	s.Require().Equal(want, state, "state")
	s.Require().Equal(wantReason, reason, "reason")
}

// =============================================================================
// Acquisition
// =============================================================================

func (s *SessionSuite) TestStart_AcquiresPreferredProfile() {
	err := s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink)
	s.Require().NoError(err)

	s.requireState(camera.StateActive, camera.ReasonNone)
	s.Equal([]camera.State{camera.StateAcquiring, camera.StateActive}, s.states())

	profiles := s.device.Profiles()
	s.Require().Len(profiles, 1)
	s.Equal("preferred", profiles[0].Name)
	s.Equal(camera.FacingEnvironment, profiles[0].FacingMode)

	props := s.sink.Properties()
	s.True(props.Muted)
	s.True(props.InlinePlayback)
	s.True(props.Autoplay)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ActiveStreams))
}

// Starting while Active must release the previous stream exactly once so no
// hardware handle leaks.
func (s *SessionSuite) TestStart_WhileActiveReleasesPreviousStreamOnce() {
	s.Require().NoError(s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink))
	s.Require().NoError(s.session.Start(s.ctx, camera.PurposeDocumentBack, s.sink))

	streams := s.device.Streams()
	s.Require().Len(streams, 2)
	s.Equal(1, streams[0].StopCount())
	s.Equal(0, streams[1].StopCount())
	s.requireState(camera.StateActive, camera.ReasonNone)
	s.Equal(camera.PurposeDocumentBack, s.session.Purpose())
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ActiveStreams))
	s.Equal([]camera.State{
		camera.StateAcquiring, camera.StateActive,
		camera.StateStopped, camera.StateAcquiring, camera.StateActive,
	}, s.states())
}

func (s *SessionSuite) TestStart_FallsBackOnceOnConstraintFailure() {
	s.device.FailNext(camera.ErrOverconstrained)

	s.Require().NoError(s.session.Start(s.ctx, camera.PurposeSelfie, s.sink))

	profiles := s.device.Profiles()
	s.Require().Len(profiles, 2)
	s.Equal("preferred", profiles[0].Name)
	s.Equal("fallback", profiles[1].Name)
	s.Empty(profiles[1].PreferredEncoding)
	s.Equal(camera.FacingUser, profiles[1].FacingMode)
	s.requireState(camera.StateActive, camera.ReasonNone)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.FallbackRetries.WithLabelValues(string(camera.ReasonConstraintsUnsatisfiable))))
}

func (s *SessionSuite) TestStart_FailsWhenFallbackAlsoFails() {
	s.device.FailNext(camera.ErrDeviceBusy, camera.ErrDeviceBusy)

	err := s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink)
	s.Require().ErrorIs(err, camera.NewError(camera.ReasonDeviceBusy, nil))
	s.Len(s.device.Profiles(), 2)
	s.requireState(camera.StateFailed, camera.ReasonDeviceBusy)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.AcquisitionFailures.WithLabelValues(string(camera.ReasonDeviceBusy))))
}

func (s *SessionSuite) TestStart_PermissionDeniedIsNotRetried() {
	ctrl := gomock.NewController(s.T())
	device := mocks.NewMockDevice(ctrl)
	device.EXPECT().Open(gomock.Any(), gomock.Any()).Return(nil, errors.New("NotAllowedError: Permission denied")).Times(1)
	s.session = s.newSession(device, camera.StaticEnvironment{Secure: true, DeviceAPI: true})

	err := s.session.Start(s.ctx, camera.PurposeSelfie, s.sink)
	s.Require().Error(err)
	s.Equal(camera.ReasonPermissionDenied, camera.ReasonOf(err))
	s.requireState(camera.StateFailed, camera.ReasonPermissionDenied)
}

func (s *SessionSuite) TestStart_ConfigurationErrorsFailFast() {
	s.Run("insecure context", func() {
		ctrl := gomock.NewController(s.T())
		device := mocks.NewMockDevice(ctrl) // no Open expected
		s.session = s.newSession(device, camera.StaticEnvironment{Secure: false, DeviceAPI: true})

		err := s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink)
		s.Equal(camera.ReasonInsecureContext, camera.ReasonOf(err))
		s.requireState(camera.StateFailed, camera.ReasonInsecureContext)
	})

	s.Run("no device api", func() {
		ctrl := gomock.NewController(s.T())
		device := mocks.NewMockDevice(ctrl)
		s.session = s.newSession(device, camera.StaticEnvironment{Secure: true, DeviceAPI: false})

		err := s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink)
		s.Equal(camera.ReasonUnsupported, camera.ReasonOf(err))
		s.requireState(camera.StateFailed, camera.ReasonUnsupported)
	})
}

func (s *SessionSuite) TestStart_RejectsInvalidInput() {
	s.Error(s.session.Start(s.ctx, camera.Purpose("passport"), s.sink))
	s.Error(s.session.Start(s.ctx, camera.PurposeSelfie, nil))
	s.requireState(camera.StateIdle, camera.ReasonNone)
}

// =============================================================================
// Playback confirmation
// =============================================================================

func (s *SessionSuite) TestStart_ReassertsPlaybackUntilRendering() {
	s.sink.RequirePlays(2)

	s.Require().NoError(s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink))
	s.Equal(2, s.sink.Plays())
	s.requireState(camera.StateActive, camera.ReasonNone)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.PlaybackReasserts))
}

func (s *SessionSuite) TestStart_PlaybackNeverStarts() {
	s.sink.RequirePlays(0)

	err := s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink)
	s.Equal(camera.ReasonPlaybackFailed, camera.ReasonOf(err))
	s.requireState(camera.StateFailed, camera.ReasonPlaybackFailed)

	streams := s.device.Streams()
	s.Require().Len(streams, 1)
	s.Equal(1, streams[0].StopCount())
	s.Equal(1, s.sink.Detaches())
	s.Equal(0.0, promtest.ToFloat64(s.metrics.ActiveStreams))
}

func (s *SessionSuite) TestStart_AttachFailure() {
	s.sink.FailAttach(errors.New("element gone"))

	err := s.session.Start(s.ctx, camera.PurposeSelfie, s.sink)
	s.Equal(camera.ReasonPlaybackFailed, camera.ReasonOf(err))
	s.Equal(1, s.device.Streams()[0].StopCount())
}

func (s *SessionSuite) TestStart_MobileProfileAddsSinkHints() {
	ctx := camera.WithProfile(s.ctx, camera.DeviceProfile{Mobile: true})

	s.Require().NoError(s.session.Start(ctx, camera.PurposeSelfie, s.sink))
	s.Equal("h5", s.sink.Properties().Attributes["x5-video-player-type"])
}

// =============================================================================
// Stop and cancellation
// =============================================================================

func (s *SessionSuite) TestStop_OnIdleIsNoop() {
	s.session.Stop()

	s.requireState(camera.StateIdle, camera.ReasonNone)
	s.Empty(s.states())
}

func (s *SessionSuite) TestStop_IsIdempotent() {
	s.Require().NoError(s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink))

	s.session.Stop()
	s.session.Stop()

	s.requireState(camera.StateStopped, camera.ReasonNone)
	s.Equal(1, s.device.Streams()[0].StopCount())
	s.Equal(1, s.sink.Detaches())
	s.Equal(0.0, promtest.ToFloat64(s.metrics.ActiveStreams))
}

func (s *SessionSuite) TestStop_FromFailed() {
	s.device.FailNext(camera.ErrDeviceNotFound, camera.ErrDeviceNotFound)
	s.Require().Error(s.session.Start(s.ctx, camera.PurposeSelfie, s.sink))

	s.session.Stop()
	s.requireState(camera.StateStopped, camera.ReasonNone)
}

func (s *SessionSuite) TestStart_WhileAcquiringIsRejected() {
	unblock := s.device.BlockOpens()
	defer unblock()

	done := make(chan error, 1)
	go func() { done <- s.session.Start(s.ctx, camera.PurposeSelfie, s.sink) }()

	s.Require().Eventually(func() bool {
		return len(s.device.Profiles()) == 1
	}, time.Second, time.Millisecond)

	err := s.session.Start(s.ctx, camera.PurposeDocumentFront, s.sink)
	s.Equal(camera.ReasonBusy, camera.ReasonOf(err))

	unblock()
	s.Require().NoError(<-done)
	s.requireState(camera.StateActive, camera.ReasonNone)
}

func (s *SessionSuite) TestStop_CancelsPendingPlaybackRetries() {
	s.session = camera.NewSession(s.device, camera.StaticEnvironment{Secure: true, DeviceAPI: true}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		camera.WithPlaybackPolicy(camera.PlaybackPolicy{Delays: []time.Duration{time.Hour}}),
	)
	s.sink.RequirePlays(0)

	done := make(chan error, 1)
	go func() { done <- s.session.Start(s.ctx, camera.PurposeSelfie, s.sink) }()

	s.Require().Eventually(func() bool { return s.sink.Plays() == 1 }, time.Second, time.Millisecond)
	s.session.Stop()

	select {
	case err := <-done:
		s.Equal(camera.ReasonSuperseded, camera.ReasonOf(err))
	case <-time.After(time.Second):
		s.Fail("pending playback retry was not cancelled")
	}
	s.requireState(camera.StateStopped, camera.ReasonNone)
	s.Equal(1, s.device.Streams()[0].StopCount())
}

// A device call that ignores cancellation resolves after Stop; its stream must
// be released and the result discarded.
func (s *SessionSuite) TestStop_DiscardsLateAcquisition() {
	ctrl := gomock.NewController(s.T())
	device := mocks.NewMockDevice(ctrl)
	late := simulated.NewDevice(1280, 800)
	entered := make(chan struct{})
	release := make(chan struct{})
	device.EXPECT().Open(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, profile camera.ConstraintProfile) (camera.Stream, error) {
			close(entered)
			<-release
			return late.Open(context.Background(), profile)
		}).Times(1)
	s.session = s.newSession(device, camera.StaticEnvironment{Secure: true, DeviceAPI: true})

	done := make(chan error, 1)
	go func() { done <- s.session.Start(s.ctx, camera.PurposeDocumentBack, s.sink) }()
	<-entered

	s.session.Stop()
	close(release)

	err := <-done
	s.Equal(camera.ReasonSuperseded, camera.ReasonOf(err))
	s.requireState(camera.StateStopped, camera.ReasonNone)
	s.Require().Len(late.Streams(), 1)
	s.Equal(1, late.Streams()[0].StopCount())
}

func (s *SessionSuite) TestStart_CallerCancellationEndsStopped() {
	unblock := s.device.BlockOpens()
	defer unblock()
	ctx, cancel := context.WithCancel(s.ctx)

	done := make(chan error, 1)
	go func() { done <- s.session.Start(ctx, camera.PurposeSelfie, s.sink) }()
	s.Require().Eventually(func() bool { return len(s.device.Profiles()) == 1 }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	s.Equal(camera.ReasonCanceled, camera.ReasonOf(err))
	s.requireState(camera.StateStopped, camera.ReasonNone)
	s.Len(s.device.Profiles(), 1, "cancelled acquisitions are not retried with the fallback profile")
}

// =============================================================================
// Capture leases
// =============================================================================

func (s *SessionSuite) TestBeginCapture() {
	s.Run("requires an active session", func() {
		_, err := s.session.BeginCapture()
		s.Equal(camera.ReasonNotActive, camera.ReasonOf(err))
	})

	s.Run("is exclusive", func() {
		s.Require().NoError(s.session.Start(s.ctx, camera.PurposeSelfie, s.sink))
		lease, err := s.session.BeginCapture()
		s.Require().NoError(err)
		s.requireState(camera.StateCapturing, camera.ReasonNone)

		_, err = s.session.BeginCapture()
		s.Equal(camera.ReasonAlreadyCapturing, camera.ReasonOf(err))

		img, err := lease.Frame()
		s.Require().NoError(err)
		s.Equal(800, img.Bounds().Dx(), "1280x800 sensor cropped to the square selfie ratio")
		s.Equal(800, img.Bounds().Dy())
		s.Equal(camera.PurposeSelfie, lease.Purpose())
		s.Equal("preferred", lease.Profile())

		lease.Release(nil)
		lease.Release(errors.New("ignored after first release"))
		s.requireState(camera.StateActive, camera.ReasonNone)
	})

	s.Run("hardware failure fails the session", func() {
		lease, err := s.session.BeginCapture()
		s.Require().NoError(err)

		lease.Release(errors.New("sensor fault"))
		s.requireState(camera.StateFailed, camera.ReasonFrameUnavailable)
		streams := s.device.Streams()
		s.Equal(1, streams[len(streams)-1].StopCount())
	})

	s.Run("lease is ignored after stop", func() {
		s.Require().NoError(s.session.Start(s.ctx, camera.PurposeSelfie, s.sink))
		lease, err := s.session.BeginCapture()
		s.Require().NoError(err)

		s.session.Stop()
		lease.Release(nil)
		s.requireState(camera.StateStopped, camera.ReasonNone)
	})
}
