package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"idcapture/internal/audit"
	"idcapture/internal/camera"
	cameraMetrics "idcapture/internal/camera/metrics"
	"idcapture/internal/camera/simulated"
	"idcapture/internal/capture"
	"idcapture/internal/identity/handler"
	identityMetrics "idcapture/internal/identity/metrics"
	"idcapture/internal/identity/models"
	"idcapture/internal/identity/service"
	"idcapture/internal/identity/store"
	"idcapture/internal/manifest"
	"idcapture/internal/platform/config"
	"idcapture/internal/platform/health"
	"idcapture/internal/platform/logger"
	"idcapture/internal/platform/metrics"
	"idcapture/internal/platform/tracer"
	id "idcapture/pkg/domain"
)

const (
	shutdownTimeout  = 10 * time.Second
	auditBufferSize  = 256
	simulatedMIMEVP8 = "video/webm;codecs=vp8"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Flow logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	log.Info("initializing idcapture",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"secure_context", cfg.SecureContext,
		"sim_camera", []int{cfg.SimCameraWidth, cfg.SimCameraHeight},
	)
	if cfg.UsesDevSigningKey() {
		log.Warn("submission manifests are signed with the development key")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	camMetrics := cameraMetrics.New(reg)
	flowMetrics := identityMetrics.New(reg)
	httpMetrics := metrics.New(reg)
	spans := tracer.NewOTel()

	device := simulated.NewDevice(cfg.SimCameraWidth, cfg.SimCameraHeight)
	sink := simulated.NewSink()
	planner := camera.NewPlanner(simulated.NewProber(simulatedMIMEVP8))
	session := camera.NewSession(device,
		camera.StaticEnvironment{Secure: cfg.SecureContext, DeviceAPI: true},
		planner,
		log,
		camera.WithPlaybackPolicy(camera.PlaybackPolicy{Delays: cfg.PlaybackRetryDelays}),
		camera.WithMetrics(camMetrics),
		camera.WithTracer(spans),
	)

	capturer := capture.NewCapturer(log,
		capture.WithValidator(capture.NewQualityValidator(capture.Thresholds{
			MinWidth:       cfg.QualityMinWidth,
			MinHeight:      cfg.QualityMinHeight,
			RatioTolerance: cfg.QualityRatioTolerance,
		})),
		capture.WithEncoder(capture.NewJPEGEncoder(cfg.JPEGQuality)),
		capture.WithMetrics(camMetrics),
		capture.WithTracer(spans),
	)

	sessions := store.New(id.NewFlowID())
	unsubscribe := sessions.Subscribe(func(s models.Session) {
		log.Debug("identity: session changed",
			"flow_id", s.FlowID.String(),
			"step", s.CurrentStep.String(),
			"loading", s.IsLoading,
			"last_error", s.LastError,
			"version", s.Version,
		)
	})
	defer unsubscribe()

	auditor := audit.NewPublisher(audit.NewInMemoryStore(),
		audit.WithBuffer(auditBufferSize),
		audit.WithLogger(log),
	)
	defer auditor.Close()

	controller := service.New(sessions, session, sink, capturer, log,
		service.WithAuditor(auditor),
		service.WithMetrics(flowMetrics),
		service.WithSigner(manifest.NewService(cfg.SubmissionSigningKey, cfg.ManifestTTL)),
		service.WithReacquireAfter(cfg.ReacquireAfter),
		service.WithSuccessDelay(cfg.SuccessReturnDelay),
	)
	defer controller.Close()

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("camera", func(context.Context) error {
		state, reason := controller.CameraState()
		if state == camera.StateFailed && reason.IsConfiguration() {
			return errors.New(reason.Message())
		}
		return nil
	})

	router := newRouter(log, reg, httpMetrics, healthHandler, handler.New(controller, log))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
