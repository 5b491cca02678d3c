// Package capture turns the live frame of an active camera session into a
// validated still-image artifact.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"idcapture/internal/camera"
	"idcapture/internal/camera/metrics"
	"idcapture/internal/platform/tracer"
)

// Artifact is an encoded still frame that passed the quality gate.
type Artifact struct {
	Purpose    camera.Purpose
	ImageData  []byte
	MIMEType   string
	Width      int
	Height     int
	Digest     string // hex SHA-256 of ImageData
	CapturedAt time.Time
}

// LeaseSource hands out exclusive capture leases. *camera.Session implements it.
type LeaseSource interface {
	BeginCapture() (*camera.CaptureLease, error)
}

const outcomeAccepted = "accepted"

// Capturer grabs, encodes, and validates one frame per call.
type Capturer struct {
	encoder   Encoder
	validator *QualityValidator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	now       func() time.Time
}

type Option func(*Capturer)

// WithEncoder replaces the default JPEG encoder.
func WithEncoder(e Encoder) Option {
	return func(c *Capturer) {
		if e != nil {
			c.encoder = e
		}
	}
}

// WithValidator replaces the validator built from DefaultThresholds.
func WithValidator(v *QualityValidator) Option {
	return func(c *Capturer) {
		if v != nil {
			c.validator = v
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Capturer) {
		c.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Capturer) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Capturer) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCapturer(logger *slog.Logger, opts ...Option) *Capturer {
	c := &Capturer{
		encoder:   NewJPEGEncoder(DefaultJPEGQuality),
		validator: NewQualityValidator(DefaultThresholds()),
		logger:    logger,
		tracer:    tracer.NewNoop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Capture holds the session in Capturing for the duration of the call. Every
// failure is a *camera.Error:
//   - already_capturing / not_active: no lease was granted, session untouched
//   - frame_unavailable: the frame could not be read; the session is Failed
//   - encode_failed / quality_rejected: the session is back to Active
func (c *Capturer) Capture(ctx context.Context, src LeaseSource) (*Artifact, error) {
	lease, err := src.BeginCapture()
	if err != nil {
		c.logger.WarnContext(ctx, "capture: refused", "reason", string(camera.ReasonOf(err)))
		return nil, err
	}
	purpose := lease.Purpose()

	ctx, span := c.tracer.Start(ctx, tracer.SpanCameraCapture,
		tracer.String(tracer.AttrPurpose, purpose.String()),
		tracer.String(tracer.AttrProfile, lease.Profile()),
	)
	artifact, err := c.capture(ctx, lease)

	outcome := outcomeAccepted
	if err != nil {
		outcome = string(camera.ReasonOf(err))
		span.SetAttributes(tracer.String(tracer.AttrReason, outcome))
	} else {
		span.SetAttributes(
			tracer.Int64(tracer.AttrBytes, int64(len(artifact.ImageData))),
			tracer.String(tracer.AttrDigest, tracer.ShortDigest(artifact.ImageData)),
		)
	}
	span.SetAttributes(tracer.Bool(tracer.AttrAccepted, err == nil))
	span.End(err)
	if c.metrics != nil {
		c.metrics.IncrementCaptures(purpose.String(), outcome)
	}
	return artifact, err
}

func (c *Capturer) capture(ctx context.Context, lease *camera.CaptureLease) (*Artifact, error) {
	purpose := lease.Purpose()

	img, err := lease.Frame()
	if err != nil {
		lease.Release(err)
		return nil, camera.NewError(camera.ReasonFrameUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		lease.Release(nil)
		return nil, camera.NewError(camera.ReasonCanceled, err)
	}

	payload, err := c.encoder.Encode(img)
	if err != nil {
		lease.Release(nil)
		c.logger.ErrorContext(ctx, "capture: encode failed", "purpose", purpose.String(), "error", err)
		return nil, camera.NewError(camera.ReasonEncodeFailed, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if !c.validator.Validate(purpose, payload) {
		lease.Release(nil)
		c.logger.InfoContext(ctx, "capture: quality gate rejected frame",
			"purpose", purpose.String(),
			"width", width,
			"height", height,
		)
		return nil, &camera.Error{
			Reason:  camera.ReasonQualityRejected,
			Message: fmt.Sprintf("%dx%d frame rejected for %s", width, height, purpose),
		}
	}
	lease.Release(nil)

	sum := sha256.Sum256(payload)
	artifact := &Artifact{
		Purpose:    purpose,
		ImageData:  payload,
		MIMEType:   c.encoder.MIMEType(),
		Width:      width,
		Height:     height,
		Digest:     hex.EncodeToString(sum[:]),
		CapturedAt: c.now(),
	}
	c.logger.InfoContext(ctx, "capture: frame accepted",
		"purpose", purpose.String(),
		"width", width,
		"height", height,
		"bytes", len(payload),
		"digest", tracer.ShortDigest(payload),
	)
	return artifact, nil
}
