package tracer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"idcapture/internal/platform/tracer"
)

func TestNoopTracer_Start(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanCameraStart, tracer.String(tracer.AttrPurpose, "selfie"))
	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Bool(tracer.AttrAccepted, true))
	span.AddEvent(tracer.EventFallbackRetry)
	span.End(errors.New("boom"))
}

func TestOTelTracer_WithInjectedTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), tracer.SpanCameraCapture,
		tracer.Int64(tracer.AttrWidth, 1280),
		tracer.Float64("ratio", 1.6),
	)
	require.NotNil(t, span)
	span.AddEvent(tracer.EventPlaybackReasserted, tracer.String(tracer.AttrProfile, "fallback"))
	span.End(nil)
}

func TestShortDigest(t *testing.T) {
	assert.Empty(t, tracer.ShortDigest(nil))

	a := tracer.ShortDigest([]byte("frame-a"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, tracer.ShortDigest([]byte("frame-a")))
	assert.NotEqual(t, a, tracer.ShortDigest([]byte("frame-b")))
}
