// Package tracer provides a lightweight tracing abstraction for camera and
// capture operations.
//
// Implementations:
//   - NoopTracer: for tests (zero overhead)
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// ShortDigest returns the first 8 bytes of the SHA-256 of payload, hex encoded.
// Image payloads are referenced by digest in traces and logs, never inline.
func ShortDigest(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanCameraStart   = "camera.start"
	SpanCameraCapture = "camera.capture"
)

// Attribute keys.
const (
	AttrPurpose  = "capture.purpose"
	AttrProfile  = "camera.profile"
	AttrReason   = "camera.reason"
	AttrWidth    = "image.width"
	AttrHeight   = "image.height"
	AttrBytes    = "image.bytes"
	AttrDigest   = "image.digest"
	AttrAccepted = "capture.accepted"
)

// Event names.
const (
	EventFallbackRetry      = "camera.fallback_retry"
	EventPlaybackReasserted = "camera.playback_reasserted"
)
