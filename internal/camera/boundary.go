package camera

import (
	"context"
	"errors"
	"image"
)

// Device is the capture device API: it turns a constraint profile into a live
// stream or a failure. Implementations should honour ctx cancellation when the
// platform allows it; Session discards late results either way.
type Device interface {
	Open(ctx context.Context, profile ConstraintProfile) (Stream, error)
}

// Stream is a live hardware stream handle.
type Stream interface {
	ID() string
	// Stop stops every track of the stream and releases the hardware.
	Stop()
}

// FrameSource renders the frame currently shown by a sink into a raster sized
// to the video's native dimensions.
type FrameSource interface {
	Snapshot() (image.Image, error)
}

// Sink renders a stream for preview and reports whether frames are flowing.
type Sink interface {
	FrameSource
	// Attach clears any previous source, applies props and binds stream.
	Attach(stream Stream, props PlaybackProperties) error
	Detach()
	// Play asks the sink to start rendering. A nil error does not imply
	// Playing() is already true.
	Play(ctx context.Context) error
	Playing() bool
}

// Environment describes the execution context the camera runs in.
type Environment interface {
	// SecureContext reports whether the runtime is a trusted origin.
	SecureContext() bool
	// DeviceAPIAvailable reports whether any capture device API exists.
	DeviceAPIAvailable() bool
}

// EncodingProber reports whether the platform can record a given MIME type.
type EncodingProber interface {
	Supports(mimeType string) bool
}

// StaticEnvironment is an Environment with fixed answers.
type StaticEnvironment struct {
	Secure    bool
	DeviceAPI bool
}

func (e StaticEnvironment) SecureContext() bool      { return e.Secure }
func (e StaticEnvironment) DeviceAPIAvailable() bool { return e.DeviceAPI }

// Sentinel boundary errors. Device and Sink implementations return these
// (optionally wrapped) so Classify maps them without message heuristics.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceNotFound   = errors.New("no camera found")
	ErrDeviceBusy       = errors.New("camera in use by another application")
	ErrOverconstrained  = errors.New("camera cannot satisfy constraints")
	ErrPlaybackRejected = errors.New("sink refused playback")
	ErrNoFrame          = errors.New("no frame available")
)
