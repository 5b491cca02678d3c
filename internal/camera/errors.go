package camera

import (
	"context"
	"errors"
	"strings"
)

// Reason classifies why a session failed or a capture was refused.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonPermissionDenied         Reason = "permission_denied"
	ReasonDeviceNotFound           Reason = "device_not_found"
	ReasonDeviceBusy               Reason = "device_busy"
	ReasonConstraintsUnsatisfiable Reason = "constraints_unsatisfiable"
	ReasonInsecureContext          Reason = "insecure_context"
	ReasonUnsupported              Reason = "unsupported"
	ReasonPlaybackFailed           Reason = "playback_failed"
	ReasonUnknown                  Reason = "unknown"

	// Capture reasons never move the session to Failed, except
	// ReasonFrameUnavailable which signals a hardware failure.
	ReasonAlreadyCapturing Reason = "already_capturing"
	ReasonNotActive        Reason = "not_active"
	ReasonQualityRejected  Reason = "quality_rejected"
	ReasonEncodeFailed     Reason = "encode_failed"
	ReasonFrameUnavailable Reason = "frame_unavailable"

	// Session control.
	ReasonBusy       Reason = "busy"
	ReasonSuperseded Reason = "superseded"
	ReasonCanceled   Reason = "canceled"
)

var defaultMessages = map[Reason]string{
	ReasonPermissionDenied:         "Camera permission denied. Allow camera access in your browser settings.",
	ReasonDeviceNotFound:           "No camera was found on this device.",
	ReasonDeviceBusy:               "The camera is being used by another application.",
	ReasonConstraintsUnsatisfiable: "The camera does not meet the required settings.",
	ReasonInsecureContext:          "The camera requires HTTPS or localhost.",
	ReasonUnsupported:              "Camera capture is not supported in this browser.",
	ReasonPlaybackFailed:           "The camera preview could not be started.",
	ReasonUnknown:                  "The camera could not be accessed.",
	ReasonAlreadyCapturing:         "A capture is already in progress.",
	ReasonNotActive:                "The camera is not ready.",
	ReasonQualityRejected:          "The image does not meet the quality requirements.",
	ReasonEncodeFailed:             "The image could not be processed.",
	ReasonFrameUnavailable:         "The image could not be captured.",
	ReasonBusy:                     "The camera is still starting.",
	ReasonSuperseded:               "The camera request was replaced by a newer one.",
	ReasonCanceled:                 "The camera request was cancelled.",
}

// MessageKey is the stable text key a presentation layer localizes.
func (r Reason) MessageKey() string {
	if r == ReasonNone {
		return ""
	}
	return "identity.camera.error." + string(r)
}

// Message is the English fallback for MessageKey.
func (r Reason) Message() string {
	if msg, ok := defaultMessages[r]; ok {
		return msg
	}
	return defaultMessages[ReasonUnknown]
}

// IsConfiguration reports errors no retry can fix without changing the runtime.
func (r Reason) IsConfiguration() bool {
	return r == ReasonInsecureContext || r == ReasonUnsupported
}

// allowsFallback reports whether a failed preferred acquisition should be
// retried once with the fallback profile. Permission errors need new consent
// from the user, so retrying would only fail again.
func (r Reason) allowsFallback() bool {
	switch r {
	case ReasonPermissionDenied, ReasonInsecureContext, ReasonUnsupported, ReasonCanceled, ReasonSuperseded:
		return false
	default:
		return true
	}
}

// Error is the classified failure value returned by Session and the capturer.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Reason.Message()
	}
	if e.Err != nil {
		return "camera: " + string(e.Reason) + ": " + msg + ": " + e.Err.Error()
	}
	return "camera: " + string(e.Reason) + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// NewError builds a classified error.
func NewError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// ReasonOf extracts the reason from err, or ReasonUnknown.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonUnknown
}

// Classify maps a boundary error to a Reason.
//
// Sentinels are matched first. Platform errors that only carry a name or a
// message (e.g. "NotAllowedError") fall back to keyword heuristics, most
// specific category first.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewError(ReasonCanceled, err)
	case errors.Is(err, ErrPermissionDenied):
		return NewError(ReasonPermissionDenied, err)
	case errors.Is(err, ErrDeviceNotFound):
		return NewError(ReasonDeviceNotFound, err)
	case errors.Is(err, ErrDeviceBusy):
		return NewError(ReasonDeviceBusy, err)
	case errors.Is(err, ErrOverconstrained):
		return NewError(ReasonConstraintsUnsatisfiable, err)
	case errors.Is(err, ErrPlaybackRejected):
		return NewError(ReasonPlaybackFailed, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, permissionKeywords):
		return NewError(ReasonPermissionDenied, err)
	case containsAny(msg, insecureKeywords):
		return NewError(ReasonInsecureContext, err)
	case containsAny(msg, constraintKeywords):
		return NewError(ReasonConstraintsUnsatisfiable, err)
	case containsAny(msg, busyKeywords):
		return NewError(ReasonDeviceBusy, err)
	case containsAny(msg, notFoundKeywords):
		return NewError(ReasonDeviceNotFound, err)
	}
	return NewError(ReasonUnknown, err)
}

var (
	permissionKeywords = []string{"notallowed", "permission", "denied", "securityerror"}
	insecureKeywords   = []string{"https", "secure context", "insecure"}
	constraintKeywords = []string{"overconstrained", "constraint"}
	busyKeywords       = []string{"notreadable", "in use", "busy", "could not start video source"}
	notFoundKeywords   = []string{"notfound", "no camera", "requested device not found", "devicesnotfound"}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
