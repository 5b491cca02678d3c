package camera

import (
	"fmt"
	"time"
)

// Purpose names which capture a camera session currently serves.
type Purpose string

const (
	PurposeDocumentFront Purpose = "document_front"
	PurposeDocumentBack  Purpose = "document_back"
	PurposeSelfie        Purpose = "selfie"
)

// ValidPurposes is the single source of truth for supported capture purposes.
var ValidPurposes = map[Purpose]bool{
	PurposeDocumentFront: true,
	PurposeDocumentBack:  true,
	PurposeSelfie:        true,
}

// IsValid checks if the purpose is one of the supported enum values.
func (p Purpose) IsValid() bool {
	return ValidPurposes[p]
}

func (p Purpose) String() string {
	return string(p)
}

// IsSelfie reports whether the purpose needs the user-facing camera.
func (p Purpose) IsSelfie() bool {
	return p == PurposeSelfie
}

// FacingMode returns which physical camera the purpose asks for.
func (p Purpose) FacingMode() FacingMode {
	if p.IsSelfie() {
		return FacingUser
	}
	return FacingEnvironment
}

// InstructionKey is the text key the presentation layer shows over the preview.
func (p Purpose) InstructionKey() string {
	if p.IsSelfie() {
		return "identity.camera.instruction.selfie"
	}
	return "identity.camera.instruction.document"
}

// OverlayClass is the framing overlay the presentation layer draws for the purpose.
func (p Purpose) OverlayClass() string {
	return fmt.Sprintf("camera__overlay--%s", p)
}

// FacingMode selects the front or rear camera.
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// ConstraintProfile is the set of parameters sent to the capture device when
// requesting a stream. A zero AspectRatio or empty PreferredEncoding means the
// constraint is not sent.
type ConstraintProfile struct {
	Name              string
	FacingMode        FacingMode
	IdealWidth        int
	MinWidth          int
	IdealHeight       int
	MinHeight         int
	IdealFrameRate    float64
	MaxFrameRate      float64
	AspectRatio       float64
	PreferredEncoding string
}

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateActive
	StateCapturing
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateActive:
		return "active"
	case StateCapturing:
		return "capturing"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is published on every session state transition.
type Event struct {
	State   State
	Purpose Purpose
	// Profile is the constraint profile name the stream was acquired with, if any.
	Profile string
	// Reason is set only when State is StateFailed.
	Reason Reason
	At     time.Time
}

// PlaybackProperties are applied to the display sink before a stream is
// attached so preview starts inline, silenced and without user interaction.
type PlaybackProperties struct {
	Muted          bool
	InlinePlayback bool
	Autoplay       bool
	Controls       bool
	Preload        string
	// Attributes carries platform specific sink hints (mobile browsers).
	Attributes map[string]string
}

// InlinePlayback returns the properties every sink needs for autonomous preview.
func InlinePlayback() PlaybackProperties {
	return PlaybackProperties{
		Muted:          true,
		InlinePlayback: true,
		Autoplay:       true,
		Controls:       false,
		Preload:        "none",
		Attributes: map[string]string{
			"playsinline": "true",
			"muted":       "true",
		},
	}
}
