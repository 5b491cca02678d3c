package models

import (
	"time"

	"idcapture/internal/camera"
	id "idcapture/pkg/domain"
	dErrors "idcapture/pkg/domain-errors"
)

// Step is a position in the fixed capture sequence.
type Step string

const (
	StepOnboarding    Step = "onboarding"
	StepDocumentFront Step = "document_front"
	StepDocumentBack  Step = "document_back"
	StepSelfie        Step = "selfie"
	StepSuccess       Step = "success"
)

// Sequence is the only order in which steps are visited.
var Sequence = []Step{StepOnboarding, StepDocumentFront, StepDocumentBack, StepSelfie, StepSuccess}

var stepPurposes = map[Step]camera.Purpose{
	StepDocumentFront: camera.PurposeDocumentFront,
	StepDocumentBack:  camera.PurposeDocumentBack,
	StepSelfie:        camera.PurposeSelfie,
}

func (s Step) IsValid() bool {
	return s.index() >= 0
}

func (s Step) String() string {
	return string(s)
}

// Purpose returns the capture purpose served on a capture step.
func (s Step) Purpose() (camera.Purpose, bool) {
	p, ok := stepPurposes[s]
	return p, ok
}

func (s Step) IsCapture() bool {
	_, ok := stepPurposes[s]
	return ok
}

// Next returns the following step; Success has none.
func (s Step) Next() (Step, bool) {
	i := s.index()
	if i < 0 || i == len(Sequence)-1 {
		return s, false
	}
	return Sequence[i+1], true
}

// Prev returns the preceding step; Onboarding has none.
func (s Step) Prev() (Step, bool) {
	i := s.index()
	if i <= 0 {
		return s, false
	}
	return Sequence[i-1], true
}

func (s Step) index() int {
	for i, step := range Sequence {
		if step == s {
			return i
		}
	}
	return -1
}

// StepForPurpose maps a capture purpose back to its step.
func StepForPurpose(p camera.Purpose) (Step, bool) {
	for step, purpose := range stepPurposes {
		if purpose == p {
			return step, true
		}
	}
	return "", false
}

// Artifact is an accepted still frame bound to a purpose. Artifacts are never
// mutated; a new capture for the same purpose replaces the stored one.
type Artifact struct {
	ID         id.ArtifactID
	Purpose    camera.Purpose
	ImageData  []byte
	MIMEType   string
	Width      int
	Height     int
	Digest     string
	CapturedAt time.Time
}

// NewArtifact creates an Artifact with invariant checks. ImageData is copied.
func NewArtifact(artifactID id.ArtifactID, purpose camera.Purpose, data []byte, mimeType string, width, height int, digest string, capturedAt time.Time) (*Artifact, error) {
	if artifactID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "artifact ID required")
	}
	if !purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid capture purpose")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "image data required")
	}
	if capturedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "capture time required")
	}
	return &Artifact{
		ID:         artifactID,
		Purpose:    purpose,
		ImageData:  append([]byte(nil), data...),
		MIMEType:   mimeType,
		Width:      width,
		Height:     height,
		Digest:     digest,
		CapturedAt: capturedAt,
	}, nil
}

// Session is the observable state of one identity flow.
type Session struct {
	FlowID           id.FlowID
	CurrentStep      Step
	Artifacts        map[camera.Purpose]*Artifact
	BiometricConsent bool
	IsLoading        bool
	// LastError holds a message key the presentation layer localizes.
	LastError string
	Version   uint64
}

// NewSession returns the empty session every flow starts from.
func NewSession(flowID id.FlowID) Session {
	return Session{
		FlowID:      flowID,
		CurrentStep: StepOnboarding,
		Artifacts:   make(map[camera.Purpose]*Artifact),
	}
}

// Clone returns a copy that shares no maps with s. Artifacts are immutable and
// shared by pointer.
func (s Session) Clone() Session {
	out := s
	out.Artifacts = make(map[camera.Purpose]*Artifact, len(s.Artifacts))
	for k, v := range s.Artifacts {
		out.Artifacts[k] = v
	}
	return out
}

func (s Session) Artifact(p camera.Purpose) (*Artifact, bool) {
	a, ok := s.Artifacts[p]
	return a, ok && a != nil
}

func (s Session) FrontComplete() bool {
	_, ok := s.Artifact(camera.PurposeDocumentFront)
	return ok
}

func (s Session) BackComplete() bool {
	_, ok := s.Artifact(camera.PurposeDocumentBack)
	return ok
}

func (s Session) SelfieComplete() bool {
	_, ok := s.Artifact(camera.PurposeSelfie)
	return ok
}

// IdentityComplete reports that all three artifacts exist. Consent is checked
// separately when the submission is assembled.
func (s Session) IdentityComplete() bool {
	return s.FrontComplete() && s.BackComplete() && s.SelfieComplete()
}
