package handler

import (
	"slices"
	"time"

	"idcapture/internal/audit"
	"idcapture/internal/camera"
	"idcapture/internal/identity/models"
)

// SessionResponse is the observable flow state. Image bytes are never included.
type SessionResponse struct {
	FlowID           string             `json:"flow_id"`
	Step             string             `json:"step"`
	BiometricConsent bool               `json:"biometric_consent"`
	Loading          bool               `json:"loading"`
	LastError        string             `json:"last_error,omitempty"`
	Version          uint64             `json:"version"`
	Completion       CompletionResponse `json:"completion"`
	Camera           CameraResponse     `json:"camera"`
	Artifacts        []ArtifactResponse `json:"artifacts"`
}

type CompletionResponse struct {
	Front    bool `json:"front"`
	Back     bool `json:"back"`
	Selfie   bool `json:"selfie"`
	Identity bool `json:"identity"`
}

// CameraResponse carries what the presentation layer needs to render the preview.
type CameraResponse struct {
	State          string `json:"state"`
	Reason         string `json:"reason,omitempty"`
	MessageKey     string `json:"message_key,omitempty"`
	InstructionKey string `json:"instruction_key,omitempty"`
	OverlayClass   string `json:"overlay_class,omitempty"`
}

type ArtifactResponse struct {
	ID         string    `json:"id"`
	Purpose    string    `json:"purpose"`
	MIMEType   string    `json:"mime_type"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Bytes      int       `json:"bytes"`
	Digest     string    `json:"digest"`
	CapturedAt time.Time `json:"captured_at"`
}

// CaptureResponse is returned for an accepted capture.
type CaptureResponse struct {
	Artifact ArtifactResponse `json:"artifact"`
	Session  SessionResponse  `json:"session"`
}

// SubmissionResponse describes the assembled payload by digest.
type SubmissionResponse struct {
	FlowID           string             `json:"flow_id"`
	BiometricConsent bool               `json:"biometric_consent"`
	Artifacts        []ArtifactResponse `json:"artifacts"`
	ManifestToken    string             `json:"manifest_token,omitempty"`
	AssembledAt      time.Time          `json:"assembled_at"`
}

func toSessionResponse(s models.Session, state camera.State, reason camera.Reason) SessionResponse {
	res := SessionResponse{
		FlowID:           s.FlowID.String(),
		Step:             s.CurrentStep.String(),
		BiometricConsent: s.BiometricConsent,
		Loading:          s.IsLoading,
		LastError:        s.LastError,
		Version:          s.Version,
		Completion: CompletionResponse{
			Front:    s.FrontComplete(),
			Back:     s.BackComplete(),
			Selfie:   s.SelfieComplete(),
			Identity: s.IdentityComplete(),
		},
		Camera: CameraResponse{
			State:  state.String(),
			Reason: string(reason),
		},
		Artifacts: make([]ArtifactResponse, 0, len(s.Artifacts)),
	}
	if reason != camera.ReasonNone {
		res.Camera.MessageKey = reason.MessageKey()
	}
	if purpose, ok := s.CurrentStep.Purpose(); ok {
		res.Camera.InstructionKey = purpose.InstructionKey()
		res.Camera.OverlayClass = purpose.OverlayClass()
	}
	for _, step := range models.Sequence {
		purpose, ok := step.Purpose()
		if !ok {
			continue
		}
		if a, ok := s.Artifact(purpose); ok {
			res.Artifacts = append(res.Artifacts, toArtifactResponse(a))
		}
	}
	return res
}

func toArtifactResponse(a *models.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:         a.ID.String(),
		Purpose:    a.Purpose.String(),
		MIMEType:   a.MIMEType,
		Width:      a.Width,
		Height:     a.Height,
		Bytes:      len(a.ImageData),
		Digest:     a.Digest,
		CapturedAt: a.CapturedAt,
	}
}

func toSubmissionResponse(sub *models.Submission) SubmissionResponse {
	artifacts := slices.DeleteFunc([]*models.Artifact{sub.Front, sub.Back, sub.Selfie}, func(a *models.Artifact) bool {
		return a == nil
	})
	res := SubmissionResponse{
		FlowID:           sub.FlowID,
		BiometricConsent: sub.BiometricConsent,
		Artifacts:        make([]ArtifactResponse, 0, len(artifacts)),
		ManifestToken:    sub.ManifestToken,
		AssembledAt:      sub.AssembledAt,
	}
	for _, a := range artifacts {
		res.Artifacts = append(res.Artifacts, toArtifactResponse(a))
	}
	return res
}

// AuditTrailResponse lists the recorded events of the current flow.
type AuditTrailResponse struct {
	FlowID string               `json:"flow_id"`
	Events []AuditEventResponse `json:"events"`
}

type AuditEventResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Step      string    `json:"step,omitempty"`
	Purpose   string    `json:"purpose,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Digest    string    `json:"digest,omitempty"`
}

func toAuditTrailResponse(flowID string, events []audit.Event) AuditTrailResponse {
	res := AuditTrailResponse{
		FlowID: flowID,
		Events: make([]AuditEventResponse, 0, len(events)),
	}
	for _, ev := range events {
		res.Events = append(res.Events, AuditEventResponse{
			Timestamp: ev.Timestamp,
			Action:    ev.Action,
			Step:      ev.Step,
			Purpose:   ev.Purpose,
			Decision:  ev.Decision,
			Reason:    ev.Reason,
			Digest:    ev.Digest,
		})
	}
	return res
}
