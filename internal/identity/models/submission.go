package models

import "time"

// Submission is the payload handed to the downstream verification consumer.
// It is assembled here and never transmitted.
type Submission struct {
	FlowID           string
	Front            *Artifact
	Back             *Artifact
	Selfie           *Artifact
	BiometricConsent bool
	AssembledAt      time.Time
	// ManifestToken is a signed statement of the artifact digests and consent.
	ManifestToken string
}
