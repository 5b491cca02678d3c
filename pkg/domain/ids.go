// Package domain provides type-safe identifiers so flow and artifact IDs
// cannot be mixed up at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "idcapture/pkg/domain-errors"
)

type (
	FlowID     uuid.UUID
	ArtifactID uuid.UUID
)

func NewFlowID() FlowID         { return FlowID(uuid.New()) }
func NewArtifactID() ArtifactID { return ArtifactID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseFlowID(s string) (FlowID, error) {
	id, err := parseUUID(s, "flow ID")
	return FlowID(id), err
}

func ParseArtifactID(s string) (ArtifactID, error) {
	id, err := parseUUID(s, "artifact ID")
	return ArtifactID(id), err
}

func (id FlowID) String() string     { return uuid.UUID(id).String() }
func (id ArtifactID) String() string { return uuid.UUID(id).String() }

func (id FlowID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ArtifactID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
