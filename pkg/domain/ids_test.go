package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idcapture/pkg/domain-errors"
)

func TestParseFlowID(t *testing.T) {
	id := NewFlowID()

	parsed, err := ParseFlowID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.False(t, parsed.IsNil())

	_, err = ParseFlowID("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ParseArtifactID("not-a-uuid")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	assert.True(t, ArtifactID{}.IsNil())
}
