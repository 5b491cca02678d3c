package manifest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idcapture/pkg/domain-errors"
)

var digests = map[string]string{
	"document_front": "aa",
	"document_back":  "bb",
	"selfie":         "cc",
}

func Test_SignAndVerify(t *testing.T) {
	svc := NewService("test-signing-key", time.Hour)

	token, err := svc.Sign("flow-1", digests, true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "flow-1", claims.Subject)
	assert.Equal(t, digests, claims.Digests)
	assert.True(t, claims.BiometricConsent)
	assert.Equal(t, defaultIssuer, claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_Sign_RejectsIncompleteInput(t *testing.T) {
	svc := NewService("test-signing-key", 0)

	_, err := svc.Sign("", digests, true)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = svc.Sign("flow-1", nil, true)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = NewService("", 0).Sign("flow-1", digests, true)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func Test_Verify_WrongKey(t *testing.T) {
	token, err := NewService("key-a", 0).Sign("flow-1", digests, false)
	require.NoError(t, err)

	_, err = NewService("key-b", 0).Verify(token)
	require.ErrorContains(t, err, "invalid manifest")
}

func Test_Verify_Expired(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	signer := NewService("test-signing-key", time.Hour, WithClock(func() time.Time { return issued }))
	token, err := signer.Sign("flow-1", digests, true)
	require.NoError(t, err)

	_, err = NewService("test-signing-key", time.Hour).Verify(token)
	require.ErrorContains(t, err, "manifest expired")
}

func Test_Verify_WrongIssuer(t *testing.T) {
	token, err := NewService("test-signing-key", 0, WithIssuer("someone-else")).Sign("flow-1", digests, true)
	require.NoError(t, err)

	_, err = NewService("test-signing-key", 0).Verify(token)
	require.ErrorContains(t, err, "invalid manifest")
}

func Test_Verify_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Digests: digests})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewService("test-signing-key", 0).Verify(unsigned)
	require.Error(t, err)
}
