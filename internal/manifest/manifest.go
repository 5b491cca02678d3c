// Package manifest signs the statement that accompanies an assembled
// submission: which artifact digests belong to which purpose, and whether
// biometric consent was given.
package manifest

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "idcapture/pkg/domain-errors"
)

const defaultIssuer = "idcapture"

// Claims are the JWT claims of a manifest token. Subject is the flow ID.
type Claims struct {
	Digests          map[string]string `json:"digests"`
	BiometricConsent bool              `json:"biometric_consent"`
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 manifest tokens.
type Service struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	now        func() time.Time
}

type Option func(*Service)

func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a signer. A zero tokenTTL issues tokens without expiry.
func NewService(signingKey string, tokenTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     defaultIssuer,
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign issues a token over digests, keyed by capture purpose.
func (s *Service) Sign(flowID string, digests map[string]string, consent bool) (string, error) {
	if flowID == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "flow ID required")
	}
	if len(digests) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "digests cannot be empty")
	}
	if len(s.signingKey) == 0 {
		return "", dErrors.New(dErrors.CodeInternal, "manifest signing key not configured")
	}

	now := s.now()
	registered := jwt.RegisteredClaims{
		Subject:  flowID,
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   s.issuer,
		ID:       uuid.NewString(),
	}
	if s.tokenTTL > 0 {
		registered.ExpiresAt = jwt.NewNumericDate(now.Add(s.tokenTTL))
	}

	copied := make(map[string]string, len(digests))
	for k, v := range digests {
		copied[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Digests:          copied,
		BiometricConsent: consent,
		RegisteredClaims: registered,
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign manifest")
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "empty manifest token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "manifest expired")
		}
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid manifest")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid manifest claims")
	}
	return claims, nil
}
