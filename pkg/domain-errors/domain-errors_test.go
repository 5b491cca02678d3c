package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite covers the error primitives every flow boundary relies on:
// wrapped domain errors keep their code, and errors.Is matches by code.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeMissingConsent, Message: "biometric consent required"}
		s.Equal("biometric consent required", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeInvalidState}
		s.Equal("invalid_state", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err1 := &Error{Code: CodeCaptureFailed, Message: "quality rejected"}
		err2 := &Error{Code: CodeCaptureFailed, Message: "encode failed"}
		s.True(errors.Is(err1, err2))
	})

	s.Run("does not match different codes", func() {
		s.False(errors.Is(&Error{Code: CodeNotFound}, &Error{Code: CodeInternal}))
	})

	s.Run("does not match non-domain errors", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not_found")))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves original domain code when wrapping domain error", func() {
		original := New(CodeMissingConsent, "consent required")
		wrapped := Wrap(original, CodeInternal, "advance failed")

		var domainErr *Error
		s.Require().True(errors.As(wrapped, &domainErr))
		s.Equal(CodeMissingConsent, domainErr.Code)
		s.Equal("advance failed", domainErr.Message)
	})

	s.Run("uses provided code when wrapping non-domain error", func() {
		original := errors.New("sink detached")
		wrapped := Wrap(original, CodeCameraUnavailable, "camera start failed")

		s.True(HasCode(wrapped, CodeCameraUnavailable))
		s.True(errors.Is(wrapped, original))
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeConflict, CodeOf(fmt.Errorf("outer: %w", New(CodeConflict, "busy"))))
	s.Equal(CodeInternal, CodeOf(errors.New("plain")))
	s.False(HasCode(nil, CodeNotFound))
}
