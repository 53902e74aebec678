package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "secret not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "secret not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeUpstream,
				Message: "vault request failed",
				Err:     errors.New("connection refused"),
			},
			wantMsg: "upstream: vault request failed (connection refused)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"expired is unauthenticated", ErrTokenExpired, ErrUnauthenticated, true},
		{"invalid is unauthenticated", ErrTokenInvalid, ErrUnauthenticated, true},
		{"expired is not invalid", ErrTokenExpired, ErrTokenInvalid, false},
		{"invalid is not expired", ErrTokenInvalid, ErrTokenExpired, false},
		{"generic unauthenticated is not expired", ErrUnauthenticated, ErrTokenExpired, false},
		{"forbidden is not unauthenticated", ErrForbidden, ErrUnauthenticated, false},
		{
			name:   "constructed expired matches sentinel",
			err:    Unauthenticated(CodeTokenExpired, "token expired", errors.New("exp")),
			target: ErrTokenExpired,
			want:   true,
		},
		{
			name:   "wrapped domain error",
			err:    fmt.Errorf("resolve: %w", ErrSecretNotFound),
			target: ErrSecretNotFound,
			want:   true,
		},
		{"non-domain target", ErrForbidden, errors.New("forbidden"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "bad", nil).
		WithDetail("field", "secretName")

	assert.Equal(t, "secretName", err.Details["field"])
}

func TestErrorTypeHelpers(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrVaultDisabled)

	assert.True(t, IsVaultDisabledError(wrapped))
	assert.False(t, IsNotFoundError(wrapped))
	assert.True(t, IsUnauthenticatedError(ErrTokenExpired))
	assert.True(t, IsForbiddenError(ErrForbidden))
	assert.True(t, IsUpstreamError(WrapUpstream("vault unreachable", errors.New("dial tcp"))))
	assert.True(t, IsInternalError(WrapInternal("boom", nil)))
	assert.True(t, IsConflictError(NewDomainError(ErrorTypeConflict, "already exists", nil)))
	assert.False(t, IsValidationError(errors.New("plain")))

	assert.Equal(t, ErrorTypeVaultDisabled, GetErrorType(wrapped))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Equal(t, CodeTokenExpired, GetErrorCode(ErrTokenExpired))
}
