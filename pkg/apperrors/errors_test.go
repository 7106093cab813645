package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeExecution, "tool failed", nil)

	assert.NotNil(t, err)
	assert.Equal(t, ErrCodeExecution, err.Code)
	assert.Equal(t, "tool failed", err.Message)
	assert.Nil(t, err.Cause)
}

func TestAppError_Error_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeExecution, "tool failed", cause)
	errorString := err.Error()

	assert.Contains(t, errorString, ErrCodeExecution)
	assert.Contains(t, errorString, "tool failed")
	assert.Contains(t, errorString, "underlying error")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeExecution, "tool failed", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestErrorCodes_Unique(t *testing.T) {
	codes := []string{
		ErrCodeNotInitialized,
		ErrCodeNoCredentials,
		ErrCodeApprovalTransport,
		ErrCodeExecution,
		ErrCodeProviderInit,
		ErrCodeInvalidConfig,
		ErrCodeCompletion,
		ErrCodeStreamTransport,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code)
		assert.False(t, seen[code], "duplicate error code: %s", code)
		seen[code] = true
	}
}

func TestHasCode(t *testing.T) {
	err := New(ErrCodeNoCredentials, "no keys for provider", nil)

	assert.True(t, HasCode(err, ErrCodeNoCredentials))
	assert.False(t, HasCode(err, ErrCodeExecution))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeNoCredentials))
}

func TestHasCode_Wrapped(t *testing.T) {
	inner := New(ErrCodeNotInitialized, "handle not connected", nil)
	wrapped := fmt.Errorf("listing tools: %w", inner)

	assert.True(t, HasCode(wrapped, ErrCodeNotInitialized))
}
