package apperrors

import (
	"errors"
	"fmt"
)

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error codes
const (
	ErrCodeNotInitialized    = "NOT_INITIALIZED"
	ErrCodeNoCredentials     = "NO_CREDENTIALS_CONFIGURED"
	ErrCodeApprovalTransport = "APPROVAL_TRANSPORT"
	ErrCodeExecution         = "EXECUTION_FAILED"
	ErrCodeProviderInit      = "PROVIDER_INIT_FAILED"
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
	ErrCodeCompletion        = "COMPLETION_FAILED"
	ErrCodeStreamTransport   = "STREAM_TRANSPORT_FAILED"
)

// HasCode reports whether any error in err's chain is an AppError with the
// given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	for errors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
		appErr = nil
	}
	return false
}
