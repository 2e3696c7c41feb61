package apperrors

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	TypeConfig     ErrorType = "Config"     // Missing/invalid location, policy or profile reference
	TypeValidation ErrorType = "Validation" // Bad option values, env collisions, mistyped fields
	TypeNotFound   ErrorType = "NotFound"   // Named object absent (profile, policy, snapshot)
	TypeResource   ErrorType = "Resource"   // Out of space, pre-existing archive, missing file
	TypeExternal   ErrorType = "External"   // Non-zero exit from restic or a pipeline stage
	TypeConnection ErrorType = "Connection" // Unreachable upload target
	TypeAuth       ErrorType = "Auth"       // SSH keys, upload credentials
	TypeSecurity   ErrorType = "Security"   // Missing encryption password, decrypt failure
	TypeInterrupt  ErrorType = "Interrupt"  // Operator cancellation
	TypeInternal   ErrorType = "Internal"   // Unexpected internal failure
)

// AppError categorizes failures and carries an optional hint for the user,
// plus the exit code of an offending external process where one exists.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Hint    string
	Code    int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(t ErrorType, msg string, hint string) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Hint:    hint,
	}
}

// Newf creates a new AppError with a formatted message and no hint.
func Newf(t ErrorType, format string, args ...any) *AppError {
	return &AppError{
		Type:    t,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, t ErrorType, msg string, hint string) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Err:     err,
		Hint:    hint,
	}
}

// External creates an AppError for a failed external process, keeping the
// child's exit code so main can mirror it.
func External(msg string, code int) *AppError {
	return &AppError{
		Type:    TypeExternal,
		Message: msg,
		Code:    code,
	}
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// ExitCode extracts the external exit code carried by err, or fallback
// when err carries none.
func ExitCode(err error, fallback int) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	return fallback
}
