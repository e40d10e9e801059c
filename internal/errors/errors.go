// Package errors provides error code definitions for the sync and
// submission pipeline.
package errors

import "fmt"

// ErrorCode classifies a failure for retry and reporting decisions.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Storage errors
	ErrStorage    ErrorCode = "STORAGE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Submission lifecycle errors
	ErrStatusRegression ErrorCode = "STATUS_REGRESSION"
	ErrConflict         ErrorCode = "CONFLICT"

	// Transfer errors
	ErrTransientNetwork ErrorCode = "TRANSIENT_NETWORK"
	ErrIntegrity        ErrorCode = "INTEGRITY_MISMATCH"
	ErrUploadFailed     ErrorCode = "UPLOAD_FAILED"

	// Bundle errors
	ErrPermission    ErrorCode = "PERMISSION_DENIED"
	ErrCorruptBundle ErrorCode = "CORRUPT_BUNDLE"

	// Export errors
	ErrExportFailed ErrorCode = "EXPORT_FAILED"
	ErrNothingToDo  ErrorCode = "NOTHING_TO_EXPORT"

	// Pull sync errors
	ErrSyncFailed   ErrorCode = "SYNC_FAILED"
	ErrPageOverflow ErrorCode = "SYNC_PAGE_OVERFLOW"
)

// AppError represents an engine error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code, unwrapping as needed.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			if appErr.Code == code {
				return true
			}
			err = appErr.Err
			continue
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// CodeOf returns the outermost error code, or ErrInternal when the
// error carries none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}
