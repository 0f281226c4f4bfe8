package domain

import "fmt"

// ErrorCode enumerates the orthogonal kind axis of the error taxonomy
// in SPEC_FULL §7. The retriable axis is carried on AppError itself
// rather than encoded in the code, so the retriable bit is part of the
// type and not a side-channel (§9 "Exception-driven validation").
type ErrorCode string

// Error codes.
const (
	CodeValidation          ErrorCode = "VALIDATION"
	CodeUnauthorizedAccess  ErrorCode = "UNAUTHORIZED_ACCESS"
	CodeResourceNotFound    ErrorCode = "RESOURCE_NOT_FOUND"
	CodeAIServiceTransient  ErrorCode = "AI_SERVICE_TRANSIENT"
	CodeAIServicePermanent  ErrorCode = "AI_SERVICE_PERMANENT"
	CodeInvalidAIResponse   ErrorCode = "INVALID_AI_RESPONSE"
	CodeInternal            ErrorCode = "INTERNAL"
	CodeEmailAlreadyExists  ErrorCode = "EMAIL_ALREADY_EXISTS"
	CodeInvalidCredentials  ErrorCode = "INVALID_CREDENTIALS"
	CodeUserInactive        ErrorCode = "USER_INACTIVE"
	CodeTooManyProducts     ErrorCode = "TOO_MANY_PRODUCTS"
	CodeTooManyPersonas     ErrorCode = "TOO_MANY_PERSONAS"
	CodePersonasNotReady    ErrorCode = "PERSONAS_NOT_READY"
	CodeMissingToken        ErrorCode = "MISSING_TOKEN"
)

// AppError is the structured error value that carries an HTTP-facing
// code, a human message, and the retriable bit used by the worker
// path to decide nack-with-requeue vs nack-without-requeue.
type AppError struct {
	Code      ErrorCode
	Message   string
	Retriable bool
	cause     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *AppError) Unwrap() error { return e.cause }

// NewAppError builds a non-retriable AppError.
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewRetriableError builds a retriable AppError. Callers use it for
// AI_SERVICE_TRANSIENT upstream failures, lock-acquisition failures,
// and failed task enqueues.
func NewRetriableError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Retriable: true}
}

// Wrap attaches a cause to an AppError, preserving its code/retriable bit.
func (e *AppError) Wrap(cause error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Retriable: e.Retriable, cause: cause}
}

// IsRetriable reports whether err is an AppError marked retriable.
func IsRetriable(err error) bool {
	var ae *AppError
	if as(err, &ae) {
		return ae.Retriable
	}
	return false
}

// CodeOf extracts the ErrorCode of err if it is (or wraps) an
// AppError, or CodeInternal otherwise. Used by the queue handlers to
// label task-failure metrics without each caller re-deriving the code.
func CodeOf(err error) ErrorCode {
	var ae *AppError
	if as(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// as is a tiny local errors.As wrapper kept here to avoid importing
// errors in every caller of IsRetriable; behaves identically.
func as(err error, target **AppError) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
