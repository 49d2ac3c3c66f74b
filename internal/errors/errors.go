package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrCode = "UNAUTHORIZED"
	ErrCodeRateLimited  ErrCode = "RATE_LIMITED"
	ErrCodeInternal     ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest   ErrCode = "BAD_REQUEST"
	ErrCodeForbidden    ErrCode = "FORBIDDEN"
	ErrCodeUpstream     ErrCode = "UPSTREAM_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error

	// UpstreamCode is the platform's response code for ErrCodeUpstream errors.
	UpstreamCode int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// NewUpstreamError creates an error for a non-zero platform response code.
// The message is replaced by a user-facing one when the code is known.
func NewUpstreamError(code int, message string) *AppError {
	return &AppError{
		Code:         ErrCodeUpstream,
		Message:      UpstreamMessage(code, message),
		UpstreamCode: code,
	}
}

// upstreamMessages maps platform response codes to user-facing messages.
var upstreamMessages = map[int]string{
	-101:  "account is not logged in",
	-111:  "csrf check failed",
	-400:  "bad request",
	-404:  "video does not exist",
	12002: "comment contains sensitive words",
	12009: "comments are being sent too frequently",
	12015: "captcha verification required",
	12016: "account needs verification before commenting",
	12025: "comments are closed for this video",
}

// UpstreamMessage returns the user-facing message for a platform response code.
func UpstreamMessage(code int, message string) string {
	if msg, ok := upstreamMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("error %d: %s", code, message)
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	return CodeOf(err) == ErrCodeUnauthorized
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	return CodeOf(err) == ErrCodeRateLimited
}
