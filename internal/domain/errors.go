package domain

import "fmt"

// ErrorType represents the category of failure within the review pipeline.
type ErrorType int

const (
	ErrTypeAdmissionRejected ErrorType = iota
	ErrTypeParse
	ErrTypeScanUnavailable
	ErrTypeTrackFailure
	ErrTypeNoTracksSucceeded
	ErrTypePublishFailure
	ErrTypeUnknown
)

// String returns a human-readable description of the error type.
func (e ErrorType) String() string {
	switch e {
	case ErrTypeAdmissionRejected:
		return "admission rejected"
	case ErrTypeParse:
		return "parse error"
	case ErrTypeScanUnavailable:
		return "scanner unavailable"
	case ErrTypeTrackFailure:
		return "track failure"
	case ErrTypeNoTracksSucceeded:
		return "no tracks succeeded"
	case ErrTypePublishFailure:
		return "publish failure"
	default:
		return "unknown error"
	}
}

// Error represents a pipeline error with its taxonomy category attached.
type Error struct {
	Type      ErrorType
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type.String(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type.String(), e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewAdmissionRejectedError reports a submission refused at intake.
func NewAdmissionRejectedError(message string) *Error {
	return &Error{Type: ErrTypeAdmissionRejected, Message: message, Retryable: true}
}

// NewParseError reports an unparseable diff.
func NewParseError(message string, cause error) *Error {
	return &Error{Type: ErrTypeParse, Message: message, Cause: cause}
}

// NewScanUnavailableError reports a scanner that could not run. Scanning is
// best-effort, so callers degrade rather than fail the task.
func NewScanUnavailableError(message string, cause error) *Error {
	return &Error{Type: ErrTypeScanUnavailable, Message: message, Retryable: true, Cause: cause}
}

// NewTrackFailureError reports a single analysis track failing.
func NewTrackFailureError(track Track, cause error) *Error {
	return &Error{Type: ErrTypeTrackFailure, Message: string(track), Cause: cause}
}

// NewNoTracksSucceededError reports that every analysis track failed.
func NewNoTracksSucceededError() *Error {
	return &Error{Type: ErrTypeNoTracksSucceeded, Message: "all analysis tracks failed"}
}

// NewPublishFailureError reports a publish attempt that exhausted retries.
func NewPublishFailureError(message string, cause error) *Error {
	return &Error{Type: ErrTypePublishFailure, Message: message, Retryable: true, Cause: cause}
}
