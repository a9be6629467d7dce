package apiclient

import (
	"errors"
	"fmt"
)

// Error is the one concrete error shape produced by this package. Every
// failure leaving a Client is an *Error with a populated, well-formed
// Response; the Problem field replaces a deep error subclass hierarchy.
// Immutable after construction.
type Error struct {
	Problem  ProblemKind
	Status   int
	Response *Response
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) IsClientError() bool { return e.Problem == ProblemClientError }
func (e *Error) IsServerError() bool { return e.Problem == ProblemServerError }
func (e *Error) IsTimeout() bool     { return e.Problem == ProblemTimeout }
func (e *Error) IsConnection() bool  { return e.Problem == ProblemConnection }
func (e *Error) IsNetwork() bool     { return e.Problem == ProblemNetwork }
func (e *Error) IsCancelled() bool   { return e.Problem == ProblemCancelled }

// NewError creates a classified error without an attached response. The
// classification survives normalization, so a transform can fail a call with
// a specific ProblemKind.
func NewError(problem ProblemKind, message string, cause error) *Error {
	return &Error{Problem: problem, Message: message, Cause: cause}
}

// ErrorFromResponse finalizes a failed Response into the error thrown to the
// caller. The message defaults to the original error's message, else a
// synthesized status line. The produced error always carries the response.
func ErrorFromResponse(resp *Response) *Error {
	message := ""
	if resp.OriginalError != nil {
		message = resp.OriginalError.Error()
	} else {
		message = fmt.Sprintf("request failed with status %d", resp.Status)
	}
	return &Error{
		Problem:  resp.Problem,
		Status:   resp.Status,
		Response: resp,
		Message:  message,
		Cause:    resp.OriginalError,
	}
}

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}
