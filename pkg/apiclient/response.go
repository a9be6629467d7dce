package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Response is the canonical outcome of any call made through a Client.
// Exactly one of {OK with ProblemNone} or {not OK with a problem set} holds.
// Data and Status/Headers are independent of OK: a non-2xx response can still
// carry a parsed body and headers.
type Response struct {
	// OK is true iff the transport status is in [200,300).
	OK bool

	// Problem classifies the failure. It is ProblemNone iff OK.
	Problem ProblemKind

	// OriginalError is the underlying error, nil on pure success.
	OriginalError error

	// Data is the JSON-decoded body, when the body decoded cleanly. It may be
	// present even when OK is false (e.g. a structured error body).
	Data any

	// Raw is the unparsed response body.
	Raw []byte

	Status   int
	Headers  map[string]string
	Duration time.Duration
}

// DecodeInto re-decodes the raw body into a caller-supplied value.
func (r *Response) DecodeInto(v any) error {
	if len(r.Raw) == 0 {
		return fmt.Errorf("response has no body to decode")
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// normalizeSuccess builds a Response from a completed transport exchange.
// A non-2xx status still produces a fully populated Response, classified and
// carrying a synthesized original error.
func normalizeSuccess(result *TransportResult, duration time.Duration) *Response {
	resp := &Response{
		OK:       result.Status >= 200 && result.Status < 300,
		Problem:  ProblemNone,
		Raw:      result.Body,
		Status:   result.Status,
		Headers:  result.Headers,
		Duration: duration,
	}

	if len(result.Body) > 0 {
		var decoded any
		// A body that is not JSON leaves Data unset; Raw is always available.
		if err := json.Unmarshal(result.Body, &decoded); err == nil {
			resp.Data = decoded
		}
	}

	if !resp.OK {
		resp.Problem = Classify(result.Status, nil)
		resp.OriginalError = fmt.Errorf("request failed with status %d: %s", result.Status, http.StatusText(result.Status))
	}
	return resp
}

// normalizeFailure builds a Response from a thrown transport or pipeline
// error, keeping whatever partial status and headers are available.
func normalizeFailure(cause error, partial *TransportResult, duration time.Duration) *Response {
	resp := &Response{
		OK:            false,
		OriginalError: cause,
		Duration:      duration,
	}
	if partial != nil {
		resp.Status = partial.Status
		resp.Headers = partial.Headers
	}
	resp.Problem = Classify(resp.Status, cause)

	// An error that already carries a classification keeps it.
	if typed, ok := AsError(cause); ok && typed.Problem != ProblemNone {
		resp.Problem = typed.Problem
	}
	return resp
}
