package apiclient

import (
	"context"
	"errors"
	"net"
)

// ProblemKind is the closed classification of request failures. It is the
// single source of truth for what kind of failure occurred, independent of
// the specific error message.
type ProblemKind string

const (
	ProblemNone        ProblemKind = "NONE"
	ProblemClientError ProblemKind = "CLIENT_ERROR"
	ProblemServerError ProblemKind = "SERVER_ERROR"
	ProblemTimeout     ProblemKind = "TIMEOUT"
	ProblemConnection  ProblemKind = "CONNECTION"
	ProblemNetwork     ProblemKind = "NETWORK"
	ProblemCancelled   ProblemKind = "CANCELLED"
	ProblemUnknown     ProblemKind = "UNKNOWN"
)

// Classify maps a transport outcome to a ProblemKind. It is a pure function
// of the status code and the underlying error cause.
//
// A present status wins: [400,500) is CLIENT_ERROR, [500,600) is SERVER_ERROR,
// any other non-zero status is UNKNOWN. With no status, the cause decides:
// deadline expiry is TIMEOUT, caller cancellation is CANCELLED, dial-phase
// failures (DNS, connection refused) are CONNECTION, and any other net.Error
// is NETWORK. Anything left is UNKNOWN.
func Classify(status int, cause error) ProblemKind {
	if status != 0 {
		switch {
		case status >= 400 && status < 500:
			return ProblemClientError
		case status >= 500 && status < 600:
			return ProblemServerError
		default:
			return ProblemUnknown
		}
	}

	if cause == nil {
		return ProblemUnknown
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return ProblemTimeout
	}
	if errors.Is(cause, context.Canceled) {
		return ProblemCancelled
	}

	var dnsErr *net.DNSError
	if errors.As(cause, &dnsErr) {
		return ProblemConnection
	}
	var opErr *net.OpError
	if errors.As(cause, &opErr) {
		if opErr.Op == "dial" {
			return ProblemConnection
		}
		if opErr.Timeout() {
			return ProblemTimeout
		}
		return ProblemNetwork
	}
	var netErr net.Error
	if errors.As(cause, &netErr) {
		if netErr.Timeout() {
			return ProblemTimeout
		}
		return ProblemNetwork
	}

	return ProblemUnknown
}
