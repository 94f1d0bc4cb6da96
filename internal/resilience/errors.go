// Package resilience classifies failed vendor calls so the audit trail can
// tell a slow vendor from a broken one.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind classifies a vendor call failure.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindCanceled  Kind = "canceled"
	KindTransport Kind = "transport"
	KindStatus    Kind = "http_status"
	KindPayload   Kind = "payload"
	KindUnknown   Kind = "unknown"
)

// StatusError is returned when a vendor answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// NewStatusError builds a StatusError, truncating long bodies.
func NewStatusError(code int, body []byte) *StatusError {
	const maxBody = 512
	s := string(body)
	if len(s) > maxBody {
		s = s[:maxBody]
	}
	return &StatusError{StatusCode: code, Body: s}
}

// PayloadError is returned when a vendor response cannot be decoded or
// carries a result the adapter does not understand.
type PayloadError struct {
	Err error
	Raw []byte
}

func (e *PayloadError) Error() string {
	return "unexpected payload: " + e.Err.Error()
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// RawBody returns whatever the vendor sent back alongside err, if anything.
func RawBody(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Body
	}
	var pe *PayloadError
	if errors.As(err, &pe) {
		return string(pe.Raw)
	}
	return ""
}

// Classify returns the failure kind for err.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var se *StatusError
	if errors.As(err, &se) {
		return KindStatus
	}
	var pe *PayloadError
	if errors.As(err, &pe) {
		return KindPayload
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if IsTransient(err) {
		return KindTransport
	}
	return KindUnknown
}

// IsTransient reports whether err looks like a passing network or server
// condition (timeouts, resets, 5xx, 429) rather than a permanent rejection
// of the request.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return IsTransientHTTPStatus(se.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus returns true for status codes a vendor uses to
// signal temporary unavailability.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
