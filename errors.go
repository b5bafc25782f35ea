package eduwire

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Error categories. Every terminal failure carries exactly one of these so
// presentation layers can branch without inspecting internals.
const (
	ErrorTypeNetwork     = "network"
	ErrorTypeAuth        = "auth"
	ErrorTypeValidation  = "validation"
	ErrorTypeServer      = "server"
	ErrorTypeWebSocket   = "websocket"
	ErrorTypeUnavailable = "unavailable"
	ErrorTypeRateLimit   = "rate_limit"
	ErrorTypeUnknown     = "unknown"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker refuses a call.
	ErrCircuitOpen = errors.New("eduwire: circuit open")

	// ErrRateLimited is returned when the client-side rate limiter denies a call.
	ErrRateLimited = errors.New("eduwire: rate limited")

	// ErrRefreshFailed is returned when a token refresh did not produce a new token.
	ErrRefreshFailed = errors.New("eduwire: token refresh failed")

	// ErrNotAuthenticated is returned by operations that require a stored token.
	ErrNotAuthenticated = errors.New("eduwire: not authenticated")
)

// ClientError is the tagged error returned for every ordinary failure.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	StatusCode int
	Method     string
	Endpoint   string
	RequestID  string
	Attempt    int
	MaxRetries int
	Exhausted  bool
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Exhausted {
		msg = fmt.Sprintf("%s (retries exhausted after %d attempts)", msg, e.Attempt+1)
	} else if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error categories for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient reports whether err represents a failure that might succeed on
// retry: network errors, 5xx responses, 408/429, and breaker/limiter denials.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		// 408 and 429 land in the server category, so validation errors are
		// never transient.
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeServer, ErrorTypeUnavailable, ErrorTypeRateLimit:
			return true
		default:
			return false
		}
	}

	return false
}

// errorTypeForStatus classifies strictly by HTTP status code. Body content is
// display text only and never participates in classification.
func errorTypeForStatus(status int) string {
	switch {
	case status == 401:
		return ErrorTypeAuth
	case status == 408 || status == 429:
		// Retry-class 4xx; surfaced as server pressure once retries run out.
		return ErrorTypeServer
	case status >= 400 && status < 500:
		return ErrorTypeValidation
	case status >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeUnknown
	}
}

// normalizeErrorBody flattens the server's error body shapes (detail, error,
// message, or a field-keyed validation map) into one human-readable string.
func normalizeErrorBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		// Not a JSON object; use the raw text.
		return trimmed
	}

	for _, key := range []string{"detail", "error", "message"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}

	// Field-keyed validation map: {"field": ["msg", ...], ...}.
	fields := make([]string, 0, len(obj))
	for key := range obj {
		if key == "success" || key == "data" {
			continue
		}
		fields = append(fields, key)
	}
	sort.Strings(fields)

	var parts []string
	for _, key := range fields {
		var msgs []string
		if err := json.Unmarshal(obj[key], &msgs); err == nil && len(msgs) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(msgs, ", ")))
			continue
		}
		var msg string
		if err := json.Unmarshal(obj[key], &msg); err == nil && msg != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", key, msg))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "; ")
	}

	return trimmed
}
