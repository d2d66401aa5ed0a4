// Package agenterrors provides structured error classification for agent
// execution: a fixed kind taxonomy, a pure classifier, and retry defaults.
package agenterrors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind represents the failure category of an execution error.
type Kind int8

const (
	// Retryable by default.

	// KindNetwork represents connectivity failures (refused, reset, DNS).
	KindNetwork Kind = iota
	// KindTimeout represents deadline and timeout failures.
	KindTimeout
	// KindRateLimit represents rate limiting (429, quota exceeded).
	KindRateLimit
	// KindSystemFailure represents provider/internal failures (5xx, panics).
	KindSystemFailure

	// Non-retryable by default.

	// KindAuthentication represents credential failures (401/403, bad API key).
	// Never retryable, regardless of overrides.
	KindAuthentication
	// KindValidation represents malformed requests (4xx other than auth/429).
	KindValidation
	// KindToolFailure represents a tool that ran and reported failure.
	KindToolFailure
	// KindModelFailure represents unusable model output (empty, budget-looping).
	KindModelFailure
	// KindUserCancelled represents caller-initiated cancellation.
	KindUserCancelled
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindSystemFailure:
		return "system_failure"
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindToolFailure:
		return "tool_failure"
	case KindModelFailure:
		return "model_failure"
	case KindUserCancelled:
		return "user_cancelled"
	default:
		return "invalid"
	}
}

// DefaultRetryable reports whether errors of this kind are retried unless
// overridden. Authentication stays non-retryable even when overridden.
func DefaultRetryable(k Kind) bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimit, KindSystemFailure:
		return true
	default:
		return false
	}
}

// defaultRecoverable reports whether the execution can usefully continue
// past errors of this kind. Auth errors will not fix themselves and
// cancellation is intentional.
func defaultRecoverable(k Kind) bool {
	switch k {
	case KindAuthentication, KindUserCancelled:
		return false
	default:
		return true
	}
}

// Error is a classified execution error. Recoverable and Retryable are
// independent: an error may be worth retrying at the call site yet fatal
// to the execution, and vice versa.
type Error struct {
	Err         error     // Wrapped underlying error
	Message     string    // Human-readable error message
	Timestamp   time.Time // When the error was recorded (UTC)
	StatusCode  int       // HTTP status code if applicable
	Kind        Kind      // Classified kind
	Recoverable bool
	Retryable   bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agent error (%s): %s", e.Kind.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("agent error (%s): %v", e.Kind.String(), e.Err)
	}
	return fmt.Sprintf("agent error (%s): status %d", e.Kind.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the retry policy may re-attempt the failed
// operation. Authentication is blocked unconditionally.
func (e *Error) IsRetryable() bool {
	if e.Kind == KindAuthentication {
		return false
	}
	return e.Retryable
}

// WithRetryable overrides the retryable flag. The override is ignored for
// authentication errors.
func (e *Error) WithRetryable(retryable bool) *Error {
	if e.Kind == KindAuthentication {
		e.Retryable = false
		return e
	}
	e.Retryable = retryable
	return e
}

// WithRecoverable overrides the recoverable flag.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// New creates a classified error with kind defaults for both flags.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:        kind,
		Message:     message,
		Timestamp:   time.Now().UTC(),
		Recoverable: defaultRecoverable(kind),
		Retryable:   DefaultRetryable(kind),
	}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// NewWithStatus creates a classified error carrying an HTTP status.
func NewWithStatus(kind Kind, statusCode int, message string) *Error {
	err := New(kind, message)
	err.StatusCode = statusCode
	return err
}

// Wrap creates a classified error wrapping a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	err := New(kind, message)
	err.Err = cause
	return err
}

// Is checks whether an error is classified with a specific kind.
func Is(err error, kind Kind) bool {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Kind == kind
	}
	return false
}

// KindOf returns the classified kind of an error chain without
// re-classifying: unclassified errors report KindSystemFailure.
func KindOf(err error) Kind {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}
	return KindSystemFailure
}

// statusCoder matches SDK error types that expose their HTTP status.
type statusCoder interface {
	StatusCode() int
}

var statusPattern = regexp.MustCompile(`(?:status(?: code)?|HTTP)[ :=]+(\d{3})`)

// extractStatusCode pulls an HTTP status out of an error chain: a typed
// StatusCode accessor first, then the message text.
func extractStatusCode(err error) int {
	var agentErr *Error
	if errors.As(err, &agentErr) && agentErr.StatusCode != 0 {
		return agentErr.StatusCode
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	return 0
}

// Classify maps an arbitrary error to a kind. The function is pure: the
// same error always classifies the same way. Precedence: explicit kind on
// a classified error, context sentinels, message substrings, HTTP status,
// then KindSystemFailure.
func Classify(err error) Kind {
	if err == nil {
		return KindSystemFailure
	}

	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindUserCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "cancelled") || strings.Contains(msg, "canceled"):
		return KindUserCancelled
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "quota"):
		return KindRateLimit
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "api key") || strings.Contains(msg, "authentication"):
		return KindAuthentication
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "network") || strings.Contains(msg, "eof"):
		return KindNetwork
	}

	switch code := extractStatusCode(err); {
	case code == 401 || code == 403:
		return KindAuthentication
	case code == 429:
		return KindRateLimit
	case code == 408:
		return KindTimeout
	case code >= 500:
		return KindSystemFailure
	case code >= 400:
		return KindValidation
	}

	return KindSystemFailure
}

// From returns err as a classified *Error, classifying it first when
// needed. The original error stays wrapped for errors.Is/As.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr
	}
	kind := Classify(err)
	classified := Wrap(kind, err, err.Error())
	classified.StatusCode = extractStatusCode(err)
	return classified
}
