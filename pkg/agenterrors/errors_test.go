package agenterrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type statusErr struct {
	code int
}

func (e *statusErr) Error() string   { return "request failed" }
func (e *statusErr) StatusCode() int { return e.code }

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"context canceled", context.Canceled, KindUserCancelled},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"timeout substring", errors.New("request timed out after 30s"), KindTimeout},
		{"cancelled substring", errors.New("operation cancelled by caller"), KindUserCancelled},
		{"rate limit substring", errors.New("rate limit exceeded, retry later"), KindRateLimit},
		{"quota substring", errors.New("monthly quota exhausted"), KindRateLimit},
		{"auth substring", errors.New("invalid api key provided"), KindAuthentication},
		{"forbidden substring", errors.New("403 Forbidden: access denied"), KindAuthentication},
		{"connection refused", errors.New("dial tcp: connection refused"), KindNetwork},
		{"unexpected eof", errors.New("unexpected EOF"), KindNetwork},
		{"status 401", &statusErr{code: 401}, KindAuthentication},
		{"status 429", &statusErr{code: 429}, KindRateLimit},
		{"status 408", &statusErr{code: 408}, KindTimeout},
		{"status 500", &statusErr{code: 500}, KindSystemFailure},
		{"status 503", &statusErr{code: 503}, KindSystemFailure},
		{"status 422", &statusErr{code: 422}, KindValidation},
		{"status in message", errors.New("api error: status code: 502"), KindSystemFailure},
		{"unclassifiable", errors.New("something odd happened"), KindSystemFailure},
		{"nil", nil, KindSystemFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	err := errors.New("rate limit exceeded")
	first := Classify(err)
	for i := 0; i < 10; i++ {
		if got := Classify(err); got != first {
			t.Fatalf("Classify changed answer on call %d: %s vs %s", i, got, first)
		}
	}
}

func TestClassifyExplicitKindWins(t *testing.T) {
	// The message alone would classify as timeout; the explicit kind
	// must take precedence.
	classified := New(KindValidation, "request timed out while validating")
	wrapped := fmt.Errorf("model call: %w", classified)

	if got := Classify(wrapped); got != KindValidation {
		t.Errorf("Classify = %s, want validation from explicit kind", got)
	}
}

func TestSubstringBeatsStatusCode(t *testing.T) {
	// Both a timeout substring and a 500 status are present.
	err := errors.New("request timed out, status code: 500")
	if got := Classify(err); got != KindTimeout {
		t.Errorf("Classify = %s, want timeout (substring precedence)", got)
	}
}

func TestDefaultRetryable(t *testing.T) {
	retryable := []Kind{KindNetwork, KindTimeout, KindRateLimit, KindSystemFailure}
	for _, k := range retryable {
		if !DefaultRetryable(k) {
			t.Errorf("expected %s retryable by default", k)
		}
	}
	nonRetryable := []Kind{KindAuthentication, KindValidation, KindToolFailure, KindModelFailure, KindUserCancelled}
	for _, k := range nonRetryable {
		if DefaultRetryable(k) {
			t.Errorf("expected %s non-retryable by default", k)
		}
	}
}

func TestAuthenticationNeverRetryable(t *testing.T) {
	err := New(KindAuthentication, "bad key").WithRetryable(true)
	if err.IsRetryable() {
		t.Error("authentication error must stay non-retryable after override")
	}

	// Other kinds honor the override.
	tool := New(KindToolFailure, "tool broke").WithRetryable(true)
	if !tool.IsRetryable() {
		t.Error("expected override to enable retry for tool_failure")
	}
}

func TestErrorUnwrapPreservesChain(t *testing.T) {
	cause := errors.New("underlying cause")
	err := Wrap(KindNetwork, cause, "connect failed")

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause through Unwrap")
	}

	var agentErr *Error
	outer := fmt.Errorf("outer: %w", err)
	if !errors.As(outer, &agentErr) {
		t.Fatal("expected errors.As to find *Error")
	}
	if agentErr.Kind != KindNetwork {
		t.Errorf("Kind = %s, want network", agentErr.Kind)
	}
}

func TestFromPreservesClassifiedError(t *testing.T) {
	original := NewWithStatus(KindRateLimit, 429, "slow down")
	if got := From(fmt.Errorf("wrapped: %w", original)); got != original {
		t.Error("From must return the existing classified error")
	}
}

func TestFromClassifiesPlainError(t *testing.T) {
	err := From(errors.New("connection reset by peer"))
	if err.Kind != KindNetwork {
		t.Errorf("Kind = %s, want network", err.Kind)
	}
	if !err.Retryable {
		t.Error("expected network error retryable by default")
	}
	if err.Timestamp.IsZero() {
		t.Error("expected timestamp populated")
	}
}

func TestFromNil(t *testing.T) {
	if got := From(nil); got != nil {
		t.Errorf("From(nil) = %v, want nil", got)
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindNetwork:        "network",
		KindTimeout:        "timeout",
		KindRateLimit:      "rate_limit",
		KindAuthentication: "authentication",
		KindValidation:     "validation",
		KindToolFailure:    "tool_failure",
		KindModelFailure:   "model_failure",
		KindSystemFailure:  "system_failure",
		KindUserCancelled:  "user_cancelled",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
