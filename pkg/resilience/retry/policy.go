// Package retry provides the single retry policy used for model and tool
// calls: exponential backoff with a cap and bounded jitter, gated by the
// error classifier.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"agentcore/pkg/agenterrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts int           `json:"max_attempts"` // Maximum number of attempts (including initial)
	BaseDelay   time.Duration `json:"base_delay"`   // Delay after the first failed attempt
	MaxDelay    time.Duration `json:"max_delay"`    // Maximum delay between retries
	Multiplier  float64       `json:"multiplier"`   // Multiplier for exponential backoff
	Jitter      bool          `json:"jitter"`       // Add random jitter to prevent thundering herd
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    30 * time.Second,
	Multiplier:  2.0,
	Jitter:      true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// IsRetryable is the default classifier: classify the error and apply the
// kind's retry default. Authentication never retries; a dead context never
// retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return agenterrors.From(err).IsRetryable()
}

// Notify is called before each retry sleep. Used to surface retry
// attempts to observers without the policy knowing about them.
type Notify func(label string, attempt int, delay time.Duration, err error)

// Policy encapsulates retry configuration and logic.
type Policy struct {
	Classifier Classifier
	OnRetry    Notify
	Config     Config
}

// NewPolicy creates a retry policy with the given configuration and
// classifier. A nil classifier falls back to IsRetryable.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = IsRetryable
	}
	if config.Multiplier <= 0 {
		config.Multiplier = DefaultConfig.Multiplier
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultConfig.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultConfig.MaxDelay
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the backoff after the given failed attempt:
// base * multiplier^(attempt-1), capped at MaxDelay, plus jitter in
// [0, delay/4) when enabled.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(p.Config.BaseDelay) * math.Pow(p.Config.Multiplier, float64(attempt-1)))
	if delay > p.Config.MaxDelay || delay <= 0 {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay >= 4 {
		delay += time.Duration(rand.Int63n(int64(delay / 4))) //nolint:gosec // Jitter needs no crypto rand
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the
// configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// maxAttempts normalizes the configured attempt bound: zero and negative
// both mean a single attempt.
func (p *Policy) maxAttempts() int {
	if p.Config.MaxAttempts <= 0 {
		return 1
	}
	return p.Config.MaxAttempts
}

// Execute runs fn up to MaxAttempts times. Between attempts it sleeps the
// computed backoff, aborting early if the context ends. Every retryable
// operation in the codebase goes through here; callers capture results in
// the closure.
func (p *Policy) Execute(ctx context.Context, label string, fn func(context.Context) error) error {
	attempts := p.maxAttempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.ShouldRetry(err) {
			return err
		}
		if attempt >= attempts {
			break
		}
		// Retrying against a dead context would only burn attempts.
		if ctx.Err() != nil {
			return fmt.Errorf("%s retry abandoned: %w", label, ctx.Err())
		}

		delay := p.CalculateDelay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(label, attempt, delay, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s retry cancelled: %w", label, ctx.Err())
		case <-time.After(delay):
			// Continue with retry
		}
	}

	classified := agenterrors.From(lastErr)
	return agenterrors.Wrap(classified.Kind, lastErr,
		fmt.Sprintf("%s failed after %d attempts: %v", label, attempts, lastErr))
}
