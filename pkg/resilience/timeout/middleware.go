// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"agentcore/pkg/llm"
)

// Middleware returns a middleware function that wraps an LLM client with per-request timeout logic.
// Each request gets a timeout context to prevent hanging requests.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			// Complete implementation with timeout
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			// Stream implementation with timeout
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Stream(timeoutCtx, req)
			},
			// Delegate identity to the next client
			func() string {
				return next.GetModelName()
			},
			func() bool {
				return next.SupportsToolCalling()
			},
		)
	}
}
