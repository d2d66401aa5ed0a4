package retry

import (
	"context"

	"agentcore/pkg/llm"
)

// Middleware returns a middleware function that wraps an LLM client with
// the retry policy. The policy's Execute is the only retry loop; the
// middleware just adapts it to the client interface.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			// Complete implementation with retry
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var resp llm.CompletionResponse
				err := policy.Execute(ctx, "model call", func(attemptCtx context.Context) error {
					var callErr error
					resp, callErr = next.Complete(attemptCtx, req)
					return callErr
				})
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				return resp, nil
			},
			// Stream implementation with retry. Only stream establishment is
			// retried; chunks already delivered cannot be replayed.
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				var ch <-chan llm.StreamChunk
				err := policy.Execute(ctx, "model stream", func(attemptCtx context.Context) error {
					var callErr error
					ch, callErr = next.Stream(attemptCtx, req)
					return callErr
				})
				if err != nil {
					return nil, err
				}
				return ch, nil
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
