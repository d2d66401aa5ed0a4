// Package factory constructs LLM clients with their middleware chain.
// Provider selection is driven by the model name via the config registry;
// credentials come from the secrets file or environment.
package factory

import (
	"fmt"
	"strings"
	"time"

	"agentcore/pkg/config"
	"agentcore/pkg/llm"
	"agentcore/pkg/llm/internal/llmimpl/anthropic"
	"agentcore/pkg/llm/internal/llmimpl/googlegenai"
	"agentcore/pkg/llm/internal/llmimpl/ollama"
	"agentcore/pkg/llm/internal/llmimpl/openaiofficial"
	"agentcore/pkg/resilience/retry"
	"agentcore/pkg/resilience/timeout"
)

// ClientFactory creates LLM clients with properly configured middleware
// chains.
type ClientFactory struct {
	onRetry retry.Notify
	config  config.Config
}

// NewClientFactory creates a new LLM client factory with the given
// configuration.
func NewClientFactory(cfg config.Config) *ClientFactory {
	return &ClientFactory{config: cfg}
}

// SetRetryNotify registers a callback invoked before each retry sleep.
// Used to surface retry attempts to observers; must be set before
// CreateClient.
func (f *ClientFactory) SetRetryNotify(notify retry.Notify) {
	f.onRetry = notify
}

// CreateClient creates an LLM client for the configured model with the
// full middleware chain.
func (f *ClientFactory) CreateClient() (llm.LLMClient, error) {
	if f.config.Agent == nil {
		return nil, fmt.Errorf("agent config is required")
	}
	return f.CreateClientForModel(f.config.Agent.Model)
}

// CreateClientForModel creates an LLM client for the given model name.
// The API key (or host URL, for Ollama) is resolved from the secrets file
// or environment based on the model's provider.
func (f *ClientFactory) CreateClientForModel(modelName string) (llm.LLMClient, error) {
	rawClient, err := newRawClient(modelName)
	if err != nil {
		return nil, err
	}

	retryPolicy := retry.NewPolicy(f.retryConfig(), nil)
	retryPolicy.OnRetry = f.onRetry

	// Middleware chain: Retry -> Timeout -> RawClient. Retry sits outside
	// the timeout so each attempt gets a fresh request deadline.
	client := llm.Chain(rawClient,
		retry.Middleware(retryPolicy),
		timeout.Middleware(f.llmTimeout()),
	)

	return client, nil
}

// NewRawClient creates a provider client with no middleware. Integration
// tests use this to exercise provider behavior directly.
func NewRawClient(modelName string) (llm.LLMClient, error) {
	return newRawClient(modelName)
}

func newRawClient(modelName string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}

	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	var rawClient llm.LLMClient
	switch provider {
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClaudeClientWithModel(apiKey, modelName)
	case config.ProviderOpenAI:
		rawClient = openaiofficial.NewOfficialClientWithModel(apiKey, modelName)
	case config.ProviderGoogle:
		rawClient = googlegenai.NewGeminiClientWithModel(apiKey, modelName)
	case config.ProviderOllama:
		// The explicit "ollama:" routing prefix is not part of the model
		// name the Ollama API knows.
		rawClient = ollama.NewOllamaClientWithModel(apiKey, strings.TrimPrefix(modelName, "ollama:"))
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	return rawClient, nil
}

func (f *ClientFactory) retryConfig() retry.Config {
	if f.config.Agent == nil {
		return retry.DefaultConfig
	}
	rc := f.config.Agent.Retry
	return retry.Config{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   rc.BaseDelay,
		MaxDelay:    rc.MaxDelay,
		Multiplier:  rc.Multiplier,
		Jitter:      rc.Jitter,
	}
}

func (f *ClientFactory) llmTimeout() time.Duration {
	if f.config.Agent == nil || f.config.Agent.LLMTimeout <= 0 {
		return config.DefaultLLMTimeout
	}
	return f.config.Agent.LLMTimeout
}
