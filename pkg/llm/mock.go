package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient provides a controllable implementation of LLMClient for testing.
// Responses and errors are consumed in order; CompleteFunc overrides the
// scripted behavior entirely when set.
type MockClient struct {
	CompleteFunc func(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	mu            sync.Mutex
	responses     []CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	calls         int
}

var _ LLMClient = (*MockClient)(nil)

// NewMockClient creates a new mock client with predefined responses.
func NewMockClient(responses []CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		responses: responses,
		errors:    errors,
	}
}

// Complete returns the next predefined response or error.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return CompletionResponse{}, err
	}

	if m.responseIndex >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// Stream returns a channel that will receive the next predefined response.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		ch <- StreamChunk{
			Content: resp.Content,
			Done:    true,
		}
	}()

	return ch, nil
}

// Calls returns how many times Complete or Stream were invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// GetModelName identifies the mock in logs.
func (m *MockClient) GetModelName() string {
	return "mock-model"
}

// SupportsToolCalling is always true for the mock.
func (m *MockClient) SupportsToolCalling() bool {
	return true
}
