// Package googlegenai provides the Google Gemini client implementation for
// the LLM interface.
package googlegenai

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"agentcore/pkg/agenterrors"
	"agentcore/pkg/llm"
	"agentcore/pkg/tools"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient.
type GeminiClient struct {
	client        *genai.Client
	apiKey        string
	model         string
	responseCache []*genai.Content // assistant responses kept verbatim to preserve thought signatures
}

var _ llm.LLMClient = (*GeminiClient)(nil)

// NewGeminiClientWithModel creates a new Gemini client with a specific model.
// Client construction needs a context, so it is deferred to the first
// Complete call.
func NewGeminiClientWithModel(apiKey, model string) llm.LLMClient {
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "failed to create Gemini client")
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessages(in.Messages, g.responseCache)
	if err != nil {
		return llm.CompletionResponse{}, agenterrors.Wrap(agenterrors.KindValidation, err, "message conversion error")
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.MaxTokensDefault
	}
	//nolint:gosec // MaxTokens is bounded well below int32 range
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: int32(maxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	if len(in.Tools) > 0 {
		config.Tools = []*genai.Tool{
			{FunctionDeclarations: convertTools(in.Tools)},
		}
		// Gemini may answer with empty content when tool use is optional,
		// especially when the advertised tool set changed between turns.
		// Mode ANY forces a call to one of the provided tools.
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, agenterrors.Wrap(agenterrors.Classify(err), err, "gemini request failed")
	}
	if result == nil {
		return llm.CompletionResponse{}, agenterrors.New(agenterrors.KindModelFailure, "received empty response from Gemini API").WithRetryable(true)
	}

	// Cache the assistant content so later turns replay it with its thought
	// signatures intact.
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		g.responseCache = append(g.responseCache, result.Candidates[0].Content)
	}

	response := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: getStopReason(result),
	}
	if usage := result.UsageMetadata; usage != nil {
		response.Usage = &llm.Usage{
			PromptTokens:     int64(usage.PromptTokenCount),
			CompletionTokens: int64(usage.CandidatesTokenCount),
			TotalTokens:      int64(usage.TotalTokenCount),
		}
	}
	if functionCalls := result.FunctionCalls(); len(functionCalls) > 0 {
		response.ToolCalls = convertFunctionCalls(functionCalls)
	}
	return response, nil
}

// Stream implements the llm.LLMClient interface by draining a Complete call
// into a two-chunk stream.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (g *GeminiClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := g.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// SupportsToolCalling reports structured tool-calling support.
func (g *GeminiClient) SupportsToolCalling() bool {
	return true
}

// convertMessages converts our message format to Gemini Content values and
// extracts the system instruction. Assistant turns that requested tools are
// replayed from responseCache so their thought signatures survive the round
// trip.
func convertMessages(messages []llm.CompletionMessage, responseCache []*genai.Content) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content
	assistantMsgIdx := 0

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model" // Gemini uses "model" instead of "assistant"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Role == llm.RoleAssistant && len(msg.ToolCalls) > 0 && assistantMsgIdx < len(responseCache) {
			contents = append(contents, responseCache[assistantMsgIdx])
			assistantMsgIdx++
			continue
		}
		if msg.Role == llm.RoleAssistant {
			assistantMsgIdx++
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}
		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Parameters,
				},
			})
		}
		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			if tr.ToolCallID == "" {
				continue
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					// Gemini matches responses by function name, and calls
					// without SDK-minted ids carry the name as their id.
					Name: tr.ToolCallID,
					Response: map[string]interface{}{
						"content":  tr.Content,
						"is_error": tr.IsError,
					},
				},
			})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	return contents, systemInstruction, nil
}

// convertTools converts our tool definitions to Gemini function declarations.
func convertTools(toolDefs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(toolDefs))
	for i := range toolDefs {
		tool := &toolDefs[i]

		properties := make(map[string]*genai.Schema, len(tool.InputSchema.Properties))
		for propName := range tool.InputSchema.Properties {
			prop := tool.InputSchema.Properties[propName]
			properties[propName] = convertPropertySchema(&prop)
		}

		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.InputSchema.Required,
			},
		}
	}
	return declarations
}

// convertPropertySchema recursively converts a Property to Gemini schema format.
func convertPropertySchema(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{
		Description: prop.Description,
	}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertPropertySchema(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if prop.Properties != nil {
			properties := make(map[string]*genai.Schema, len(prop.Properties))
			for name, childProp := range prop.Properties {
				if childProp != nil {
					properties[name] = convertPropertySchema(childProp)
				}
			}
			schema.Properties = properties
		}
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}
	return schema
}

// convertFunctionCalls converts Gemini function calls to our format.
func convertFunctionCalls(calls []*genai.FunctionCall) []llm.ToolCall {
	toolCalls := make([]llm.ToolCall, len(calls))
	for i := range calls {
		call := calls[i]
		// Gemini does not always mint call ids; fall back to the function
		// name so results can still be matched.
		id := call.ID
		if id == "" {
			id = call.Name
		}
		toolCalls[i] = llm.ToolCall{
			ID:         id,
			Name:       call.Name,
			Parameters: call.Args,
		}
	}
	return toolCalls
}

// getStopReason extracts the finish reason from a Gemini response.
func getStopReason(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return "unknown"
	}
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonStop, "":
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	default:
		return string(result.Candidates[0].FinishReason)
	}
}
