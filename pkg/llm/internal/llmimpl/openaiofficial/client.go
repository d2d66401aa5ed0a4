// Package openaiofficial provides the OpenAI client implementation using the
// official OpenAI Go package.
package openaiofficial

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"agentcore/pkg/agenterrors"
	"agentcore/pkg/config"
	"agentcore/pkg/llm"
	"agentcore/pkg/tools"
)

// OfficialClient wraps the official OpenAI Go client to implement
// llm.LLMClient via the Responses API.
type OfficialClient struct {
	client openai.Client
	model  string
}

var _ llm.LLMClient = (*OfficialClient)(nil)

// NewOfficialClient creates a new OpenAI client using the official Go package
// (raw client, middleware applied at higher level).
func NewOfficialClient(apiKey string) llm.LLMClient {
	return NewOfficialClientWithModel(apiKey, config.ModelGPT5)
}

// NewOfficialClientWithModel creates a new OpenAI client with a specific model.
func NewOfficialClientWithModel(apiKey, model string) llm.LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OfficialClient{
		client: client,
		model:  model,
	}
}

// convertPropertyToSchema recursively converts a Property to OpenAI schema format.
func convertPropertyToSchema(prop *tools.Property) map[string]interface{} {
	schema := map[string]interface{}{
		"type":        prop.Type,
		"description": prop.Description,
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = convertPropertyToSchema(prop.Items)
	}
	if prop.Type == "object" && prop.Properties != nil {
		properties := make(map[string]interface{})
		for name, childProp := range prop.Properties {
			if childProp != nil {
				properties[name] = convertPropertyToSchema(childProp)
			}
		}
		schema["properties"] = properties
	}
	return schema
}

// flattenMessages renders the conversation as a single input string for the
// Responses API, keeping tool calls and results visible in the transcript.
func flattenMessages(messages []llm.CompletionMessage) string {
	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&b, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			if msg.Content != "" {
				fmt.Fprintf(&b, "Assistant: %s\n\n", msg.Content)
			}
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				args, err := json.Marshal(tc.Parameters)
				if err != nil {
					args = []byte("{}")
				}
				fmt.Fprintf(&b, "Assistant called tool %s (%s): %s\n\n", tc.Name, tc.ID, args)
			}
		default:
			if msg.Content != "" {
				fmt.Fprintf(&b, "%s\n\n", msg.Content)
			}
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				status := "ok"
				if tr.IsError {
					status = "error"
				}
				fmt.Fprintf(&b, "Tool result for %s (%s):\n%s\n\n", tr.ToolCallID, status, tr.Content)
			}
		}
	}
	return b.String()
}

// Complete implements the llm.LLMClient interface using the Responses API.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, agenterrors.New(agenterrors.KindValidation, "message list cannot be empty")
	}

	// Cap MaxTokens to the model's actual limit to prevent API errors.
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.MaxTokensDefault
	}
	if modelInfo, exists := config.KnownModels[o.model]; exists && modelInfo.MaxOutputTokens > 0 && maxTokens > modelInfo.MaxOutputTokens {
		maxTokens = modelInfo.MaxOutputTokens
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(flattenMessages(in.Messages))},
	}

	if len(in.Tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			properties := make(map[string]interface{})
			for name, prop := range tool.InputSchema.Properties {
				properties[name] = convertPropertyToSchema(&prop)
			}
			toolParams[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters: openai.FunctionParameters(map[string]interface{}{
						"type":       "object",
						"properties": properties,
						"required":   tool.InputSchema.Required,
					}),
				},
			}
		}
		params.Tools = toolParams
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, agenterrors.Wrap(agenterrors.Classify(err), err, "openai request failed")
	}
	if resp == nil {
		return llm.CompletionResponse{}, agenterrors.New(agenterrors.KindModelFailure, "received empty response from OpenAI Responses API").WithRetryable(true)
	}

	var toolCalls []llm.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			// Text arrives via OutputText below; reasoning items stay internal.
			continue
		}
		funcItem := item.AsFunctionCall()
		var parameters map[string]interface{}
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &parameters); err != nil {
				return llm.CompletionResponse{}, agenterrors.Wrap(agenterrors.KindModelFailure, err, fmt.Sprintf("failed to parse arguments of tool call %s", funcItem.ID))
			}
		}
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:         funcItem.ID,
			Name:       funcItem.Name,
			Parameters: parameters,
		})
	}

	return llm.CompletionResponse{
		Content:   resp.OutputText(),
		ToolCalls: toolCalls,
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Stream implements the llm.LLMClient interface by draining a Complete call
// into a two-chunk stream.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (o *OfficialClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := o.Complete(ctx, in)
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
func (o *OfficialClient) GetModelName() string {
	return o.model
}

// SupportsToolCalling reports structured tool-calling support.
func (o *OfficialClient) SupportsToolCalling() bool {
	return true
}
