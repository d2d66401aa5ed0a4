// Package anthropic provides the Anthropic Claude client implementation for
// the LLM interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"agentcore/pkg/agenterrors"
	"agentcore/pkg/config"
	"agentcore/pkg/llm"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

var _ llm.LLMClient = (*ClaudeClient)(nil)

// NewClaudeClient creates a new Claude client wrapper (raw client, middleware
// applied at higher level).
func NewClaudeClient(apiKey string) llm.LLMClient {
	return NewClaudeClientWithModel(apiKey, config.ModelClaudeSonnetLatest)
}

// NewClaudeClientWithModel creates a new Claude client with a specific model.
func NewClaudeClientWithModel(apiKey, model string) llm.LLMClient {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeClient{
		client: client,
		model:  anthropic.Model(model),
	}
}

// renderMessageText flattens a message into plain text. Structured tool calls
// and tool results are rendered inline: the Anthropic request then carries a
// pure text transcript, and tool_use only appears in responses, where it is
// parsed back into structured calls.
func renderMessageText(msg *llm.CompletionMessage) string {
	var parts []string
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		args, err := json.Marshal(tc.Parameters)
		if err != nil {
			args = []byte("{}")
		}
		parts = append(parts, fmt.Sprintf("[tool call %s] %s(%s)", tc.ID, tc.Name, args))
	}
	for i := range msg.ToolResults {
		tr := &msg.ToolResults[i]
		status := "ok"
		if tr.IsError {
			status = "error"
		}
		parts = append(parts, fmt.Sprintf("[tool result %s, %s]\n%s", tr.ToolCallID, status, tr.Content))
	}
	return strings.Join(parts, "\n\n")
}

// prepareMessages extracts system messages into the top-level system prompt
// and merges the rest into a strictly alternating user/assistant sequence
// ending with a user message, as the Anthropic API requires. Consecutive
// non-assistant messages collapse into one user message; the cache control of
// the last collapsed message wins because Anthropic only caches the final
// block.
func prepareMessages(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var userParts []string
	var userCache *llm.CacheControl

	flushUser := func() {
		if len(userParts) == 0 {
			return
		}
		alternating = append(alternating, llm.CompletionMessage{
			Role:         llm.RoleUser,
			Content:      strings.Join(userParts, "\n\n"),
			CacheControl: userCache,
		})
		userParts = nil
		userCache = nil
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case llm.RoleAssistant:
			flushUser()
			if len(alternating) == 0 || alternating[len(alternating)-1].Role == llm.RoleAssistant {
				return "", nil, fmt.Errorf("alternation violation: assistant message at index %d has no preceding user message", i)
			}
			alternating = append(alternating, llm.CompletionMessage{
				Role:         llm.RoleAssistant,
				Content:      renderMessageText(msg),
				CacheControl: msg.CacheControl,
			})
		default:
			userParts = append(userParts, renderMessageText(msg))
			if msg.CacheControl != nil {
				userCache = msg.CacheControl
			}
		}
	}
	flushUser()

	if len(alternating) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if last := &alternating[len(alternating)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}

	return strings.Join(systemParts, "\n\n"), alternating, nil
}

// toTextBlock builds a content block carrying optional prompt-caching markers.
func toTextBlock(msg *llm.CompletionMessage) anthropic.ContentBlockParamUnion {
	if msg.CacheControl == nil {
		return anthropic.NewTextBlock(msg.Content)
	}

	cacheControl := anthropic.NewCacheControlEphemeralParam()
	switch msg.CacheControl.TTL {
	case "5m":
		cacheControl.TTL = anthropic.CacheControlEphemeralTTLTTL5m
	case "1h":
		cacheControl.TTL = anthropic.CacheControlEphemeralTTLTTL1h
	}

	textBlock := anthropic.TextBlockParam{
		Text:         msg.Content,
		Type:         "text",
		CacheControl: cacheControl,
	}
	block := anthropic.ContentBlockParamUnion{}
	block.OfText = &textBlock
	return block
}

// toToolParams converts tool definitions into the Anthropic tool schema.
func toToolParams(in *llm.CompletionRequest) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(in.Tools))
	for i := range in.Tools {
		tool := &in.Tools[i]

		var properties any
		if len(tool.InputSchema.Properties) > 0 {
			props := make(map[string]any, len(tool.InputSchema.Properties))
			for name := range tool.InputSchema.Properties {
				prop := tool.InputSchema.Properties[name]
				propMap := map[string]any{"type": prop.Type}
				if prop.Description != "" {
					propMap["description"] = prop.Description
				}
				if len(prop.Enum) > 0 {
					propMap["enum"] = prop.Enum
				}
				props[name] = propMap
			}
			properties = props
		}

		toolParam := anthropic.ToolParam{
			Name: tool.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   tool.InputSchema.Required,
			},
		}
		tools = append(tools, anthropic.ToolUnionParamOfTool(toolParam.InputSchema, toolParam.Name))
	}
	return tools
}

// toToolChoice maps the request's tool choice onto the Anthropic union type.
func toToolChoice(choice string) anthropic.ToolChoiceUnionParam {
	switch choice {
	case "any", "tool":
		// "tool" would need a tool name parameter; forcing any call is the
		// closest supported behavior.
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := prepareMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, agenterrors.Wrap(agenterrors.KindValidation, err, "message alternation error")
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{toTextBlock(msg)},
		})
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.MaxTokensDefault
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}
	if len(in.Tools) > 0 {
		params.Tools = toToolParams(&in)
		params.ToolChoice = toToolChoice(in.ToolChoice)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, agenterrors.Wrap(agenterrors.Classify(err), err, "anthropic request failed")
	}
	if resp == nil || len(resp.Content) == 0 {
		// An empty body is a model-side hiccup worth one more attempt.
		return llm.CompletionResponse{}, agenterrors.New(agenterrors.KindModelFailure, "received empty response from Anthropic API").WithRetryable(true)
	}

	var responseText string
	var toolCalls []llm.ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			responseText += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return llm.CompletionResponse{}, agenterrors.Wrap(agenterrors.KindModelFailure, err, fmt.Sprintf("failed to parse input of tool call %s", toolUse.ID))
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:         toolUse.ID,
				Name:       toolUse.Name,
				Parameters: args,
			})
		}
	}

	return llm.CompletionResponse{
		Content:    responseText,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// Stream implements the llm.LLMClient interface by draining a Complete call
// into a two-chunk stream.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (c *ClaudeClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
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
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// SupportsToolCalling reports structured tool-calling support.
func (c *ClaudeClient) SupportsToolCalling() bool {
	return true
}
