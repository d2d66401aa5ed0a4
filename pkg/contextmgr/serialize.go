package contextmgr

import (
	"encoding/json"
	"fmt"

	"agentcore/pkg/config"
	"agentcore/pkg/llm"
)

// SerializedMessage is a Message in a format suitable for JSON
// serialization. All fields are explicitly typed for reliable
// round-trip behavior.
type SerializedMessage struct {
	Role        string             `json:"role"`
	Content     string             `json:"content"`
	ToolCalls   []SerializedCall   `json:"tool_calls,omitempty"`
	ToolResults []SerializedResult `json:"tool_results,omitempty"`
}

// SerializedCall is a tool call in serialized form.
type SerializedCall struct {
	Parameters map[string]any `json:"parameters,omitempty"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
}

// SerializedResult is a tool result in serialized form.
type SerializedResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// SerializedContext is the full context manager state for serialization.
type SerializedContext struct {
	Messages  []SerializedMessage `json:"messages"`
	ModelName string              `json:"model_name,omitempty"`
}

// Serialize converts the context manager state to JSON bytes.
func (cm *ContextManager) Serialize() ([]byte, error) {
	sc := SerializedContext{
		ModelName: cm.modelName,
		Messages:  make([]SerializedMessage, len(cm.messages)),
	}
	for i := range cm.messages {
		sc.Messages[i] = messageToSerialized(&cm.messages[i])
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	return data, nil
}

// Deserialize restores the context manager state from JSON bytes,
// replacing all existing state. Token limits are re-derived from the
// restored model name.
func (cm *ContextManager) Deserialize(data []byte) error {
	var sc SerializedContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("failed to unmarshal context: %w", err)
	}

	cm.modelName = sc.ModelName
	cm.counter = newCounter(sc.ModelName)
	cm.maxContextTokens = fallbackMaxContextTokens
	cm.maxReplyTokens = fallbackMaxReplyTokens
	if sc.ModelName != "" {
		if info, err := config.GetModelInfo(sc.ModelName); err == nil {
			if info.MaxContextTokens > 0 {
				cm.maxContextTokens = info.MaxContextTokens
			}
			if info.MaxOutputTokens > 0 {
				cm.maxReplyTokens = info.MaxOutputTokens
			}
		}
	}

	cm.messages = make([]Message, len(sc.Messages))
	for i := range sc.Messages {
		cm.messages[i] = serializedToMessage(&sc.Messages[i])
	}

	return nil
}

//nolint:dupl // Serialize/deserialize pairs necessarily have similar structure.
func messageToSerialized(msg *Message) SerializedMessage {
	sm := SerializedMessage{
		Role:    msg.Role,
		Content: msg.Content,
	}

	if len(msg.ToolCalls) > 0 {
		sm.ToolCalls = make([]SerializedCall, len(msg.ToolCalls))
		for i := range msg.ToolCalls {
			tc := &msg.ToolCalls[i]
			sm.ToolCalls[i] = SerializedCall{
				ID:         tc.ID,
				Name:       tc.Name,
				Parameters: tc.Parameters,
			}
		}
	}

	if len(msg.ToolResults) > 0 {
		sm.ToolResults = make([]SerializedResult, len(msg.ToolResults))
		for i := range msg.ToolResults {
			tr := &msg.ToolResults[i]
			sm.ToolResults[i] = SerializedResult{
				ToolCallID: tr.ToolCallID,
				Content:    tr.Content,
				IsError:    tr.IsError,
			}
		}
	}

	return sm
}

//nolint:dupl // Serialize/deserialize pairs necessarily have similar structure.
func serializedToMessage(sm *SerializedMessage) Message {
	msg := Message{
		Role:    sm.Role,
		Content: sm.Content,
	}

	if len(sm.ToolCalls) > 0 {
		msg.ToolCalls = make([]llm.ToolCall, len(sm.ToolCalls))
		for i := range sm.ToolCalls {
			sc := &sm.ToolCalls[i]
			msg.ToolCalls[i] = llm.ToolCall{
				ID:         sc.ID,
				Name:       sc.Name,
				Parameters: sc.Parameters,
			}
		}
	}

	if len(sm.ToolResults) > 0 {
		msg.ToolResults = make([]llm.ToolResult, len(sm.ToolResults))
		for i := range sm.ToolResults {
			sr := &sm.ToolResults[i]
			msg.ToolResults[i] = llm.ToolResult{
				ToolCallID: sr.ToolCallID,
				Content:    sr.Content,
				IsError:    sr.IsError,
			}
		}
	}

	return msg
}
