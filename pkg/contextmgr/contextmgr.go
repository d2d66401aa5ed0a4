// Package contextmgr maintains the conversation history for a run: the
// ordered messages sent to the model, token accounting, and compaction
// when the history approaches the model's context window.
package contextmgr

import (
	"fmt"
	"strings"

	"agentcore/pkg/config"
	"agentcore/pkg/llm"
	"agentcore/pkg/utils"
)

// Message is one entry in the conversation history. Assistant messages
// may carry the tool calls they made; user messages may carry tool
// results being fed back.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []llm.ToolCall
	ToolResults []llm.ToolResult
}

const (
	// Conservative limits used when no model is configured.
	fallbackMaxContextTokens = 32000
	fallbackMaxReplyTokens   = 4096

	// compactionBuffer is headroom reserved on top of the reply budget so
	// compaction fires before the window is actually full.
	compactionBuffer = 1000
)

// ContextManager accumulates the conversation for one execution. It is
// not safe for concurrent use; the engine owns it for the duration of a
// run.
type ContextManager struct {
	counter          *utils.TokenCounter
	modelName        string
	messages         []Message
	maxContextTokens int
	maxReplyTokens   int
}

// NewContextManager creates a context manager with conservative token
// limits. Use NewContextManagerWithModel when the model is known so the
// limits match its real context window.
func NewContextManager() *ContextManager {
	return &ContextManager{
		counter:          newCounter(""),
		messages:         make([]Message, 0),
		maxContextTokens: fallbackMaxContextTokens,
		maxReplyTokens:   fallbackMaxReplyTokens,
	}
}

// NewContextManagerWithModel creates a context manager sized for the
// given model's context window. Unknown models keep the conservative
// fallback limits.
func NewContextManagerWithModel(modelName string) *ContextManager {
	cm := NewContextManager()
	cm.modelName = modelName
	cm.counter = newCounter(modelName)
	if info, err := config.GetModelInfo(modelName); err == nil {
		if info.MaxContextTokens > 0 {
			cm.maxContextTokens = info.MaxContextTokens
		}
		if info.MaxOutputTokens > 0 {
			cm.maxReplyTokens = info.MaxOutputTokens
		}
	}
	return cm
}

func newCounter(modelName string) *utils.TokenCounter {
	counter, err := utils.NewTokenCounter(modelName)
	if err != nil {
		// Zero-value counter falls back to a character estimate.
		return &utils.TokenCounter{}
	}
	return counter
}

// AddSystemMessage sets the system prompt as the head message. Calling
// it again replaces the existing prompt.
func (cm *ContextManager) AddSystemMessage(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if len(cm.messages) > 0 && cm.messages[0].Role == "system" {
		cm.messages[0].Content = content
		return
	}
	cm.messages = append([]Message{{Role: "system", Content: content}}, cm.messages...)
}

// AddUserMessage appends a user message. Empty content is ignored.
func (cm *ContextManager) AddUserMessage(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	cm.messages = append(cm.messages, Message{Role: "user", Content: content})
}

// AddAssistantMessage appends the model's reply along with any tool
// calls it made. A reply with no text but at least one tool call is
// still recorded.
func (cm *ContextManager) AddAssistantMessage(content string, toolCalls []llm.ToolCall) {
	content = strings.TrimSpace(content)
	if content == "" && len(toolCalls) == 0 {
		return
	}
	cm.messages = append(cm.messages, Message{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AddToolResults appends the user-side message that feeds tool results
// back to the model.
func (cm *ContextManager) AddToolResults(results []llm.ToolResult) {
	if len(results) == 0 {
		return
	}
	cm.messages = append(cm.messages, Message{Role: "user", ToolResults: results})
}

// CountTokens returns the token estimate for the whole conversation,
// including tool call payloads and tool results.
func (cm *ContextManager) CountTokens() int {
	total := 0
	for i := range cm.messages {
		total += cm.messageTokens(&cm.messages[i])
	}
	return total
}

func (cm *ContextManager) messageTokens(msg *Message) int {
	total := cm.counter.CountTokens(msg.Role) + cm.counter.CountTokens(msg.Content)
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		total += cm.counter.CountTokens(tc.Name)
		for key, value := range tc.Parameters {
			total += cm.counter.CountTokens(key)
			total += cm.counter.CountTokens(fmt.Sprintf("%v", value))
		}
	}
	for i := range msg.ToolResults {
		total += cm.counter.CountTokens(msg.ToolResults[i].Content)
	}
	return total
}

// ShouldCompact reports whether the conversation plus a full-size reply
// would overflow the context window.
func (cm *ContextManager) ShouldCompact() bool {
	return cm.CountTokens()+cm.maxReplyTokens+compactionBuffer > cm.maxContextTokens
}

// CompactIfNeeded trims the conversation when the next full-size reply
// would no longer fit.
func (cm *ContextManager) CompactIfNeeded() error {
	if !cm.ShouldCompact() {
		return nil
	}
	return cm.performCompaction(cm.maxContextTokens - cm.maxReplyTokens - compactionBuffer)
}

// performCompaction removes the oldest messages after the head until the
// conversation fits the target. The head message (the system prompt) is
// never removed. A tool-results message is dropped together with the
// assistant message that requested it so the model never sees orphaned
// results.
func (cm *ContextManager) performCompaction(targetTokens int) error {
	if len(cm.messages) <= 1 {
		return nil
	}

	for cm.CountTokens() > targetTokens && len(cm.messages) > 2 {
		removed := cm.messages[1]
		cm.messages = append(cm.messages[:1], cm.messages[2:]...)
		if len(removed.ToolCalls) > 0 && len(cm.messages) > 1 && len(cm.messages[1].ToolResults) > 0 {
			cm.messages = append(cm.messages[:1], cm.messages[2:]...)
		}
	}

	return nil
}

// GetMessages returns a copy of the conversation.
func (cm *ContextManager) GetMessages() []Message {
	result := make([]Message, len(cm.messages))
	copy(result, cm.messages)
	return result
}

// ToCompletionMessages converts the conversation into the request shape
// the llm clients accept.
func (cm *ContextManager) ToCompletionMessages() []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(cm.messages))
	for i := range cm.messages {
		msg := &cm.messages[i]
		out = append(out, llm.CompletionMessage{
			Role:        llm.CompletionRole(msg.Role),
			Content:     msg.Content,
			ToolCalls:   msg.ToolCalls,
			ToolResults: msg.ToolResults,
		})
	}
	return out
}

// Clear removes all messages from the context.
func (cm *ContextManager) Clear() {
	cm.messages = cm.messages[:0]
}

// GetMessageCount returns the number of messages in the context.
func (cm *ContextManager) GetMessageCount() int {
	return len(cm.messages)
}

// GetMaxReplyTokens returns the reply budget reserved for the model.
func (cm *ContextManager) GetMaxReplyTokens() int {
	return cm.maxReplyTokens
}

// GetMaxContextTokens returns the context window size in tokens.
func (cm *ContextManager) GetMaxContextTokens() int {
	return cm.maxContextTokens
}

// GetContextSummary returns a brief description of the context state.
func (cm *ContextManager) GetContextSummary() string {
	messageCount := len(cm.messages)
	if messageCount == 0 {
		return "Empty context"
	}

	roleCounts := make(map[string]int)
	for i := range cm.messages {
		roleCounts[cm.messages[i].Role]++
	}
	var roleBreakdown []string
	for _, role := range []string{"system", "user", "assistant"} {
		if count, ok := roleCounts[role]; ok {
			roleBreakdown = append(roleBreakdown, fmt.Sprintf("%s: %d", role, count))
		}
	}

	return fmt.Sprintf("%d messages (%d tokens) - %s",
		messageCount, cm.CountTokens(), strings.Join(roleBreakdown, ", "))
}

// GetCompactionInfo reports the context state against its compaction
// thresholds, for logging and debugging.
func (cm *ContextManager) GetCompactionInfo() map[string]any {
	currentTokens := cm.CountTokens()
	threshold := cm.maxContextTokens - cm.maxReplyTokens - compactionBuffer
	return map[string]any{
		"current_tokens":       currentTokens,
		"message_count":        len(cm.messages),
		"should_compact":       cm.ShouldCompact(),
		"max_context_tokens":   cm.maxContextTokens,
		"max_reply_tokens":     cm.maxReplyTokens,
		"compaction_buffer":    compactionBuffer,
		"compaction_threshold": threshold,
		"available_for_reply":  cm.maxContextTokens - currentTokens,
	}
}
