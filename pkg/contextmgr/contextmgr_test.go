package contextmgr

import (
	"strings"
	"testing"

	"agentcore/pkg/config"
	"agentcore/pkg/llm"
)

func TestNewContextManager(t *testing.T) {
	cm := NewContextManager()

	if cm == nil {
		t.Fatal("Expected NewContextManager to return non-nil instance")
	}

	if cm.GetMessageCount() != 0 {
		t.Errorf("Expected new context manager to have 0 messages, got %d", cm.GetMessageCount())
	}

	if cm.CountTokens() != 0 {
		t.Errorf("Expected new context manager to have 0 tokens, got %d", cm.CountTokens())
	}

	if cm.GetMaxContextTokens() != fallbackMaxContextTokens {
		t.Errorf("Expected fallback max context tokens %d, got %d",
			fallbackMaxContextTokens, cm.GetMaxContextTokens())
	}

	if cm.GetMaxReplyTokens() != fallbackMaxReplyTokens {
		t.Errorf("Expected fallback max reply tokens %d, got %d",
			fallbackMaxReplyTokens, cm.GetMaxReplyTokens())
	}
}

func TestNewContextManagerWithModel(t *testing.T) {
	cm := NewContextManagerWithModel(config.ModelClaudeSonnet4)

	info, err := config.GetModelInfo(config.ModelClaudeSonnet4)
	if err != nil {
		t.Fatalf("GetModelInfo failed: %v", err)
	}

	if cm.GetMaxContextTokens() != info.MaxContextTokens {
		t.Errorf("Expected max context tokens %d, got %d",
			info.MaxContextTokens, cm.GetMaxContextTokens())
	}

	if cm.GetMaxReplyTokens() != info.MaxOutputTokens {
		t.Errorf("Expected max reply tokens %d, got %d",
			info.MaxOutputTokens, cm.GetMaxReplyTokens())
	}
}

func TestNewContextManagerWithUnknownModel(t *testing.T) {
	cm := NewContextManagerWithModel("totally-unknown-model")

	if cm.GetMaxContextTokens() != fallbackMaxContextTokens {
		t.Errorf("Expected fallback max context tokens for unknown model, got %d",
			cm.GetMaxContextTokens())
	}

	if cm.GetMaxReplyTokens() != fallbackMaxReplyTokens {
		t.Errorf("Expected fallback max reply tokens for unknown model, got %d",
			cm.GetMaxReplyTokens())
	}
}

func TestAddMessages(t *testing.T) {
	cm := NewContextManager()

	cm.AddUserMessage("Hello world")

	if cm.GetMessageCount() != 1 {
		t.Fatalf("Expected 1 message after adding, got %d", cm.GetMessageCount())
	}

	messages := cm.GetMessages()
	if messages[0].Role != "user" {
		t.Errorf("Expected role 'user', got '%s'", messages[0].Role)
	}
	if messages[0].Content != "Hello world" {
		t.Errorf("Expected content 'Hello world', got '%s'", messages[0].Content)
	}

	cm.AddAssistantMessage("Hi there!", nil)

	messages = cm.GetMessages()
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[1].Role != "assistant" {
		t.Errorf("Expected second role 'assistant', got '%s'", messages[1].Role)
	}
	if messages[1].Content != "Hi there!" {
		t.Errorf("Expected second content 'Hi there!', got '%s'", messages[1].Content)
	}
}

func TestAddMessageValidation(t *testing.T) {
	cm := NewContextManager()

	// Empty and whitespace-only content is ignored.
	cm.AddUserMessage("")
	cm.AddUserMessage("   \n\t  ")
	cm.AddAssistantMessage("", nil)
	cm.AddSystemMessage("  ")
	cm.AddToolResults(nil)

	if cm.GetMessageCount() != 0 {
		t.Errorf("Empty messages should be ignored, got %d messages", cm.GetMessageCount())
	}

	// Content is trimmed.
	cm.AddUserMessage("  trimmed content  ")
	messages := cm.GetMessages()
	if messages[0].Content != "trimmed content" {
		t.Errorf("Content should be trimmed, got '%s'", messages[0].Content)
	}

	// An assistant message with no text but at least one tool call is
	// still recorded.
	cm.AddAssistantMessage("", []llm.ToolCall{{ID: "call-1", Name: "shell"}})
	messages = cm.GetMessages()
	if len(messages) != 2 {
		t.Fatalf("Expected tool-call-only assistant message to be recorded, got %d messages", len(messages))
	}
	if len(messages[1].ToolCalls) != 1 {
		t.Errorf("Expected 1 tool call on assistant message, got %d", len(messages[1].ToolCalls))
	}
}

func TestAddSystemMessage(t *testing.T) {
	cm := NewContextManager()

	cm.AddUserMessage("Hello")
	cm.AddSystemMessage("You are a helpful assistant")

	messages := cm.GetMessages()
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("Expected system message at head, got role '%s'", messages[0].Role)
	}

	// A second call replaces the prompt instead of stacking.
	cm.AddSystemMessage("You are a coding assistant")
	messages = cm.GetMessages()
	if len(messages) != 2 {
		t.Errorf("Expected system prompt replacement, got %d messages", len(messages))
	}
	if messages[0].Content != "You are a coding assistant" {
		t.Errorf("Expected replaced system prompt, got '%s'", messages[0].Content)
	}
}

func TestCountTokens(t *testing.T) {
	cm := NewContextManager()

	if cm.CountTokens() != 0 {
		t.Errorf("Expected 0 tokens for empty context, got %d", cm.CountTokens())
	}

	cm.AddUserMessage("Write a function that parses YAML frontmatter")
	afterUser := cm.CountTokens()
	if afterUser <= 0 {
		t.Errorf("Expected positive token count after user message, got %d", afterUser)
	}

	cm.AddAssistantMessage("I'll write that now", []llm.ToolCall{
		{
			ID:         "call-1",
			Name:       "write_file",
			Parameters: map[string]any{"path": "parser.go", "content": "package parser"},
		},
	})
	afterAssistant := cm.CountTokens()
	if afterAssistant <= afterUser {
		t.Errorf("Expected token count to grow with tool call payload, got %d -> %d",
			afterUser, afterAssistant)
	}

	cm.AddToolResults([]llm.ToolResult{
		{ToolCallID: "call-1", Content: "wrote 14 bytes to parser.go"},
	})
	afterResults := cm.CountTokens()
	if afterResults <= afterAssistant {
		t.Errorf("Expected token count to grow with tool results, got %d -> %d",
			afterAssistant, afterResults)
	}
}

func TestGetMessagesReturnsCopy(t *testing.T) {
	cm := NewContextManager()
	cm.AddUserMessage("Hello")
	cm.AddAssistantMessage("Hi", nil)

	messages := cm.GetMessages()
	messages[0].Content = "Modified"

	original := cm.GetMessages()
	if original[0].Content != "Hello" {
		t.Errorf("GetMessages should return a copy, original content became '%s'", original[0].Content)
	}
}

func TestClear(t *testing.T) {
	cm := NewContextManager()
	cm.AddUserMessage("Hello")
	cm.AddAssistantMessage("Hi", nil)

	cm.Clear()

	if cm.GetMessageCount() != 0 {
		t.Errorf("Expected 0 messages after clear, got %d", cm.GetMessageCount())
	}
	if cm.CountTokens() != 0 {
		t.Errorf("Expected 0 tokens after clear, got %d", cm.CountTokens())
	}
}

func TestGetContextSummary(t *testing.T) {
	cm := NewContextManager()

	summary := cm.GetContextSummary()
	if summary != "Empty context" {
		t.Errorf("Expected 'Empty context' for empty manager, got '%s'", summary)
	}

	cm.AddSystemMessage("You are a helpful assistant")
	cm.AddUserMessage("Hello")
	cm.AddAssistantMessage("Hi", nil)
	cm.AddUserMessage("How are you?")

	summary = cm.GetContextSummary()
	if !strings.Contains(summary, "4 messages") {
		t.Errorf("Expected summary to contain '4 messages', got '%s'", summary)
	}
	if !strings.Contains(summary, "user: 2") {
		t.Errorf("Expected summary to contain 'user: 2', got '%s'", summary)
	}
	if !strings.Contains(summary, "assistant: 1") {
		t.Errorf("Expected summary to contain 'assistant: 1', got '%s'", summary)
	}
	if !strings.Contains(summary, "system: 1") {
		t.Errorf("Expected summary to contain 'system: 1', got '%s'", summary)
	}
}

func TestShouldCompact(t *testing.T) {
	cm := NewContextManager()
	cm.AddUserMessage("Short message")

	if cm.ShouldCompact() {
		t.Error("Expected ShouldCompact to return false for a short conversation")
	}

	// Shrink the window until the conversation sits exactly at the
	// threshold, then push it one token over.
	cm.maxReplyTokens = 50
	cm.maxContextTokens = cm.CountTokens() + cm.maxReplyTokens + compactionBuffer

	if cm.ShouldCompact() {
		t.Error("Expected ShouldCompact to return false exactly at the threshold")
	}

	cm.maxContextTokens--

	if !cm.ShouldCompact() {
		t.Errorf("Expected ShouldCompact to return true with %d tokens against window %d",
			cm.CountTokens(), cm.maxContextTokens)
	}
}

func TestCompactIfNeededUnderThreshold(t *testing.T) {
	cm := NewContextManager()
	cm.AddUserMessage("Hello")
	cm.AddAssistantMessage("Hi", nil)

	if err := cm.CompactIfNeeded(); err != nil {
		t.Errorf("Expected CompactIfNeeded to not return error, got %v", err)
	}

	if cm.GetMessageCount() != 2 {
		t.Errorf("Expected messages to remain under threshold, got %d", cm.GetMessageCount())
	}
}

func TestCompactionPreservesHead(t *testing.T) {
	cm := NewContextManager()

	cm.AddSystemMessage("You are a helpful assistant")
	cm.AddUserMessage("Hello")
	cm.AddAssistantMessage("Hi there!", nil)
	cm.AddUserMessage("How are you?")
	cm.AddAssistantMessage("I'm doing well!", nil)

	if cm.GetMessageCount() != 5 {
		t.Fatalf("Expected 5 messages initially, got %d", cm.GetMessageCount())
	}

	// Force aggressive compaction with a very low target.
	if err := cm.performCompaction(1); err != nil {
		t.Fatalf("Compaction failed: %v", err)
	}

	messages := cm.GetMessages()
	if len(messages) < 2 {
		t.Fatalf("Compaction removed too many messages, got %d", len(messages))
	}

	if messages[0].Role != "system" || messages[0].Content != "You are a helpful assistant" {
		t.Errorf("Head message was not preserved: role=%s, content=%s",
			messages[0].Role, messages[0].Content)
	}

	// The newest message survives.
	last := messages[len(messages)-1]
	if last.Content != "I'm doing well!" {
		t.Errorf("Expected newest message to survive compaction, got '%s'", last.Content)
	}
}

func TestCompactionDropsOrphanedToolResults(t *testing.T) {
	cm := NewContextManager()

	cm.AddSystemMessage("You are a coding assistant")
	cm.AddAssistantMessage("Checking the directory", []llm.ToolCall{
		{ID: "call-1", Name: "list_dir", Parameters: map[string]any{"path": "."}},
	})
	cm.AddToolResults([]llm.ToolResult{
		{ToolCallID: "call-1", Content: "main.go\nparser.go"},
	})
	cm.AddUserMessage("Now read main.go")
	cm.AddAssistantMessage("Reading it", nil)

	if err := cm.performCompaction(1); err != nil {
		t.Fatalf("Compaction failed: %v", err)
	}

	// The tool-results message must not survive its paired tool-call
	// message.
	for i, msg := range cm.GetMessages() {
		if len(msg.ToolResults) > 0 && i > 0 {
			prev := cm.GetMessages()[i-1]
			if len(prev.ToolCalls) == 0 {
				t.Errorf("Message %d carries tool results without a preceding tool-call message", i)
			}
		}
	}

	messages := cm.GetMessages()
	if messages[0].Role != "system" {
		t.Errorf("Head message was not preserved, got role '%s'", messages[0].Role)
	}
}

func TestToCompletionMessages(t *testing.T) {
	cm := NewContextManager()

	cm.AddSystemMessage("You are a coding assistant")
	cm.AddUserMessage("List the files")
	cm.AddAssistantMessage("Listing now", []llm.ToolCall{
		{ID: "call-1", Name: "list_dir", Parameters: map[string]any{"path": "."}},
	})
	cm.AddToolResults([]llm.ToolResult{
		{ToolCallID: "call-1", Content: "main.go"},
	})

	completions := cm.ToCompletionMessages()
	if len(completions) != 4 {
		t.Fatalf("Expected 4 completion messages, got %d", len(completions))
	}

	if completions[0].Role != llm.RoleSystem {
		t.Errorf("Expected first role system, got '%s'", completions[0].Role)
	}
	if completions[2].Role != llm.RoleAssistant {
		t.Errorf("Expected third role assistant, got '%s'", completions[2].Role)
	}
	if len(completions[2].ToolCalls) != 1 || completions[2].ToolCalls[0].Name != "list_dir" {
		t.Errorf("Expected tool call to carry over, got %+v", completions[2].ToolCalls)
	}
	if completions[3].Role != llm.RoleUser {
		t.Errorf("Expected tool results on a user message, got role '%s'", completions[3].Role)
	}
	if len(completions[3].ToolResults) != 1 || completions[3].ToolResults[0].ToolCallID != "call-1" {
		t.Errorf("Expected tool result to carry over, got %+v", completions[3].ToolResults)
	}
}

func TestGetCompactionInfo(t *testing.T) {
	cm := NewContextManagerWithModel(config.ModelClaudeSonnet4)
	cm.AddUserMessage("Test message")

	info := cm.GetCompactionInfo()

	for _, key := range []string{
		"current_tokens", "message_count", "should_compact",
		"max_context_tokens", "max_reply_tokens", "compaction_threshold",
	} {
		if _, exists := info[key]; !exists {
			t.Errorf("Expected %s in compaction info", key)
		}
	}

	if maxContext, ok := info["max_context_tokens"].(int); !ok || maxContext <= 0 {
		t.Errorf("Expected positive max_context_tokens, got %v", info["max_context_tokens"])
	}
}
