package converter

import (
	"encoding/json"
	"testing"

	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

func parseChatResponse(t *testing.T, payload string) *types.ChatResponse {
	t.Helper()
	var response types.ChatResponse
	if err := json.Unmarshal([]byte(payload), &response); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return &response
}

func TestConvertChatToClaude_SimpleText(t *testing.T) {
	response := parseChatResponse(t, `{
		"id":"chatcmpl_1",
		"choices":[{"message":{"content":"hello"},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":2,"completion_tokens":1}
	}`)

	claudeResponse, err := ConvertChatToClaude(response, "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if claudeResponse.Role != "assistant" || claudeResponse.Model != "claude-3-5-sonnet-20241022" {
		t.Fatalf("unexpected envelope: %#v", claudeResponse)
	}
	if len(claudeResponse.Content) != 1 || claudeResponse.Content[0].Text != "hello" {
		t.Fatalf("unexpected content: %#v", claudeResponse.Content)
	}
	if claudeResponse.StopReason != "end_turn" {
		t.Fatalf("expected end_turn, got %q", claudeResponse.StopReason)
	}
	if claudeResponse.Usage.InputTokens != 2 || claudeResponse.Usage.OutputTokens != 1 {
		t.Fatalf("unexpected usage: %#v", claudeResponse.Usage)
	}
}

func TestConvertChatToClaude_FinishReasonMapping(t *testing.T) {
	tests := []struct {
		finishReason string
		expected     string
	}{
		{"length", "max_tokens"},
		{"tool_calls", "tool_use"},
		{"function_call", "tool_use"},
		{"stop", "end_turn"},
		{"content_filter", "end_turn"},
	}

	for _, tt := range tests {
		t.Run(tt.finishReason, func(t *testing.T) {
			if mapped := MapFinishReason(tt.finishReason); mapped != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, mapped)
			}
		})
	}
}

func TestConvertChatToClaude_ToolCallWithoutIDDropped(t *testing.T) {
	response := parseChatResponse(t, `{
		"id":"chatcmpl_2",
		"choices":[{"finish_reason":"tool_calls","message":{
			"content":null,
			"tool_calls":[{"type":"function","function":{"name":"Bash","arguments":"{}"}}]
		}}]
	}`)

	claudeResponse, err := ConvertChatToClaude(response, "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 无效 tool_call 被丢弃后补一个空 text 块
	if len(claudeResponse.Content) != 1 || claudeResponse.Content[0].Type != "text" || claudeResponse.Content[0].Text != "" {
		t.Fatalf("expected single empty text block, got %#v", claudeResponse.Content)
	}
}

func TestConvertChatToClaude_ReasoningBecomesThinking(t *testing.T) {
	response := parseChatResponse(t, `{
		"id":"chatcmpl_3",
		"choices":[{"finish_reason":"stop","message":{
			"content":"done",
			"reasoning_content":"step by step",
			"signature":"sig_123"
		}}]
	}`)

	claudeResponse, err := ConvertChatToClaude(response, "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(claudeResponse.Content) != 2 {
		t.Fatalf("expected text + thinking, got %#v", claudeResponse.Content)
	}
	thinking := claudeResponse.Content[1]
	if thinking.Type != "thinking" || thinking.Thinking != "step by step" || thinking.Signature != "sig_123" {
		t.Fatalf("unexpected thinking block: %#v", thinking)
	}
}

func TestConvertChatToClaude_NonStringContentSerialized(t *testing.T) {
	response := parseChatResponse(t, `{
		"id":"chatcmpl_4",
		"choices":[{"finish_reason":"stop","message":{"content":{"odd":"shape"}}}]
	}`)

	claudeResponse, err := ConvertChatToClaude(response, "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claudeResponse.Content[0].Text != `{"odd":"shape"}` {
		t.Fatalf("non-string content should serialize, got %q", claudeResponse.Content[0].Text)
	}
}

func TestConvertChatToClaude_BadArgumentsWrapped(t *testing.T) {
	response := parseChatResponse(t, `{
		"id":"chatcmpl_5",
		"choices":[{"finish_reason":"tool_calls","message":{
			"content":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"Bash","arguments":"{not json"}}]
		}}]
	}`)

	claudeResponse, err := ConvertChatToClaude(response, "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input, ok := claudeResponse.Content[0].Input.(map[string]interface{})
	if !ok || input["raw_arguments"] != "{not json" {
		t.Fatalf("expected raw_arguments wrapper, got %#v", claudeResponse.Content[0].Input)
	}
}

func TestConvertChatToClaude_MissingIDSynthesized(t *testing.T) {
	response := parseChatResponse(t, `{
		"choices":[{"finish_reason":"stop","message":{"content":"hi"}}]
	}`)

	claudeResponse, err := ConvertChatToClaude(response, "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claudeResponse.ID) == 0 || claudeResponse.ID[:4] != "msg_" {
		t.Fatalf("expected synthesized msg_ id, got %q", claudeResponse.ID)
	}
}

func TestConvertChatToClaude_NoChoices(t *testing.T) {
	response := parseChatResponse(t, `{"id":"chatcmpl_6","choices":[]}`)
	if _, err := ConvertChatToClaude(response, "claude-3-5-sonnet-20241022"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
