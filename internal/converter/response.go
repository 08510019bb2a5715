package converter

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// ConvertChatToClaude 将 Chat Completions 响应转换为 Claude 响应（非流式）
func ConvertChatToClaude(chatResponse *types.ChatResponse, originalModel string) (*types.ClaudeResponse, error) {
	if len(chatResponse.Choices) == 0 {
		return nil, fmt.Errorf("no choices in upstream response")
	}
	choice := chatResponse.Choices[0]
	if choice.Message == nil {
		return nil, fmt.Errorf("missing message in upstream choice")
	}

	var content []types.ClaudeResponseBlock
	appendMessageContent(choice.Message, &content)
	appendThinkingContent(choice.Message, &content)
	for _, call := range choice.Message.ToolCalls {
		if block, ok := mapToolCallBlock(call); ok {
			content = append(content, block)
		}
	}
	if len(content) == 0 {
		// Claude 客户端期望至少一个内容块
		content = append(content, types.NewTextBlock(""))
	}

	finishReason := choice.FinishReason
	if finishReason == "" {
		finishReason = "stop"
	}

	usage := types.Usage{}
	if chatResponse.Usage != nil {
		usage.InputTokens = chatResponse.Usage.PromptTokens
		usage.OutputTokens = chatResponse.Usage.CompletionTokens
	}

	return buildClaudeResponse(chatResponse.ID, originalModel, content, MapFinishReason(finishReason), usage), nil
}

// appendMessageContent string 直接用，非 null 的其他 JSON 序列化后当文本
func appendMessageContent(message *types.ChatResponseMessage, content *[]types.ClaudeResponseBlock) {
	raw := message.Content
	if len(raw) == 0 || string(raw) == "null" {
		return
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text != "" {
			*content = append(*content, types.NewTextBlock(text))
		}
		return
	}
	*content = append(*content, types.NewTextBlock(string(raw)))
}

// appendThinkingContent reasoning_content 优先于 reasoning
func appendThinkingContent(message *types.ChatResponseMessage, content *[]types.ClaudeResponseBlock) {
	thinking := message.ReasoningContent
	if thinking == "" {
		thinking = message.Reasoning
	}
	if thinking == "" {
		return
	}
	*content = append(*content, types.NewThinkingBlock(thinking, message.Signature))
}

// mapToolCallBlock 仅接受 function 类型且 id 非空的 tool_call
func mapToolCallBlock(call types.ChatToolCall) (types.ClaudeResponseBlock, bool) {
	if call.Type != types.ToolFunction {
		log.Printf("⚠️ [drop_tool_use] reason=unsupported_tool_call_type type=%s tool_call_id=%s", call.Type, call.ID)
		return types.ClaudeResponseBlock{}, false
	}

	toolCallID := strings.TrimSpace(call.ID)
	if toolCallID == "" {
		log.Printf("⚠️ [drop_tool_use] reason=empty_tool_call_id")
		return types.ClaudeResponseBlock{}, false
	}

	return types.NewToolUseBlock(toolCallID, call.Function.Name, ParseToolArguments(call.Function.Arguments)), true
}

// ParseToolArguments arguments 解析失败时包成 raw_arguments 对象
func ParseToolArguments(arguments string) interface{} {
	if arguments == "" {
		arguments = "{}"
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
		return map[string]interface{}{"raw_arguments": arguments}
	}
	return parsed
}

// MapFinishReason 上游 finish_reason → Claude stop_reason
func MapFinishReason(finishReason string) string {
	switch finishReason {
	case "length":
		return types.StopMaxTokens
	case "tool_calls", "function_call":
		return types.StopToolUse
	default:
		return types.StopEndTurn
	}
}

// MapResponsesIncompleteReason Responses incomplete_details.reason → stop_reason
func MapResponsesIncompleteReason(reason string) string {
	switch reason {
	case "max_output_tokens":
		return types.StopMaxTokens
	case "tool_use", "function_call":
		return types.StopToolUse
	default:
		return types.StopEndTurn
	}
}

func buildClaudeResponse(id, model string, content []types.ClaudeResponseBlock, stopReason string, usage types.Usage) *types.ClaudeResponse {
	if id == "" {
		id = NewMessageID()
	}
	return &types.ClaudeResponse{
		ID:         id,
		Type:       "message",
		Role:       types.RoleAssistant,
		Model:      model,
		Content:    content,
		StopReason: stopReason,
		Usage:      usage,
	}
}

// NewMessageID 合成消息 id：msg_ 前缀 + uuid 前 24 位
func NewMessageID() string {
	compact := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "msg_" + compact[:24]
}
