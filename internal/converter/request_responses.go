package converter

import (
	"strings"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// ConvertClaudeToResponses 将 Claude Messages 请求转换为 Responses API 请求
// 先走 Chat 转换，再改写为 Responses 形态，保证两条路径语义一致
func ConvertClaudeToResponses(request *types.ClaudeMessagesRequest, cfg *config.Config) *types.ResponsesRequest {
	chatRequest := ConvertClaudeToChat(request, cfg)
	return rewriteChatToResponses(chatRequest)
}

func rewriteChatToResponses(chatRequest *types.ChatRequest) *types.ResponsesRequest {
	var input []types.ResponsesInputItem
	var instructions []string

	for _, message := range chatRequest.Messages {
		switch message.Role {
		case types.RoleSystem:
			appendInstruction(&instructions, message.Content)
		case types.RoleUser:
			input = append(input, types.ResponsesInputItem{
				Type:    "message",
				Role:    types.RoleUser,
				Content: rewriteUserContent(message.Content),
			})
		case types.RoleAssistant:
			appendAssistantItems(&input, message)
		case types.RoleTool:
			output, _ := message.Content.(string)
			input = append(input, types.ResponsesInputItem{
				Type:   "function_call_output",
				CallID: message.ToolCallID,
				Output: output,
			})
		}
	}

	responsesRequest := &types.ResponsesRequest{
		Model:           chatRequest.Model,
		Input:           input,
		Instructions:    strings.Join(instructions, "\n\n"),
		MaxOutputTokens: chatRequest.MaxTokens,
		Temperature:     &chatRequest.Temperature,
		TopP:            chatRequest.TopP,
		Stop:            chatRequest.Stop,
		Stream:          chatRequest.Stream,
	}

	if chatRequest.ReasoningEffort != "" {
		responsesRequest.Reasoning = &types.ResponsesReasoning{Effort: chatRequest.ReasoningEffort}
	}
	responsesRequest.Tools = rewriteTools(chatRequest.Tools)
	responsesRequest.ToolChoice = rewriteToolChoice(chatRequest.ToolChoice)

	return responsesRequest
}

func appendInstruction(instructions *[]string, content interface{}) {
	text, _ := content.(string)
	if strings.TrimSpace(text) == "" {
		return
	}
	*instructions = append(*instructions, text)
}

// rewriteUserContent text/image_url 分片映射为 input_text/input_image
func rewriteUserContent(content interface{}) interface{} {
	switch typed := content.(type) {
	case string:
		return typed
	case []types.ChatContentPart:
		parts := make([]types.ResponsesContentPart, 0, len(typed))
		for _, part := range typed {
			switch part.Type {
			case "text":
				parts = append(parts, types.ResponsesContentPart{Type: "input_text", Text: part.Text})
			case "image_url":
				if part.ImageURL != nil {
					parts = append(parts, types.ResponsesContentPart{Type: "input_image", ImageURL: part.ImageURL.URL})
				}
			}
		}
		return parts
	default:
		return ""
	}
}

// appendAssistantItems 文本和工具调用各自成为独立的 input 条目
func appendAssistantItems(input *[]types.ResponsesInputItem, message types.ChatMessage) {
	if text, ok := message.Content.(string); ok {
		trimmed := strings.TrimSpace(text)
		if trimmed != "" {
			*input = append(*input, types.ResponsesInputItem{
				Type:    "message",
				Role:    types.RoleAssistant,
				Content: trimmed,
			})
		}
	}

	for _, call := range message.ToolCalls {
		*input = append(*input, types.ResponsesInputItem{
			Type:      "function_call",
			CallID:    call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
}

// rewriteTools 去掉 function 外层包装
func rewriteTools(tools []types.ChatTool) []types.ResponsesTool {
	var rewritten []types.ResponsesTool
	for _, tool := range tools {
		rewritten = append(rewritten, types.ResponsesTool{
			Type:        types.ToolFunction,
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
		})
	}
	return rewritten
}

func rewriteToolChoice(choice interface{}) interface{} {
	switch typed := choice.(type) {
	case string:
		return typed
	case types.ChatNamedToolChoice:
		return types.ResponsesNamedToolChoice{Type: types.ToolFunction, Name: typed.Function.Name}
	default:
		return nil
	}
}
