package converter

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// ConvertClaudeToChat 将 Claude Messages 请求转换为 OpenAI Chat Completions 请求
// 纯转换：同样的输入总是产生同样的输出
func ConvertClaudeToChat(request *types.ClaudeMessagesRequest, cfg *config.Config) *types.ChatRequest {
	routing := cfg.Routing()
	mappedModel := MapClaudeModel(request.Model, routing)
	if cfg.ShouldLog("info") {
		log.Printf("模型路由: claude_model=%s -> upstream_model=%s", request.Model, mappedModel)
	}

	messages := make([]types.ChatMessage, 0, len(request.Messages)+1)
	appendSystemMessage(request.System, &messages)
	convertMessageList(request.Messages, &messages, routing.DebugToolIDMatching)

	temperature := 1.0
	if request.Temperature != nil {
		temperature = *request.Temperature
	}

	chatRequest := &types.ChatRequest{
		Model:       mappedModel,
		Messages:    messages,
		MaxTokens:   boundMaxTokens(request.MaxTokens, cfg),
		Temperature: temperature,
		Stream:      request.Stream,
		Stop:        request.StopSequences,
		TopP:        request.TopP,
	}

	if effort := DeriveReasoningEffort(mappedModel, request.Thinking, request.MaxTokens, routing.MinThinkingLevel); effort != "" {
		chatRequest.ReasoningEffort = effort
	}

	chatRequest.Tools = convertTools(request.Tools)
	chatRequest.ToolChoice = convertToolChoice(request.ToolChoice)

	return chatRequest
}

// boundMaxTokens 默认透传，仅在配置了上限时收拢到 [min, max]
func boundMaxTokens(maxTokens int, cfg *config.Config) int {
	if cfg.MaxTokensLimit <= 0 {
		return maxTokens
	}
	if maxTokens > cfg.MaxTokensLimit {
		return cfg.MaxTokensLimit
	}
	if maxTokens < cfg.MinTokensLimit {
		return cfg.MinTokensLimit
	}
	return maxTokens
}

// appendSystemMessage 最多产生一条 system 消息：text 块用空行拼接，空内容不产生
func appendSystemMessage(system *types.ClaudeSystem, messages *[]types.ChatMessage) {
	if system == nil {
		return
	}
	systemText := strings.TrimSpace(extractSystemText(system))
	if systemText == "" {
		return
	}
	*messages = append(*messages, types.ChatMessage{Role: types.RoleSystem, Content: systemText})
}

func extractSystemText(system *types.ClaudeSystem) string {
	if system.Text != nil {
		return *system.Text
	}
	if system.Blocks != nil {
		parts := make([]string, 0, len(system.Blocks))
		for _, block := range system.Blocks {
			if block.Type == types.ContentText && block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		return strings.Join(parts, "\n\n")
	}
	// 不透明形态：无法提取文本
	return ""
}

// convertMessageList 逐条转换消息，同时维护已发出的 tool_call id 集合
// 上游会拒绝找不到对应 tool_call 的 tool 消息，孤儿 tool_result 必须在这里拦下
func convertMessageList(claudeMessages []types.ClaudeMessage, messages *[]types.ChatMessage, debugToolIDs bool) {
	emittedToolIDs := map[string]bool{}

	for _, message := range claudeMessages {
		switch strings.ToLower(message.Role) {
		case types.RoleUser:
			convertUserMessage(message, messages, emittedToolIDs, debugToolIDs)
		case types.RoleAssistant:
			convertAssistantMessage(message, messages, emittedToolIDs)
		default:
			// system 走顶层 system 字段，其余角色没有上游对应物
			log.Printf("⚠️ [drop_message] reason=unsupported_role role=%s", message.Role)
		}
	}
}

// convertUserMessage 处理用户消息
// 带 tool_result 的消息拆成两段：先每个有效 tool_result 一条 tool 消息，
// 剩余非 tool_result 内容再合成一条 user 消息
func convertUserMessage(message types.ClaudeMessage, messages *[]types.ChatMessage, emittedToolIDs map[string]bool, debugToolIDs bool) {
	content := message.Content

	if content.Text != nil {
		*messages = append(*messages, types.ChatMessage{Role: types.RoleUser, Content: *content.Text})
		return
	}

	if content.Blocks == nil {
		*messages = append(*messages, types.ChatMessage{Role: types.RoleUser, Content: ""})
		return
	}

	var rest []types.ClaudeContentBlock
	for _, block := range content.Blocks {
		if block.Type != types.ContentToolResult {
			rest = append(rest, block)
			continue
		}
		appendToolResultMessage(block, messages, emittedToolIDs, debugToolIDs)
	}

	if len(rest) == 0 {
		if len(content.Blocks) == 0 {
			*messages = append(*messages, types.ChatMessage{Role: types.RoleUser, Content: ""})
		}
		return
	}

	parts := convertUserBlocks(rest)
	if text, ok := singleTextPart(parts); ok {
		*messages = append(*messages, types.ChatMessage{Role: types.RoleUser, Content: text})
		return
	}
	*messages = append(*messages, types.ChatMessage{Role: types.RoleUser, Content: parts})
}

// appendToolResultMessage 校验 tool_use_id 后产出 tool 消息
func appendToolResultMessage(block types.ClaudeContentBlock, messages *[]types.ChatMessage, emittedToolIDs map[string]bool, debugToolIDs bool) {
	toolUseID := strings.TrimSpace(block.ToolUseID)
	if toolUseID == "" {
		log.Printf("⚠️ [drop_tool_result] reason=empty_tool_use_id")
		return
	}
	if !emittedToolIDs[toolUseID] {
		if debugToolIDs {
			log.Printf("⚠️ [drop_tool_result] reason=unmatched_tool_use_id tool_use_id=%s known_ids=%v",
				toolUseID, sortedKeys(emittedToolIDs))
		} else {
			log.Printf("⚠️ [drop_tool_result] reason=unmatched_tool_use_id tool_use_id=%s", toolUseID)
		}
		return
	}

	*messages = append(*messages, types.ChatMessage{
		Role:       types.RoleTool,
		ToolCallID: toolUseID,
		Content:    normalizeToolResultContent(block.Content),
	})
}

// normalizeToolResultContent 把任意形态的 tool_result 内容压成字符串
func normalizeToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "No content provided"
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}

	switch typed := value.(type) {
	case nil:
		return "No content provided"
	case string:
		return typed
	case []interface{}:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, toolResultItemText(item))
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	case map[string]interface{}:
		if typed["type"] == types.ContentText {
			if text, ok := typed["text"].(string); ok {
				return text
			}
			return ""
		}
		return compactJSON(typed)
	default:
		return compactJSON(typed)
	}
}

func toolResultItemText(item interface{}) string {
	if text, ok := item.(string); ok {
		return text
	}
	if object, ok := item.(map[string]interface{}); ok {
		if text, ok := object["text"].(string); ok {
			return text
		}
	}
	return compactJSON(item)
}

func compactJSON(value interface{}) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}

// convertUserBlocks 转换用户内容块为上游分片，不认识的块丢弃
func convertUserBlocks(blocks []types.ClaudeContentBlock) []types.ChatContentPart {
	parts := make([]types.ChatContentPart, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case types.ContentText:
			parts = append(parts, types.ChatContentPart{Type: "text", Text: block.Text})
		case types.ContentImage:
			if part, ok := convertImageBlock(block); ok {
				parts = append(parts, part)
			}
		default:
			log.Printf("⚠️ [drop_block] reason=unsupported_user_block type=%s", block.Type)
		}
	}
	return parts
}

func convertImageBlock(block types.ClaudeContentBlock) (types.ChatContentPart, bool) {
	source := block.Source
	if source == nil || source.Type != "base64" || source.MediaType == "" || source.Data == "" {
		log.Printf("⚠️ [drop_block] reason=unsupported_image_source")
		return types.ChatContentPart{}, false
	}
	return types.ChatContentPart{
		Type:     "image_url",
		ImageURL: &types.ChatImageURL{URL: fmt.Sprintf("data:%s;base64,%s", source.MediaType, source.Data)},
	}, true
}

// singleTextPart 只有一个 text 分片时坍缩为标量 content
func singleTextPart(parts []types.ChatContentPart) (string, bool) {
	if len(parts) != 1 || parts[0].Type != "text" {
		return "", false
	}
	return parts[0].Text, true
}

// convertAssistantMessage 处理助手消息：text 块拼接，tool_use 转 tool_calls
func convertAssistantMessage(message types.ClaudeMessage, messages *[]types.ChatMessage, emittedToolIDs map[string]bool) {
	content := message.Content

	if content.Text != nil {
		*messages = append(*messages, types.ChatMessage{Role: types.RoleAssistant, Content: *content.Text})
		return
	}

	if content.Blocks == nil {
		*messages = append(*messages, types.ChatMessage{Role: types.RoleAssistant, Content: nil})
		return
	}

	var textParts []string
	var toolCalls []types.ChatToolCall
	for _, block := range content.Blocks {
		switch block.Type {
		case types.ContentText:
			textParts = append(textParts, block.Text)
		case types.ContentToolUse:
			if call, ok := convertToolUseBlock(block); ok {
				toolCalls = append(toolCalls, call)
				emittedToolIDs[call.ID] = true
			}
		}
	}

	var messageContent interface{}
	if len(textParts) > 0 {
		messageContent = strings.Join(textParts, "")
	}
	*messages = append(*messages, types.ChatMessage{
		Role:      types.RoleAssistant,
		Content:   messageContent,
		ToolCalls: toolCalls,
	})
}

// convertToolUseBlock id 和 name 都非空才算有效调用
func convertToolUseBlock(block types.ClaudeContentBlock) (types.ChatToolCall, bool) {
	toolID := strings.TrimSpace(block.ID)
	if toolID == "" {
		log.Printf("⚠️ [drop_tool_use] reason=empty_id")
		return types.ChatToolCall{}, false
	}
	toolName := strings.TrimSpace(block.Name)
	if toolName == "" {
		log.Printf("⚠️ [drop_tool_use] reason=empty_name tool_id=%s", toolID)
		return types.ChatToolCall{}, false
	}

	arguments := "{}"
	if len(block.Input) > 0 {
		arguments = string(block.Input)
	}

	return types.ChatToolCall{
		ID:   toolID,
		Type: types.ToolFunction,
		Function: types.ChatFunctionCall{
			Name:      toolName,
			Arguments: arguments,
		},
	}, true
}

// convertTools 转换工具定义，名字为空的丢弃，空列表省略
func convertTools(claudeTools []types.ClaudeTool) []types.ChatTool {
	var tools []types.ChatTool
	for _, tool := range claudeTools {
		name := strings.TrimSpace(tool.Name)
		if name == "" {
			log.Printf("⚠️ [drop_tool] reason=empty_name")
			continue
		}

		var parameters interface{}
		if len(tool.InputSchema) > 0 {
			if err := json.Unmarshal(tool.InputSchema, &parameters); err != nil {
				parameters = nil
			}
		}
		if parameters == nil {
			parameters = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}

		tools = append(tools, types.ChatTool{
			Type: types.ToolFunction,
			Function: types.ChatFunctionSchema{
				Name:        name,
				Description: tool.Description,
				Parameters:  parameters,
			},
		})
	}
	return tools
}

// convertToolChoice auto/any → "auto"，命名选择 → function 形式，其余回落 "auto"
func convertToolChoice(choice *types.ClaudeToolChoice) interface{} {
	if choice == nil {
		return nil
	}

	mode := choice.Mode
	if mode == "" {
		mode = choice.Type
	}

	switch mode {
	case "auto", "any":
		return "auto"
	case "tool":
		if choice.Name != "" {
			return types.ChatNamedToolChoice{
				Type:     types.ToolFunction,
				Function: types.ChatNamedFunction{Name: choice.Name},
			}
		}
		return "auto"
	default:
		return "auto"
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
