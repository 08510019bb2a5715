package converter

import (
	"fmt"
	"log"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// ConvertResponsesToClaude 将 Responses API 响应转换为 Claude 响应（非流式）
// output 条目形态繁多，这里用 gjson 宽松取值
func ConvertResponsesToClaude(responsesResponse *types.ResponsesResponse, originalModel string) (*types.ClaudeResponse, error) {
	if len(responsesResponse.Output) == 0 && responsesResponse.OutputText == "" {
		return nil, fmt.Errorf("missing output in upstream responses payload")
	}

	var content []types.ClaudeResponseBlock
	sawToolUse := false

	for _, rawItem := range responsesResponse.Output {
		item := gjson.ParseBytes(rawItem)
		switch item.Get("type").String() {
		case "message":
			appendResponsesMessageItem(item, &content)
		case "reasoning":
			appendResponsesReasoningItem(item, &content)
		case "function_call":
			if appendResponsesFunctionCall(item, &content) {
				sawToolUse = true
			}
		}
	}

	// 没收集到文本时退回顶层 output_text
	if !hasTextBlock(content) && responsesResponse.OutputText != "" {
		content = append(content, types.NewTextBlock(responsesResponse.OutputText))
	}
	if len(content) == 0 {
		content = append(content, types.NewTextBlock(""))
	}

	stopReason := resolveResponsesStopReason(responsesResponse, sawToolUse)

	usage := types.Usage{}
	if responsesResponse.Usage != nil {
		usage.InputTokens = responsesResponse.Usage.InputTokens
		usage.OutputTokens = responsesResponse.Usage.OutputTokens
		usage.CacheReadInputTokens = responsesResponse.Usage.CachedTokens()
	}

	return buildClaudeResponse(responsesResponse.ID, originalModel, content, stopReason, usage), nil
}

func appendResponsesMessageItem(item gjson.Result, content *[]types.ClaudeResponseBlock) {
	for _, part := range item.Get("content").Array() {
		partType := part.Get("type").String()
		switch partType {
		case "output_text", "text", "input_text":
			maybeAppendText(content, part.Get("text").String())
		case "refusal":
			refusal := part.Get("refusal").String()
			if refusal == "" {
				refusal = part.Get("text").String()
			}
			maybeAppendText(content, refusal)
		}
	}
}

func appendResponsesReasoningItem(item gjson.Result, content *[]types.ClaudeResponseBlock) {
	signature := item.Get("signature").String()

	for _, summaryItem := range item.Get("summary").Array() {
		text := summaryItem.Get("text").String()
		if text == "" {
			text = summaryItem.Get("summary").String()
		}
		maybeAppendThinking(content, text, signature)
	}

	text := item.Get("text").String()
	if text == "" {
		text = item.Get("reasoning").String()
	}
	maybeAppendThinking(content, text, signature)
}

func appendResponsesFunctionCall(item gjson.Result, content *[]types.ClaudeResponseBlock) bool {
	callID := item.Get("call_id").String()
	if callID == "" {
		callID = item.Get("id").String()
	}
	callID = strings.TrimSpace(callID)
	if callID == "" {
		log.Printf("⚠️ [drop_tool_use] reason=empty_call_id")
		return false
	}

	arguments := "{}"
	if argumentsValue := item.Get("arguments"); argumentsValue.Exists() {
		if argumentsValue.Type == gjson.String {
			arguments = argumentsValue.String()
		} else {
			arguments = argumentsValue.Raw
		}
	}

	*content = append(*content, types.NewToolUseBlock(callID, item.Get("name").String(), ParseToolArguments(arguments)))
	return true
}

func resolveResponsesStopReason(responsesResponse *types.ResponsesResponse, sawToolUse bool) string {
	if sawToolUse {
		return types.StopToolUse
	}

	if responsesResponse.Status == "incomplete" {
		details := gjson.ParseBytes(responsesResponse.IncompleteDetails)
		reason := details.Get("reason").String()
		if reason == "" {
			reason = details.Get("type").String()
		}
		return MapResponsesIncompleteReason(reason)
	}

	return types.StopEndTurn
}

func maybeAppendText(content *[]types.ClaudeResponseBlock, text string) {
	if text == "" {
		return
	}
	*content = append(*content, types.NewTextBlock(text))
}

func maybeAppendThinking(content *[]types.ClaudeResponseBlock, thinking, signature string) {
	if thinking == "" {
		return
	}
	*content = append(*content, types.NewThinkingBlock(thinking, signature))
}

func hasTextBlock(content []types.ClaudeResponseBlock) bool {
	for _, block := range content {
		if block.Type == types.ContentText {
			return true
		}
	}
	return false
}
