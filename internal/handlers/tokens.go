package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// CountTokens POST /v1/messages/count_tokens
// 粗粒度估算：总字符数 / 4，至少 1
func CountTokens() gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, ok := readRequestBody(c)
		if !ok {
			return
		}

		var tokenRequest types.ClaudeTokenCountRequest
		if err := json.Unmarshal(bodyBytes, &tokenRequest); err != nil {
			badRequest(c, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		c.JSON(200, gin.H{"input_tokens": estimateInputTokens(&tokenRequest)})
	}
}

func estimateInputTokens(tokenRequest *types.ClaudeTokenCountRequest) int {
	totalChars := 0
	if tokenRequest.System != nil {
		totalChars += countSystemChars(tokenRequest.System)
	}
	for _, message := range tokenRequest.Messages {
		totalChars += countContentChars(message.Content)
	}

	estimated := totalChars / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func countSystemChars(system *types.ClaudeSystem) int {
	if system.Text != nil {
		return len(*system.Text)
	}
	total := 0
	for _, block := range system.Blocks {
		total += len(block.Text)
	}
	return total
}

func countContentChars(content types.ClaudeContent) int {
	if content.Text != nil {
		return len(*content.Text)
	}
	total := 0
	for _, block := range content.Blocks {
		total += len(block.Text)
		total += len(block.ToolUseID)
		total += rawTextChars(block.Content)
		total += rawTextChars(block.Input)
	}
	return total
}

// rawTextChars 递归统计 JSON 值里的字符串字符数
func rawTextChars(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0
	}
	return valueTextChars(value)
}

func valueTextChars(value interface{}) int {
	switch typed := value.(type) {
	case string:
		return len(typed)
	case []interface{}:
		total := 0
		for _, item := range typed {
			total += valueTextChars(item)
		}
		return total
	case map[string]interface{}:
		if text, ok := typed["text"].(string); ok {
			return len(text)
		}
		total := 0
		for _, item := range typed {
			total += valueTextChars(item)
		}
		return total
	default:
		return 0
	}
}
