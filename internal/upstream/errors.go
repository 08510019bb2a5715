package upstream

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Error 上游调用失败，状态码 + 已分类的提示信息
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
}

// ClassifyMessage 把上游原始错误信息映射为可操作的提示，匹配不上时原样返回
func ClassifyMessage(detail string) string {
	lowered := strings.ToLower(detail)

	if strings.Contains(lowered, "unsupported_country_region_territory") ||
		strings.Contains(lowered, "country, region, or territory not supported") {
		return "OpenAI API is not available in your region. Consider using Azure OpenAI or a compatible regional provider."
	}

	if strings.Contains(lowered, "invalid_api_key") || strings.Contains(lowered, "unauthorized") {
		return "Invalid API key. Please verify OPENAI_API_KEY configuration."
	}

	if strings.Contains(lowered, "rate_limit") || strings.Contains(lowered, "quota") {
		return "Rate limit exceeded. Please retry later or upgrade your upstream quota."
	}

	if strings.Contains(lowered, "model") &&
		(strings.Contains(lowered, "not found") || strings.Contains(lowered, "does not exist")) {
		return "Model not found. Please check BIG_MODEL / MIDDLE_MODEL / SMALL_MODEL mappings."
	}

	if strings.Contains(lowered, "billing") || strings.Contains(lowered, "payment") {
		return "Billing issue detected. Please verify upstream account billing status."
	}

	return detail
}

// ExtractErrorMessage 从错误响应体提取人类可读信息
// 优先 error.message，其次顶层 message，再退回原始响应体
func ExtractErrorMessage(body string) string {
	if message := gjson.Get(body, "error.message").String(); message != "" {
		return message
	}
	if message := gjson.Get(body, "message").String(); message != "" {
		return message
	}

	if strings.TrimSpace(body) == "" {
		return "upstream API returned an empty error response"
	}
	return body
}

// bodyPreview 响应体截断预览
func bodyPreview(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "..."
}
