package converter

import (
	"strings"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
)

// upstreamNativePrefixes 这些前缀的模型名直接透传给上游
var upstreamNativePrefixes = []string{"gpt-", "o1-", "o3-", "o4-", "ep-", "doubao-", "deepseek-"}

// MapClaudeModel 将 Claude 模型名映射为上游模型名
// 上游原生模型名透传；否则按 haiku/sonnet/其他 路由到 small/middle/big
func MapClaudeModel(claudeModel string, routing *config.Routing) string {
	if isUpstreamNativeModel(claudeModel) {
		return claudeModel
	}

	lowered := strings.ToLower(claudeModel)
	switch {
	case strings.Contains(lowered, "haiku"):
		return routing.SmallModel
	case strings.Contains(lowered, "sonnet"):
		return routing.MiddleModel
	default:
		return routing.BigModel
	}
}

func isUpstreamNativeModel(model string) bool {
	lowered := strings.ToLower(model)
	for _, prefix := range upstreamNativePrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

// SupportsReasoningEffort 上游模型是否接受 reasoning_effort 参数
func SupportsReasoningEffort(model string) bool {
	lowered := strings.ToLower(model)
	return strings.HasPrefix(lowered, "o1") ||
		strings.HasPrefix(lowered, "o3") ||
		strings.HasPrefix(lowered, "o4") ||
		strings.HasPrefix(lowered, "gpt-5")
}
