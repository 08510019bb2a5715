package converter

import (
	"strings"

	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// reasoning effort 档位
const (
	EffortLow    = "low"
	EffortMedium = "medium"
	EffortHigh   = "high"
)

var effortRank = map[string]int{EffortLow: 1, EffortMedium: 2, EffortHigh: 3}

// DeriveReasoningEffort 根据 thinking 配置推导 reasoning_effort
// 仅对支持推理档位的上游模型生效，其余返回空串
func DeriveReasoningEffort(upstreamModel string, thinking *types.ClaudeThinking, maxTokens int, minLevel string) string {
	if !SupportsReasoningEffort(upstreamModel) {
		return ""
	}

	effort := effortFromThinking(thinking, maxTokens)
	return raiseToMinLevel(effort, minLevel)
}

func effortFromThinking(thinking *types.ClaudeThinking, maxTokens int) string {
	if thinking == nil {
		return EffortLow
	}

	mode := strings.ToLower(strings.TrimSpace(thinking.Type))
	switch mode {
	case "", "disabled", "off", "none":
		return EffortLow
	}

	// enabled / on / auto 以及其他非空模式都按启用处理
	if thinking.BudgetTokens <= 0 {
		return EffortMedium
	}

	byBudget := effortByAbsoluteBudget(thinking.BudgetTokens)
	byRatio := effortByBudgetRatio(thinking.BudgetTokens, maxTokens)
	return higherEffort(byBudget, byRatio)
}

// effortByAbsoluteBudget 绝对预算档位，预算收拢到 [1, 65536]
func effortByAbsoluteBudget(budgetTokens int) string {
	budget := budgetTokens
	if budget < 1 {
		budget = 1
	}
	if budget > 65536 {
		budget = 65536
	}

	switch {
	case budget <= 2048:
		return EffortLow
	case budget <= 8192:
		return EffortMedium
	default:
		return EffortHigh
	}
}

// effortByBudgetRatio 预算占 max_tokens 比例档位，max_tokens 为 0 时取 medium
func effortByBudgetRatio(budgetTokens, maxTokens int) string {
	if maxTokens == 0 {
		return EffortMedium
	}

	ratio := float64(budgetTokens) / float64(maxTokens)
	switch {
	case ratio < 0.25:
		return EffortLow
	case ratio <= 0.6:
		return EffortMedium
	default:
		return EffortHigh
	}
}

func higherEffort(a, b string) string {
	if effortRank[a] >= effortRank[b] {
		return a
	}
	return b
}

// raiseToMinLevel 应用配置的档位下限
func raiseToMinLevel(effort, minLevel string) string {
	if minLevel == "" {
		return effort
	}
	return higherEffort(effort, minLevel)
}
