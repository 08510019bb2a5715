package stream

import (
	"log"

	"github.com/tidwall/gjson"
)

// startThinkingBlock 分配块号并发出 thinking 块的 content_block_start
func startThinkingBlock(emitter *Emitter, state *State) {
	index := state.nextBlockIndex()
	state.thinkingBlockIndex = index
	state.thinkingStarted = true
	emitter.ThinkingBlockStart(index)
}

// handleChatThinkingDelta 处理 Chat 流里 delta 携带的原生推理内容
// 首个推理增量到达时开块，之后持续发 thinking_delta / signature_delta
func handleChatThinkingDelta(choice gjson.Result, emitter *Emitter, state *State) {
	thinking := chatThinkingDelta(choice)
	signature := choice.Get("delta.signature").String()
	if thinking == "" && signature == "" {
		return
	}

	if !state.thinkingStarted {
		startThinkingBlock(emitter, state)
	}
	state.sawThinkingDelta = true

	if thinking != "" {
		emitter.ThinkingDelta(state.thinkingBlockIndex, thinking)
	}
	if signature != "" {
		emitter.SignatureDelta(state.thinkingBlockIndex, signature)
	}
}

// chatThinkingDelta reasoning_content 优先于 reasoning
func chatThinkingDelta(choice gjson.Result) string {
	if thinking := choice.Get("delta.reasoning_content").String(); thinking != "" {
		return thinking
	}
	return choice.Get("delta.reasoning").String()
}

// maybeStartThinkingFallback Responses 专用兜底
// 请求了 thinking 但上游一直没有推理内容时，在第一个非推理事件前
// 抢先开一个空 thinking 块，避免客户端推理 UI 被整体跳过
func maybeStartThinkingFallback(eventType string, event gjson.Result, emitter *Emitter, state *State, originalModel, messageID string) {
	if !state.thinkingRequested || state.thinkingStarted || state.sawThinkingDelta {
		return
	}
	if isReasoningEventType(eventType) {
		return
	}

	hasContent := responsesTextDelta(event) != ""
	hasTools := hasToolEvent(eventType, event)
	hasFinish := eventType == "response.completed"
	if !hasContent && !hasTools && !hasFinish {
		return
	}

	startThinkingBlock(emitter, state)
	log.Printf("[thinking_fallback_start] model=%s message_id=%s claude_index=%d has_content=%t has_tools=%t has_finish=%t",
		originalModel, messageID, state.thinkingBlockIndex, hasContent, hasTools, hasFinish)
}

func isReasoningEventType(eventType string) bool {
	switch eventType {
	case "response.reasoning_text.delta",
		"response.reasoning_summary_text.delta",
		"response.reasoning.delta",
		"response.reasoning_summary.delta":
		return true
	}
	return false
}
