package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yhw2003/claude-openai-bridge/internal/converter"
	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// responsesContext 上游 Responses 流的工具索引解析状态
// 同一个工具调用的事件可能分别携带 output_index、call_id 或 item.id，
// 全部记录下来让后续事件落到同一个槽位
type responsesContext struct {
	nextToolIndex     int
	toolIndexByCallID map[string]int
	toolIndexByItemID map[string]int
}

func newResponsesContext() *responsesContext {
	return &responsesContext{
		toolIndexByCallID: map[string]int{},
		toolIndexByItemID: map[string]int{},
	}
}

// StreamResponsesToClaude 消费上游 Responses SSE（带类型事件），产出 Claude SSE 帧
// ctx 取消（下游断开）时立刻放弃流水线，不再产出任何帧
func StreamResponsesToClaude(ctx context.Context, body io.ReadCloser, originalModel string, thinkingRequested bool) (<-chan string, <-chan types.Usage) {
	events := make(chan string, eventChanBuffer)
	usageOut := make(chan types.Usage, 1)

	go func() {
		state := NewState(thinkingRequested)
		defer func() {
			usageOut <- state.usage
			close(usageOut)
			close(events)
			body.Close()
		}()

		emitter := NewEmitter(events)
		messageID := converter.NewMessageID()
		emitter.StartSequence(messageID, originalModel)

		toolContext := newResponsesContext()
		scanner := newSSEScanner(body)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				break
			}

			event := gjson.Parse(payload)
			if !event.IsObject() {
				log.Printf("⚠️ 无法解析上游流式行: %s", payload)
				continue
			}

			if handleResponsesEvent(event, emitter, state, toolContext, originalModel, messageID) {
				break
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			log.Printf("❌ [upstream_stream_error] 读取上游流式响应失败: %v", err)
			emitter.Error(fmt.Sprintf("streaming error from upstream: %v", err))
			return
		}

		emitter.StopSequence(state)
	}()

	return events, usageOut
}

// handleResponsesEvent 分发单个事件，返回 true 表示流结束
func handleResponsesEvent(event gjson.Result, emitter *Emitter, state *State, toolContext *responsesContext, originalModel, messageID string) bool {
	eventType := event.Get("type").String()
	maybeStartThinkingFallback(eventType, event, emitter, state, originalModel, messageID)

	switch eventType {
	case "response.output_text.delta", "response.refusal.delta":
		if delta := responsesTextDelta(event); delta != "" {
			emitter.TextDelta(state.textBlockIndex, delta)
		}
		return false

	case "response.reasoning_text.delta",
		"response.reasoning_summary_text.delta",
		"response.reasoning.delta",
		"response.reasoning_summary.delta":
		handleResponsesThinkingDelta(event, emitter, state)
		return false

	case "response.output_item.added":
		if event.Get("item.type").String() == "function_call" {
			handleOutputItemAdded(event, emitter, state, toolContext)
		}
		return false

	case "response.function_call_arguments.delta":
		handleFunctionArgumentsDelta(event, emitter, state, toolContext)
		return false

	case "response.function_call_arguments.done":
		handleFunctionArgumentsDone(event, emitter, state, toolContext)
		return false

	case "response.completed":
		updateFromCompleted(event, state)
		return true

	case "response.failed", "error":
		emitter.Error(responsesEventError(event))
		return true

	default:
		return false
	}
}

func handleResponsesThinkingDelta(event gjson.Result, emitter *Emitter, state *State) {
	delta := responsesTextDelta(event)
	if delta == "" {
		return
	}
	if !state.thinkingStarted {
		startThinkingBlock(emitter, state)
	}
	state.sawThinkingDelta = true
	emitter.ThinkingDelta(state.thinkingBlockIndex, delta)
}

func handleOutputItemAdded(event gjson.Result, emitter *Emitter, state *State, toolContext *responsesContext) {
	toolIndex := resolveToolIndex(event, toolContext)
	updateToolMaps(event, toolIndex, toolContext)
	updateResponsesToolIdentity(event, toolIndex, state)
	maybeStartToolBlock(toolIndex, emitter, state)

	// item 可能直接带完整参数
	if arguments := event.Get("item.arguments"); arguments.Type == gjson.String && arguments.String() != "" {
		appendAndMaybeEmitToolJSON(toolIndex, arguments.String(), emitter, state)
	}
}

func handleFunctionArgumentsDelta(event gjson.Result, emitter *Emitter, state *State, toolContext *responsesContext) {
	toolIndex := resolveToolIndex(event, toolContext)
	updateToolMaps(event, toolIndex, toolContext)
	updateResponsesToolIdentity(event, toolIndex, state)
	maybeStartToolBlock(toolIndex, emitter, state)

	delta := event.Get("delta")
	if delta.Type != gjson.String {
		return
	}
	appendAndMaybeEmitToolJSON(toolIndex, delta.String(), emitter, state)
}

// handleFunctionArgumentsDone 用最终参数覆盖缓冲，没发过就立即补发
func handleFunctionArgumentsDone(event gjson.Result, emitter *Emitter, state *State, toolContext *responsesContext) {
	toolIndex := resolveToolIndex(event, toolContext)
	updateToolMaps(event, toolIndex, toolContext)
	updateResponsesToolIdentity(event, toolIndex, state)
	maybeStartToolBlock(toolIndex, emitter, state)

	arguments := event.Get("arguments")
	if !arguments.Exists() {
		return
	}

	tool := state.tool(toolIndex)
	if tool.jsonSent {
		return
	}
	if arguments.Type == gjson.String {
		tool.argsBuffer = arguments.String()
	} else {
		tool.argsBuffer = arguments.Raw
	}
	if !tool.started {
		return
	}
	emitter.ToolJSONDelta(tool.claudeIndex, tool.argsBuffer)
	tool.jsonSent = true
}

// updateFromCompleted 从 response.completed 锁存用量和最终 stop_reason
func updateFromCompleted(event gjson.Result, state *State) {
	payload := event.Get("response")
	if !payload.Exists() {
		payload = event
	}

	usage := payload.Get("usage")
	state.usage = types.Usage{
		InputTokens:  int(usage.Get("input_tokens").Int()),
		OutputTokens: int(usage.Get("output_tokens").Int()),
	}
	if cached := usage.Get("input_tokens_details.cached_tokens").Int(); cached > 0 {
		state.usage.CacheReadInputTokens = int(cached)
	}

	state.finalStopReason = resolveCompletedStopReason(payload)
}

func resolveCompletedStopReason(payload gjson.Result) string {
	for _, item := range payload.Get("output").Array() {
		if item.Get("type").String() == "function_call" {
			return types.StopToolUse
		}
	}

	if payload.Get("status").String() == "incomplete" {
		reason := payload.Get("incomplete_details.reason").String()
		if reason == "" {
			reason = payload.Get("incomplete_details.type").String()
		}
		return converter.MapResponsesIncompleteReason(reason)
	}

	return types.StopEndTurn
}

// resolveToolIndex 解析事件对应的稳定工具槽位
// output_index 最优先，其次按 call_id / item.id 查表，都没有就分配新槽位
func resolveToolIndex(event gjson.Result, toolContext *responsesContext) int {
	if outputIndex := eventOutputIndex(event); outputIndex >= 0 {
		if outputIndex+1 > toolContext.nextToolIndex {
			toolContext.nextToolIndex = outputIndex + 1
		}
		return outputIndex
	}

	if callID := eventCallID(event); callID != "" {
		if index, ok := toolContext.toolIndexByCallID[callID]; ok {
			return index
		}
	}
	if itemID := eventItemID(event); itemID != "" {
		if index, ok := toolContext.toolIndexByItemID[itemID]; ok {
			return index
		}
	}

	index := toolContext.nextToolIndex
	toolContext.nextToolIndex++
	return index
}

func updateToolMaps(event gjson.Result, toolIndex int, toolContext *responsesContext) {
	if callID := eventCallID(event); callID != "" {
		toolContext.toolIndexByCallID[callID] = toolIndex
	}
	if itemID := eventItemID(event); itemID != "" {
		toolContext.toolIndexByItemID[itemID] = toolIndex
	}
}

func updateResponsesToolIdentity(event gjson.Result, toolIndex int, state *State) {
	tool := state.tool(toolIndex)
	if callID := eventCallID(event); callID != "" {
		tool.id = callID
	}
	if name := eventToolName(event); name != "" {
		tool.name = name
	}
}

func eventOutputIndex(event gjson.Result) int {
	if value := event.Get("output_index"); value.Exists() {
		return int(value.Int())
	}
	if value := event.Get("item.output_index"); value.Exists() {
		return int(value.Int())
	}
	return -1
}

func eventCallID(event gjson.Result) string {
	if callID := event.Get("call_id").String(); callID != "" {
		return callID
	}
	return event.Get("item.call_id").String()
}

func eventItemID(event gjson.Result) string {
	if itemID := event.Get("item_id").String(); itemID != "" {
		return itemID
	}
	return event.Get("item.id").String()
}

func eventToolName(event gjson.Result) string {
	if name := event.Get("name").String(); name != "" {
		return name
	}
	return event.Get("item.name").String()
}

// responsesTextDelta delta 优先，其次 text，再退回 item.text
func responsesTextDelta(event gjson.Result) string {
	if delta := event.Get("delta"); delta.Type == gjson.String {
		return delta.String()
	}
	if text := event.Get("text"); text.Type == gjson.String {
		return text.String()
	}
	return event.Get("item.text").String()
}

// hasToolEvent 事件是否属于工具调用事件
func hasToolEvent(eventType string, event gjson.Result) bool {
	switch eventType {
	case "response.output_item.added",
		"response.function_call_arguments.delta",
		"response.function_call_arguments.done":
		return event.Get("item.type").String() != "" || eventCallID(event) != ""
	}
	return false
}

func responsesEventError(event gjson.Result) string {
	if message := event.Get("error.message").String(); message != "" {
		return message
	}
	if message := event.Get("message").String(); message != "" {
		return message
	}
	return "upstream responses stream failed"
}
