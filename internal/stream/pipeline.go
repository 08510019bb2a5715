package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yhw2003/claude-openai-bridge/internal/converter"
	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// 流水线内部通用参数
const (
	eventChanBuffer  = 100
	scannerMaxBuffer = 4 * 1024 * 1024
)

// StreamChatToClaude 消费上游 Chat SSE，产出 Claude SSE 帧
// 事件通道关闭后可以从 usage 通道取到最终用量（恰好一个值）
// ctx 取消（下游断开）时立刻放弃流水线，不再产出任何帧
func StreamChatToClaude(ctx context.Context, body io.ReadCloser, originalModel string) (<-chan string, <-chan types.Usage) {
	events := make(chan string, eventChanBuffer)
	usageOut := make(chan types.Usage, 1)

	go func() {
		state := NewState(false)
		defer func() {
			usageOut <- state.usage
			close(usageOut)
			close(events)
			body.Close()
		}()

		emitter := NewEmitter(events)
		emitter.StartSequence(converter.NewMessageID(), originalModel)

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

			chunk := gjson.Parse(payload)
			if !chunk.IsObject() {
				log.Printf("⚠️ 无法解析上游流式行: %s", payload)
				continue
			}

			if errValue := chunk.Get("error"); errValue.Exists() {
				emitter.Error(upstreamChunkError(errValue))
				return
			}

			updateChatUsage(chunk, state)

			choice := chunk.Get("choices.0")
			if !choice.Exists() {
				continue
			}

			handleChatThinkingDelta(choice, emitter, state)

			if contentDelta := choice.Get("delta.content"); contentDelta.Type == gjson.String {
				emitter.TextDelta(state.textBlockIndex, contentDelta.String())
			}

			for _, toolDelta := range choice.Get("delta.tool_calls").Array() {
				processChatToolDelta(toolDelta, emitter, state)
			}

			if finishReason := choice.Get("finish_reason").String(); finishReason != "" {
				state.finalStopReason = converter.MapFinishReason(finishReason)
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

// newSSEScanner 行扫描器，缓冲上限放宽到 4MB 以容纳大参数块
func newSSEScanner(body io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerMaxBuffer)
	return scanner
}

// updateChatUsage 锁存最近一次出现的 usage（不是累加）
func updateChatUsage(chunk gjson.Result, state *State) {
	usage := chunk.Get("usage")
	if !usage.IsObject() {
		return
	}

	state.usage = types.Usage{
		InputTokens:  int(usage.Get("prompt_tokens").Int()),
		OutputTokens: int(usage.Get("completion_tokens").Int()),
	}
	if cached := usage.Get("prompt_tokens_details.cached_tokens").Int(); cached > 0 {
		state.usage.CacheReadInputTokens = int(cached)
	}
}

// processChatToolDelta 处理 delta.tool_calls 的单个条目
func processChatToolDelta(toolDelta gjson.Result, emitter *Emitter, state *State) {
	toolIndex := int(toolDelta.Get("index").Int())
	tool := state.tool(toolIndex)

	if id := toolDelta.Get("id").String(); id != "" {
		tool.id = id
	}
	if name := toolDelta.Get("function.name").String(); name != "" {
		tool.name = name
	}

	maybeStartToolBlock(toolIndex, emitter, state)

	argumentsDelta := toolDelta.Get("function.arguments")
	if argumentsDelta.Type != gjson.String {
		return
	}
	appendAndMaybeEmitToolJSON(toolIndex, argumentsDelta.String(), emitter, state)
}

// maybeStartToolBlock id 和 name 齐备且未开块时分配块号并发 content_block_start
func maybeStartToolBlock(toolIndex int, emitter *Emitter, state *State) {
	tool := state.tool(toolIndex)
	if tool.started || tool.id == "" || tool.name == "" {
		return
	}

	tool.claudeIndex = state.nextBlockIndex()
	tool.started = true
	emitter.ToolBlockStart(tool.claudeIndex, tool.id, tool.name)
}

// appendAndMaybeEmitToolJSON 追加参数分片，缓冲一旦构成完整 JSON 就一次性发出
// 每个工具块最多发一次 input_json_delta
func appendAndMaybeEmitToolJSON(toolIndex int, delta string, emitter *Emitter, state *State) {
	tool := state.tool(toolIndex)
	tool.argsBuffer += delta

	if tool.jsonSent || !tool.started {
		return
	}
	if !json.Valid([]byte(tool.argsBuffer)) {
		return
	}

	emitter.ToolJSONDelta(tool.claudeIndex, tool.argsBuffer)
	tool.jsonSent = true
}

func upstreamChunkError(errValue gjson.Result) string {
	if message := errValue.Get("message").String(); message != "" {
		return message
	}
	return fmt.Sprintf("upstream error: %s", errValue.Raw)
}
