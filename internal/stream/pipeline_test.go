package stream

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

// sseFrame 解析后的单个下行 SSE 帧
type sseFrame struct {
	event string
	data  gjson.Result
}

func collectFrames(t *testing.T, events <-chan string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for raw := range events {
		if !strings.HasPrefix(raw, "event: ") || !strings.HasSuffix(raw, "\n\n") {
			t.Fatalf("malformed SSE frame: %q", raw)
		}
		lines := strings.SplitN(strings.TrimSuffix(raw, "\n\n"), "\n", 2)
		event := strings.TrimPrefix(lines[0], "event: ")
		data := strings.TrimPrefix(lines[1], "data: ")
		if !gjson.Valid(data) {
			t.Fatalf("frame data is not JSON: %q", data)
		}
		frames = append(frames, sseFrame{event: event, data: gjson.Parse(data)})
	}
	return frames
}

func upstreamBody(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func eventNames(frames []sseFrame) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.event)
	}
	return names
}

func assertEventSequence(t *testing.T, frames []sseFrame, expected []string) {
	t.Helper()
	actual := eventNames(frames)
	if strings.Join(actual, ",") != strings.Join(expected, ",") {
		t.Fatalf("event sequence mismatch:\nexpected %v\nactual   %v", expected, actual)
	}
}

func TestStreamChatToClaude_TextOnly(t *testing.T) {
	body := upstreamBody(
		`data: {"choices":[{"delta":{"content":"hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		``,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":1}}`,
		``,
		`data: [DONE]`,
	)

	events, usageOut := StreamChatToClaude(context.Background(), body, "claude-3-5-sonnet-20241022")
	frames := collectFrames(t, events)

	assertEventSequence(t, frames, []string{
		"message_start", "content_block_start", "ping",
		"content_block_delta", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	})

	start := frames[0].data
	if start.Get("message.model").String() != "claude-3-5-sonnet-20241022" {
		t.Fatalf("message_start should echo original model: %s", start.Raw)
	}
	if start.Get("message.role").String() != "assistant" {
		t.Fatalf("unexpected role: %s", start.Raw)
	}

	if frames[3].data.Get("delta.text").String() != "hel" || frames[4].data.Get("delta.text").String() != "lo" {
		t.Fatalf("unexpected text deltas")
	}

	messageDelta := frames[6].data
	if messageDelta.Get("delta.stop_reason").String() != "end_turn" {
		t.Fatalf("expected end_turn, got %s", messageDelta.Raw)
	}
	if messageDelta.Get("usage.input_tokens").Int() != 2 || messageDelta.Get("usage.output_tokens").Int() != 1 {
		t.Fatalf("unexpected usage: %s", messageDelta.Raw)
	}

	usage := <-usageOut
	if usage.InputTokens != 2 || usage.OutputTokens != 1 {
		t.Fatalf("unexpected final usage: %#v", usage)
	}
}

func TestStreamChatToClaude_IncrementalToolArgs(t *testing.T) {
	body := upstreamBody(
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_x","function":{"name":"Bash"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"cmd\""}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"ls\""}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"}"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		``,
		`data: [DONE]`,
	)

	events, usageOut := StreamChatToClaude(context.Background(), body, "claude-3-5-sonnet-20241022")
	frames := collectFrames(t, events)
	<-usageOut

	assertEventSequence(t, frames, []string{
		"message_start", "content_block_start", "ping",
		"content_block_start", "content_block_delta",
		"content_block_stop", "content_block_stop",
		"message_delta", "message_stop",
	})

	toolStart := frames[3].data
	if toolStart.Get("index").Int() != 1 {
		t.Fatalf("tool block should use index 1: %s", toolStart.Raw)
	}
	if toolStart.Get("content_block.type").String() != "tool_use" ||
		toolStart.Get("content_block.id").String() != "call_x" ||
		toolStart.Get("content_block.name").String() != "Bash" {
		t.Fatalf("unexpected tool block start: %s", toolStart.Raw)
	}

	jsonDelta := frames[4].data
	if jsonDelta.Get("delta.type").String() != "input_json_delta" {
		t.Fatalf("expected input_json_delta: %s", jsonDelta.Raw)
	}
	if jsonDelta.Get("delta.partial_json").String() != `{"cmd":"ls"}` {
		t.Fatalf("expected full argument blob, got %s", jsonDelta.Raw)
	}

	if frames[5].data.Get("index").Int() != 0 || frames[6].data.Get("index").Int() != 1 {
		t.Fatalf("block stops out of order")
	}

	if frames[7].data.Get("delta.stop_reason").String() != "tool_use" {
		t.Fatalf("expected tool_use stop reason: %s", frames[7].data.Raw)
	}
}

func TestStreamChatToClaude_AtMostOnceJSON(t *testing.T) {
	// 完整 JSON 之后又来一段参数：只能发过一次 input_json_delta
	body := upstreamBody(
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_x","function":{"name":"Bash","arguments":"{}"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]}}]}`,
		``,
		`data: [DONE]`,
	)

	events, usageOut := StreamChatToClaude(context.Background(), body, "claude-3-5-sonnet-20241022")
	frames := collectFrames(t, events)
	<-usageOut

	jsonDeltas := 0
	for _, frame := range frames {
		if frame.event == "content_block_delta" && frame.data.Get("delta.type").String() == "input_json_delta" {
			jsonDeltas++
		}
	}
	if jsonDeltas != 1 {
		t.Fatalf("expected exactly one input_json_delta, got %d", jsonDeltas)
	}
}

func TestStreamChatToClaude_UsageLatchedNotSummed(t *testing.T) {
	body := upstreamBody(
		`data: {"choices":[{"delta":{"content":"a"}}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`,
		``,
		`data: {"choices":[{"delta":{"content":"b"}}],"usage":{"prompt_tokens":7,"completion_tokens":3,"prompt_tokens_details":{"cached_tokens":2}}}`,
		``,
		`data: [DONE]`,
	)

	events, usageOut := StreamChatToClaude(context.Background(), body, "claude-3-5-sonnet-20241022")
	collectFrames(t, events)

	usage := <-usageOut
	if usage.InputTokens != 7 || usage.OutputTokens != 3 || usage.CacheReadInputTokens != 2 {
		t.Fatalf("usage must equal the last observed value, got %#v", usage)
	}
}

func TestStreamChatToClaude_ReasoningDeltas(t *testing.T) {
	body := upstreamBody(
		`data: {"choices":[{"delta":{"reasoning_content":"hmm"}}]}`,
		``,
		`data: {"choices":[{"delta":{"reasoning_content":" more"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"answer"}}]}`,
		``,
		`data: [DONE]`,
	)

	events, usageOut := StreamChatToClaude(context.Background(), body, "claude-3-5-sonnet-20241022")
	frames := collectFrames(t, events)
	<-usageOut

	assertEventSequence(t, frames, []string{
		"message_start", "content_block_start", "ping",
		"content_block_start",                        // thinking 块
		"content_block_delta", "content_block_delta", // thinking_delta ×2
		"content_block_delta", // text
		"content_block_stop", "content_block_stop",
		"message_delta", "message_stop",
	})

	if frames[3].data.Get("content_block.type").String() != "thinking" {
		t.Fatalf("expected thinking block start: %s", frames[3].data.Raw)
	}
	if frames[4].data.Get("delta.type").String() != "thinking_delta" ||
		frames[4].data.Get("delta.thinking").String() != "hmm" {
		t.Fatalf("unexpected thinking delta: %s", frames[4].data.Raw)
	}
	// text delta 仍然落在 index 0
	if frames[6].data.Get("index").Int() != 0 {
		t.Fatalf("text delta must stay on block 0: %s", frames[6].data.Raw)
	}
}

func TestStreamChatToClaude_UpstreamErrorChunk(t *testing.T) {
	body := upstreamBody(
		`data: {"error":{"message":"kaboom"}}`,
		``,
		`data: [DONE]`,
	)

	events, usageOut := StreamChatToClaude(context.Background(), body, "claude-3-5-sonnet-20241022")
	frames := collectFrames(t, events)
	<-usageOut

	last := frames[len(frames)-1]
	if last.event != "error" {
		t.Fatalf("expected trailing error event, got %q", last.event)
	}
	if last.data.Get("error.type").String() != "api_error" || last.data.Get("error.message").String() != "kaboom" {
		t.Fatalf("unexpected error payload: %s", last.data.Raw)
	}
	for _, frame := range frames {
		if frame.event == "message_stop" {
			t.Fatalf("stream must stop without message_stop after error")
		}
	}
}

func TestStreamChatToClaude_FinishReasonLength(t *testing.T) {
	body := upstreamBody(
		`data: {"choices":[{"delta":{"content":"x"},"finish_reason":"length"}]}`,
		``,
		`data: [DONE]`,
	)

	events, usageOut := StreamChatToClaude(context.Background(), body, "claude-3-5-sonnet-20241022")
	frames := collectFrames(t, events)
	<-usageOut

	for _, frame := range frames {
		if frame.event == "message_delta" {
			if frame.data.Get("delta.stop_reason").String() != "max_tokens" {
				t.Fatalf("length must map to max_tokens: %s", frame.data.Raw)
			}
			return
		}
	}
	t.Fatalf("message_delta not found")
}

func TestStreamChatToClaude_CancelAbortsPipeline(t *testing.T) {
	body := upstreamBody(
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		``,
		`data: [DONE]`,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 下游写失败后流水线看到的就是已取消的 ctx

	events, usageOut := StreamChatToClaude(ctx, body, "claude-3-5-sonnet-20241022")
	frames := collectFrames(t, events)
	<-usageOut

	// 开场帧在取消检查之前发出，之后不允许再有任何帧
	assertEventSequence(t, frames, []string{"message_start", "content_block_start", "ping"})
	for _, frame := range frames {
		if frame.event == "content_block_delta" || frame.event == "message_stop" {
			t.Fatalf("cancelled pipeline must not emit %q", frame.event)
		}
	}
}
