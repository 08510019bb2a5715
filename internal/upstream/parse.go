package upstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// isEventStream 响应体是否是 SSE 包裹形态
func isEventStream(contentType, body string) bool {
	if strings.Contains(strings.ToLower(contentType), "text/event-stream") {
		return true
	}
	return strings.HasPrefix(body, "event:") || strings.Contains(body, "\nevent:")
}

// ParseSSEWrappedResponses 从 SSE 包裹的响应体里回放最后一个 response 对象
// 个别网关对非流式 Responses 请求也按事件流返回
func ParseSSEWrappedResponses(body string) (*types.ResponsesResponse, error) {
	var latest *types.ResponsesResponse

	for _, payload := range sseDataPayloads(body) {
		if payload == "[DONE]" {
			continue
		}
		if !gjson.Valid(payload) {
			return nil, fmt.Errorf("failed to parse SSE data JSON")
		}

		candidate := payload
		if response := gjson.Get(payload, "response"); response.Exists() {
			candidate = response.Raw
		}

		var parsed types.ResponsesResponse
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil && (parsed.ID != "" || len(parsed.Output) > 0) {
			latest = &parsed
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("no response object found in SSE payload")
	}
	return latest, nil
}

// sseDataPayloads 把事件流按空行切段，拼接每段的 data 行
func sseDataPayloads(body string) []string {
	var payloads []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			payloads = append(payloads, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSuffix(line, "\r")
		if trimmed == "" {
			flush()
			continue
		}
		if data, found := strings.CutPrefix(trimmed, "data:"); found {
			current = append(current, strings.TrimLeft(data, " "))
		}
	}
	flush()

	return payloads
}
