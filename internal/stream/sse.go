package stream

import (
	"encoding/json"
	"fmt"

	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

// Emitter 把 Claude 流式事件编码为 SSE 帧写入事件通道
type Emitter struct {
	events chan<- string
}

// NewEmitter 新建 SSE 发射器
func NewEmitter(events chan<- string) *Emitter {
	return &Emitter{events: events}
}

// StartSequence message_start + 空文本块 + ping 的固定开场
func (e *Emitter) StartSequence(messageID, originalModel string) {
	e.send(types.EventMessageStart, map[string]interface{}{
		"type": types.EventMessageStart,
		"message": map[string]interface{}{
			"id":            messageID,
			"type":          "message",
			"role":          types.RoleAssistant,
			"model":         originalModel,
			"content":       []interface{}{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]int{"input_tokens": 0, "output_tokens": 0},
		},
	})

	e.send(types.EventContentBlockStart, map[string]interface{}{
		"type":          types.EventContentBlockStart,
		"index":         0,
		"content_block": map[string]string{"type": types.ContentText, "text": ""},
	})

	e.send(types.EventPing, map[string]string{"type": types.EventPing})
}

// TextDelta 文本增量，固定写到 index 0
func (e *Emitter) TextDelta(index int, text string) {
	e.send(types.EventContentBlockDelta, map[string]interface{}{
		"type":  types.EventContentBlockDelta,
		"index": index,
		"delta": map[string]string{"type": types.DeltaText, "text": text},
	})
}

// ToolBlockStart 开启 tool_use 块，input 固定为空对象
func (e *Emitter) ToolBlockStart(index int, toolID, toolName string) {
	e.send(types.EventContentBlockStart, map[string]interface{}{
		"type":  types.EventContentBlockStart,
		"index": index,
		"content_block": map[string]interface{}{
			"type":  types.ContentToolUse,
			"id":    toolID,
			"name":  toolName,
			"input": map[string]interface{}{},
		},
	})
}

// ToolJSONDelta 完整参数一次性发出
func (e *Emitter) ToolJSONDelta(index int, payloadJSON string) {
	e.send(types.EventContentBlockDelta, map[string]interface{}{
		"type":  types.EventContentBlockDelta,
		"index": index,
		"delta": map[string]string{"type": types.DeltaInputJSON, "partial_json": payloadJSON},
	})
}

// ThinkingBlockStart 开启 thinking 块
func (e *Emitter) ThinkingBlockStart(index int) {
	e.send(types.EventContentBlockStart, map[string]interface{}{
		"type":  types.EventContentBlockStart,
		"index": index,
		"content_block": map[string]string{
			"type":      types.ContentThinking,
			"thinking":  "",
			"signature": "",
		},
	})
}

// ThinkingDelta 思考文本增量
func (e *Emitter) ThinkingDelta(index int, thinking string) {
	e.send(types.EventContentBlockDelta, map[string]interface{}{
		"type":  types.EventContentBlockDelta,
		"index": index,
		"delta": map[string]string{"type": types.DeltaThinking, "thinking": thinking},
	})
}

// SignatureDelta 思考签名增量
func (e *Emitter) SignatureDelta(index int, signature string) {
	e.send(types.EventContentBlockDelta, map[string]interface{}{
		"type":  types.EventContentBlockDelta,
		"index": index,
		"delta": map[string]string{"type": types.DeltaSignature, "signature": signature},
	})
}

// BlockStop 关闭内容块
func (e *Emitter) BlockStop(index int) {
	e.send(types.EventContentBlockStop, map[string]interface{}{
		"type":  types.EventContentBlockStop,
		"index": index,
	})
}

// StopSequence 收尾：关文本块、按开启顺序关其余块、message_delta、message_stop
func (e *Emitter) StopSequence(state *State) {
	e.BlockStop(state.textBlockIndex)
	for _, index := range state.startedBlockIndexes() {
		e.BlockStop(index)
	}

	e.send(types.EventMessageDelta, map[string]interface{}{
		"type": types.EventMessageDelta,
		"delta": map[string]interface{}{
			"stop_reason":   state.finalStopReason,
			"stop_sequence": nil,
		},
		"usage": state.usage,
	})

	e.send(types.EventMessageStop, map[string]string{"type": types.EventMessageStop})
}

// Error 流内错误事件
func (e *Emitter) Error(message string) {
	e.send(types.EventError, map[string]interface{}{
		"type":  types.EventError,
		"error": map[string]string{"type": "api_error", "message": message},
	})
}

func (e *Emitter) send(event string, data interface{}) {
	encoded, err := json.Marshal(data)
	if err != nil {
		encoded = []byte("{}")
	}
	e.events <- fmt.Sprintf("event: %s\ndata: %s\n\n", event, encoded)
}
