package types

import "encoding/json"

// ClaudeResponse Claude Messages 响应
type ClaudeResponse struct {
	ID           string                `json:"id"`
	Type         string                `json:"type"`
	Role         string                `json:"role"`
	Model        string                `json:"model"`
	Content      []ClaudeResponseBlock `json:"content"`
	StopReason   string                `json:"stop_reason"`
	StopSequence *string               `json:"stop_sequence"`
	Usage        Usage                 `json:"usage"`
}

// ClaudeResponseBlock 响应内容块（text / thinking / tool_use）
// 按块类型序列化为对应的字段集合
type ClaudeResponseBlock struct {
	Type      string
	Text      string
	Thinking  string
	Signature string
	ID        string
	Name      string
	Input     interface{}
}

// NewTextBlock 构造 text 块
func NewTextBlock(text string) ClaudeResponseBlock {
	return ClaudeResponseBlock{Type: ContentText, Text: text}
}

// NewThinkingBlock 构造 thinking 块
func NewThinkingBlock(thinking, signature string) ClaudeResponseBlock {
	return ClaudeResponseBlock{Type: ContentThinking, Thinking: thinking, Signature: signature}
}

// NewToolUseBlock 构造 tool_use 块
func NewToolUseBlock(id, name string, input interface{}) ClaudeResponseBlock {
	return ClaudeResponseBlock{Type: ContentToolUse, ID: id, Name: name, Input: input}
}

// MarshalJSON 每种块只输出自己的字段，text/thinking 为空串时也要输出
func (b ClaudeResponseBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case ContentThinking:
		return json.Marshal(map[string]interface{}{
			"type":      ContentThinking,
			"thinking":  b.Thinking,
			"signature": b.Signature,
		})
	case ContentToolUse:
		input := b.Input
		if input == nil {
			input = map[string]interface{}{}
		}
		return json.Marshal(map[string]interface{}{
			"type":  ContentToolUse,
			"id":    b.ID,
			"name":  b.Name,
			"input": input,
		})
	default:
		return json.Marshal(map[string]interface{}{
			"type": ContentText,
			"text": b.Text,
		})
	}
}

// UnmarshalJSON 供测试和日志回读使用
func (b *ClaudeResponseBlock) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string      `json:"type"`
		Text      string      `json:"text"`
		Thinking  string      `json:"thinking"`
		Signature string      `json:"signature"`
		ID        string      `json:"id"`
		Name      string      `json:"name"`
		Input     interface{} `json:"input"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = ClaudeResponseBlock{
		Type:      raw.Type,
		Text:      raw.Text,
		Thinking:  raw.Thinking,
		Signature: raw.Signature,
		ID:        raw.ID,
		Name:      raw.Name,
		Input:     raw.Input,
	}
	return nil
}

// Usage token 用量统计
type Usage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens,omitempty"`
}

// Total 输入输出合计，用于会话记账
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
