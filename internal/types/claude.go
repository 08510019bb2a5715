package types

import (
	"encoding/json"
)

// ClaudeMessagesRequest Claude Messages 请求结构
// 宽松解析：未知字段和未知内容块不会导致整体解析失败
type ClaudeMessagesRequest struct {
	Model         string            `json:"model"`
	MaxTokens     int               `json:"max_tokens"`
	Messages      []ClaudeMessage   `json:"messages"`
	System        *ClaudeSystem     `json:"system,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	Tools         []ClaudeTool      `json:"tools,omitempty"`
	ToolChoice    *ClaudeToolChoice `json:"tool_choice,omitempty"`
	Thinking      *ClaudeThinking   `json:"thinking,omitempty"`
}

// ClaudeTokenCountRequest /v1/messages/count_tokens 请求结构
type ClaudeTokenCountRequest struct {
	Model    string          `json:"model"`
	Messages []ClaudeMessage `json:"messages"`
	System   *ClaudeSystem   `json:"system,omitempty"`
}

// ClaudeThinking Claude 思考配置
type ClaudeThinking struct {
	Type         string `json:"type"` // enabled | disabled | auto | ...
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// ClaudeMessage Claude 消息
type ClaudeMessage struct {
	Role    string        `json:"role"`
	Content ClaudeContent `json:"content"`
}

// ClaudeContent 消息内容：string、内容块数组或不透明 JSON
type ClaudeContent struct {
	Text   *string
	Blocks []ClaudeContentBlock
	Raw    json.RawMessage // 既不是 string 也不是数组时保留原始 JSON
}

// UnmarshalJSON 按 string → 块数组 → 不透明 的顺序宽松解析
func (c *ClaudeContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = &text
		return nil
	}

	var rawBlocks []json.RawMessage
	if err := json.Unmarshal(data, &rawBlocks); err == nil {
		blocks := make([]ClaudeContentBlock, 0, len(rawBlocks))
		for _, rawBlock := range rawBlocks {
			blocks = append(blocks, parseContentBlock(rawBlock))
		}
		c.Blocks = blocks
		return nil
	}

	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON 按解析时的形态还原
func (c ClaudeContent) MarshalJSON() ([]byte, error) {
	if c.Text != nil {
		return json.Marshal(*c.Text)
	}
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	if c.Raw != nil {
		return append([]byte(nil), c.Raw...), nil
	}
	return []byte("null"), nil
}

// ClaudeContentBlock 内容块（text / image / tool_use / tool_result / unknown）
type ClaudeContentBlock struct {
	Type      string             `json:"type"`
	Text      string             `json:"text,omitempty"`
	Source    *ClaudeImageSource `json:"source,omitempty"`
	ID        string             `json:"id,omitempty"`
	Name      string             `json:"name,omitempty"`
	Input     json.RawMessage    `json:"input,omitempty"`
	ToolUseID string             `json:"tool_use_id,omitempty"`
	Content   json.RawMessage    `json:"content,omitempty"` // tool_result 载荷，形态不定

	// 未知块保留原始 JSON，转换时直接丢弃
	Raw json.RawMessage `json:"-"`
}

// parseContentBlock 解析单个内容块，无法识别时落入 unknown
func parseContentBlock(data json.RawMessage) ClaudeContentBlock {
	type blockAlias ClaudeContentBlock
	var block blockAlias
	if err := json.Unmarshal(data, &block); err != nil || block.Type == "" {
		return ClaudeContentBlock{
			Type: ContentUnknown,
			Raw:  append(json.RawMessage(nil), data...),
		}
	}
	switch block.Type {
	case ContentText, ContentImage, ContentToolUse, ContentToolResult:
		return ClaudeContentBlock(block)
	default:
		return ClaudeContentBlock{
			Type: ContentUnknown,
			Raw:  append(json.RawMessage(nil), data...),
		}
	}
}

// ClaudeImageSource 图片来源（仅支持 base64）
type ClaudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ClaudeSystem system 字段：string、text 块数组或不透明 JSON
type ClaudeSystem struct {
	Text   *string
	Blocks []ClaudeSystemBlock
	Raw    json.RawMessage
}

// ClaudeSystemBlock system 内容块，只有 text 块参与转换
type ClaudeSystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UnmarshalJSON 宽松解析 system 字段
func (s *ClaudeSystem) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		s.Text = &text
		return nil
	}

	var blocks []ClaudeSystemBlock
	if err := json.Unmarshal(data, &blocks); err == nil {
		s.Blocks = blocks
		return nil
	}

	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON 按解析时的形态还原
func (s ClaudeSystem) MarshalJSON() ([]byte, error) {
	if s.Text != nil {
		return json.Marshal(*s.Text)
	}
	if s.Blocks != nil {
		return json.Marshal(s.Blocks)
	}
	if s.Raw != nil {
		return append([]byte(nil), s.Raw...), nil
	}
	return []byte("null"), nil
}

// ClaudeTool Claude 工具定义
type ClaudeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ClaudeToolChoice tool_choice：模式串、命名选择或不透明 JSON
type ClaudeToolChoice struct {
	Mode string // "auto" / "any" 等纯字符串形式
	Type string // 对象形式的 type 字段
	Name string
	Raw  json.RawMessage
}

// UnmarshalJSON 宽松解析 tool_choice
func (t *ClaudeToolChoice) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		t.Mode = mode
		return nil
	}

	var named struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &named); err == nil && named.Type != "" {
		t.Type = named.Type
		t.Name = named.Name
		return nil
	}

	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}
