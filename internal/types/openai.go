package types

import "encoding/json"

// ChatRequest OpenAI Chat Completions 请求结构
type ChatRequest struct {
	Model           string             `json:"model"`
	Messages        []ChatMessage      `json:"messages"`
	MaxTokens       int                `json:"max_tokens"`
	Temperature     float64            `json:"temperature"`
	ReasoningEffort string             `json:"reasoning_effort,omitempty"`
	Stream          bool               `json:"stream"`
	StreamOptions   *ChatStreamOptions `json:"stream_options,omitempty"`
	Stop            []string           `json:"stop,omitempty"`
	TopP            *float64           `json:"top_p,omitempty"`
	Tools           []ChatTool         `json:"tools,omitempty"`
	ToolChoice      interface{}        `json:"tool_choice,omitempty"`
}

// EnableStreamUsage 打开流式模式并要求上游附带 usage 统计
func (r *ChatRequest) EnableStreamUsage() {
	r.Stream = true
	r.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
}

// ChatStreamOptions 流式选项
type ChatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatMessage OpenAI 消息
// Content 是 string、内容分片数组或 null
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    interface{}    `json:"content"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ChatContentPart 用户消息分片（text / image_url）
type ChatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ChatImageURL `json:"image_url,omitempty"`
}

// ChatImageURL data URL 形式的图片
type ChatImageURL struct {
	URL string `json:"url"`
}

// ChatToolCall OpenAI 工具调用
type ChatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ChatFunctionCall `json:"function"`
}

// ChatFunctionCall 工具调用函数体
type ChatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatTool OpenAI 工具定义
type ChatTool struct {
	Type     string             `json:"type"`
	Function ChatFunctionSchema `json:"function"`
}

// ChatFunctionSchema 工具函数定义
type ChatFunctionSchema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

// ChatNamedToolChoice 指定工具的 tool_choice 形式
type ChatNamedToolChoice struct {
	Type     string            `json:"type"`
	Function ChatNamedFunction `json:"function"`
}

// ChatNamedFunction 命名函数
type ChatNamedFunction struct {
	Name string `json:"name"`
}

// ResponsesRequest OpenAI Responses API 请求结构
type ResponsesRequest struct {
	Model           string               `json:"model"`
	Input           []ResponsesInputItem `json:"input"`
	Instructions    string               `json:"instructions,omitempty"`
	MaxOutputTokens int                  `json:"max_output_tokens,omitempty"`
	Temperature     *float64             `json:"temperature,omitempty"`
	TopP            *float64             `json:"top_p,omitempty"`
	Stop            []string             `json:"stop,omitempty"`
	Reasoning       *ResponsesReasoning  `json:"reasoning,omitempty"`
	Tools           []ResponsesTool      `json:"tools,omitempty"`
	ToolChoice      interface{}          `json:"tool_choice,omitempty"`
	Stream          bool                 `json:"stream"`
}

// ResponsesReasoning reasoning 配置
type ResponsesReasoning struct {
	Effort string `json:"effort"`
}

// ResponsesInputItem Responses input 条目
// message / function_call / function_call_output 共用一个结构
type ResponsesInputItem struct {
	Type      string      `json:"type"`
	Role      string      `json:"role,omitempty"`
	Content   interface{} `json:"content,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Arguments string      `json:"arguments,omitempty"`
	Output    string      `json:"output,omitempty"`
}

// ResponsesContentPart message 条目内容分片（input_text / input_image）
type ResponsesContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ResponsesTool Responses 工具定义（没有 function 外层包装）
type ResponsesTool struct {
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

// ResponsesNamedToolChoice Responses 命名 tool_choice
type ResponsesNamedToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ChatResponse OpenAI Chat Completions 响应（宽松解析）
type ChatResponse struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage"`
}

// ChatChoice 响应选择
type ChatChoice struct {
	FinishReason string               `json:"finish_reason"`
	Message      *ChatResponseMessage `json:"message"`
}

// ChatResponseMessage 上游助手消息
type ChatResponseMessage struct {
	Content          json.RawMessage `json:"content"`
	ReasoningContent string          `json:"reasoning_content"`
	Reasoning        string          `json:"reasoning"`
	Signature        string          `json:"signature"`
	ToolCalls        []ChatToolCall  `json:"tool_calls"`
}

// ChatUsage 上游 usage 统计
type ChatUsage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens    int                  `json:"completion_tokens"`
	PromptTokensDetails *promptTokensDetails `json:"prompt_tokens_details"`
}

type promptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// CachedTokens 命中缓存的输入 token 数
func (u *ChatUsage) CachedTokens() int {
	if u == nil || u.PromptTokensDetails == nil {
		return 0
	}
	return u.PromptTokensDetails.CachedTokens
}

// ResponsesResponse OpenAI Responses API 响应（宽松解析）
type ResponsesResponse struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Output            []json.RawMessage `json:"output"`
	OutputText        string            `json:"output_text"`
	IncompleteDetails json.RawMessage   `json:"incomplete_details"`
	Usage             *ResponsesUsage   `json:"usage"`
}

// ResponsesUsage Responses usage 统计
type ResponsesUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	InputTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

// CachedTokens 命中缓存的输入 token 数
func (u *ResponsesUsage) CachedTokens() int {
	if u == nil || u.InputTokensDetails == nil {
		return 0
	}
	return u.InputTokensDetails.CachedTokens
}
