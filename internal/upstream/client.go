package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

const (
	userAgent        = "claude-openai-bridge/1.0.0"
	errorBodyPreview = 1024
)

// 上游端点
const (
	PathChatCompletions = "/chat/completions"
	PathResponses       = "/responses"
)

// Client 上游 OpenAI 兼容服务的 HTTP 门面
// 非流式和流式请求使用独立的超时配置
type Client struct {
	cfg          *config.Config
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient 新建上游客户端
func NewClient(cfg *config.Config) *Client {
	streamTimeout := time.Duration(0) // 流式默认不限时，长连接由上游收尾
	if cfg.StreamRequestTimeout > 0 {
		streamTimeout = time.Duration(cfg.StreamRequestTimeout) * time.Second
	}
	return &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second},
		streamClient: &http.Client{Timeout: streamTimeout},
	}
}

// Post 发送上游请求；streaming 决定使用哪套超时
// 返回的响应保证状态码 < 400，错误情况已经读完并分类
func (c *Client) Post(path string, body []byte, sessionID string, streaming bool) (*http.Response, *Error) {
	url := strings.TrimSuffix(c.cfg.OpenAIBaseURL, "/") + path
	if c.cfg.AzureAPIVersion != "" {
		url += "?api-version=" + c.cfg.AzureAPIVersion
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Status: http.StatusBadGateway, Message: ClassifyMessage(fmt.Sprintf("failed to build upstream request: %v", err))}
	}
	c.setHeaders(request, sessionID)

	client := c.httpClient
	if streaming {
		client = c.streamClient
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, &Error{Status: http.StatusBadGateway, Message: ClassifyMessage(fmt.Sprintf("upstream request failed: %v", err))}
	}

	if response.StatusCode < 400 {
		return response, nil
	}

	defer response.Body.Close()
	rawBody, _ := io.ReadAll(io.LimitReader(response.Body, 64*1024))
	rawMessage := ExtractErrorMessage(string(rawBody))

	return nil, &Error{
		Status:  clampStatus(response.StatusCode),
		Message: ClassifyMessage(bodyPreview(rawMessage, errorBodyPreview)),
	}
}

// setHeaders 注入固定头、自定义头和会话 id
// Accept-Encoding 固定 identity，避免压缩打乱 SSE 行边界
func (c *Client) setHeaders(request *http.Request, sessionID string) {
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept-Encoding", "identity")
	request.Header.Set("User-Agent", userAgent)
	request.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)

	for name, value := range c.cfg.CustomHeaders {
		if !validHeaderName(name) {
			log.Printf("⚠️ 忽略非法自定义请求头名称: %s", name)
			continue
		}
		if !validHeaderValue(value) {
			log.Printf("⚠️ 忽略非法自定义请求头值: %s", name)
			continue
		}
		// 直接写 map 保留调用方给定的大小写
		request.Header[name] = []string{value}
	}

	if sessionID != "" {
		request.Header["session_id"] = []string{sessionID}
	}
}

// ChatCompletion 非流式 Chat 调用，返回解析后的上游响应
func (c *Client) ChatCompletion(body []byte, sessionID string) (*types.ChatResponse, *Error) {
	response, upstreamErr := c.Post(PathChatCompletions, body, sessionID, false)
	if upstreamErr != nil {
		return nil, upstreamErr
	}
	defer response.Body.Close()

	rawBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &Error{Status: http.StatusBadGateway, Message: ClassifyMessage(fmt.Sprintf("failed to read upstream response body: %v", err))}
	}

	var chatResponse types.ChatResponse
	if err := json.Unmarshal(rawBody, &chatResponse); err != nil {
		return nil, decodeError(response, rawBody)
	}
	return &chatResponse, nil
}

// Responses 非流式 Responses 调用
// 部分网关即使 stream=false 也回 SSE 包裹的响应体，这里兜底回放
func (c *Client) Responses(body []byte, sessionID string) (*types.ResponsesResponse, *Error) {
	response, upstreamErr := c.Post(PathResponses, body, sessionID, false)
	if upstreamErr != nil {
		return nil, upstreamErr
	}
	defer response.Body.Close()

	rawBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &Error{Status: http.StatusBadGateway, Message: ClassifyMessage(fmt.Sprintf("failed to read upstream response body: %v", err))}
	}

	var responsesResponse types.ResponsesResponse
	if err := json.Unmarshal(rawBody, &responsesResponse); err == nil {
		return &responsesResponse, nil
	}

	if isEventStream(response.Header.Get("Content-Type"), string(rawBody)) {
		if parsed, parseErr := ParseSSEWrappedResponses(string(rawBody)); parseErr == nil {
			return parsed, nil
		}
	}

	return nil, decodeError(response, rawBody)
}

// ChatCompletionStream 流式 Chat 调用，调用方负责消费并关闭响应体
func (c *Client) ChatCompletionStream(body []byte, sessionID string) (*http.Response, *Error) {
	return c.Post(PathChatCompletions, body, sessionID, true)
}

// ResponsesStream 流式 Responses 调用
func (c *Client) ResponsesStream(body []byte, sessionID string) (*http.Response, *Error) {
	return c.Post(PathResponses, body, sessionID, true)
}

// decodeError 响应体不是合法 JSON 时的 502 错误，带内容类型和截断预览
func decodeError(response *http.Response, rawBody []byte) *Error {
	return &Error{
		Status: http.StatusBadGateway,
		Message: fmt.Sprintf("failed to parse upstream JSON response: status: %d, content-type: %s, body-preview: %s",
			response.StatusCode, response.Header.Get("Content-Type"), bodyPreview(string(rawBody), errorBodyPreview)),
	}
}

// clampStatus 非法状态码统一回落 502
func clampStatus(status int) int {
	if status < 100 || status > 599 {
		return http.StatusBadGateway
	}
	return status
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		isTokenChar := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			strings.ContainsRune("!#$%&'*+-.^_`|~", r)
		if !isTokenChar {
			return false
		}
	}
	return true
}

func validHeaderValue(value string) bool {
	for _, r := range value {
		if r < 0x20 && r != '\t' {
			return false
		}
		if r == 0x7f {
			return false
		}
	}
	return true
}
