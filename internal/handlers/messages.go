package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
	"github.com/yhw2003/claude-openai-bridge/internal/converter"
	"github.com/yhw2003/claude-openai-bridge/internal/middleware"
	"github.com/yhw2003/claude-openai-bridge/internal/requestlog"
	"github.com/yhw2003/claude-openai-bridge/internal/session"
	"github.com/yhw2003/claude-openai-bridge/internal/stream"
	"github.com/yhw2003/claude-openai-bridge/internal/types"
	"github.com/yhw2003/claude-openai-bridge/internal/upstream"
)

// CreateMessage POST /v1/messages 主入口
// 按 wire_api 配置选择 Chat 或 Responses 上游线协议
func CreateMessage(cfg *config.Config, client *upstream.Client, sessions *session.Manager, reqLog *requestlog.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		bodyBytes, ok := readRequestBody(c)
		if !ok {
			return
		}

		var claudeRequest types.ClaudeMessagesRequest
		if err := json.Unmarshal(bodyBytes, &claudeRequest); err != nil {
			badRequest(c, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		if cfg.ShouldLog("debug") {
			log.Printf("收到下游请求: model=%s stream=%t max_tokens=%d messages=%d",
				claudeRequest.Model, claudeRequest.Stream, claudeRequest.MaxTokens, len(claudeRequest.Messages))
		}

		identity := middleware.Identity(c)
		sessionID := sessions.Resolve(identity)

		exchange := &messageExchange{
			cfg:         cfg,
			client:      client,
			sessions:    sessions,
			reqLog:      reqLog,
			identity:    identity,
			sessionID:   sessionID,
			started:     started,
			requestBody: bodyBytes,
			request:     &claudeRequest,
		}

		if cfg.WireAPI == config.WireResponses {
			exchange.runResponses(c)
			return
		}
		exchange.runChat(c)
	}
}

// messageExchange 单次 /v1/messages 交换的上下文
type messageExchange struct {
	cfg         *config.Config
	client      *upstream.Client
	sessions    *session.Manager
	reqLog      *requestlog.Manager
	identity    string
	sessionID   string
	started     time.Time
	requestBody []byte
	request     *types.ClaudeMessagesRequest
}

// runChat Chat Completions 线协议
func (e *messageExchange) runChat(c *gin.Context) {
	chatRequest := converter.ConvertClaudeToChat(e.request, e.cfg)

	if e.request.Stream {
		chatRequest.EnableStreamUsage()
		upstreamBody, err := json.Marshal(chatRequest)
		if err != nil {
			internalError(c, fmt.Sprintf("failed to marshal upstream request: %v", err))
			return
		}

		response, upstreamErr := e.client.ChatCompletionStream(upstreamBody, e.sessionID)
		if upstreamErr != nil {
			e.renderStreamSetupError(c, chatRequest.Model, upstreamErr)
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		events, usageOut := stream.StreamChatToClaude(ctx, response.Body, e.request.Model)
		e.drainStream(c, chatRequest.Model, cancel, events, usageOut)
		return
	}

	upstreamBody, err := json.Marshal(chatRequest)
	if err != nil {
		internalError(c, fmt.Sprintf("failed to marshal upstream request: %v", err))
		return
	}

	chatResponse, upstreamErr := e.client.ChatCompletion(upstreamBody, e.sessionID)
	if upstreamErr != nil {
		e.renderUpstreamError(c, chatRequest.Model, upstreamErr)
		return
	}

	claudeResponse, convErr := converter.ConvertChatToClaude(chatResponse, e.request.Model)
	if convErr != nil {
		internalError(c, convErr.Error())
		return
	}
	e.finishBuffered(c, chatRequest.Model, claudeResponse)
}

// runResponses Responses 线协议
func (e *messageExchange) runResponses(c *gin.Context) {
	responsesRequest := converter.ConvertClaudeToResponses(e.request, e.cfg)

	if e.request.Stream {
		responsesRequest.Stream = true
		upstreamBody, err := json.Marshal(responsesRequest)
		if err != nil {
			internalError(c, fmt.Sprintf("failed to marshal upstream request: %v", err))
			return
		}

		response, upstreamErr := e.client.ResponsesStream(upstreamBody, e.sessionID)
		if upstreamErr != nil {
			e.renderStreamSetupError(c, responsesRequest.Model, upstreamErr)
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		events, usageOut := stream.StreamResponsesToClaude(ctx, response.Body, e.request.Model, thinkingRequested(e.request))
		e.drainStream(c, responsesRequest.Model, cancel, events, usageOut)
		return
	}

	upstreamBody, err := json.Marshal(responsesRequest)
	if err != nil {
		internalError(c, fmt.Sprintf("failed to marshal upstream request: %v", err))
		return
	}

	responsesResponse, upstreamErr := e.client.Responses(upstreamBody, e.sessionID)
	if upstreamErr != nil {
		e.renderUpstreamError(c, responsesRequest.Model, upstreamErr)
		return
	}

	claudeResponse, convErr := converter.ConvertResponsesToClaude(responsesResponse, e.request.Model)
	if convErr != nil {
		internalError(c, convErr.Error())
		return
	}
	e.finishBuffered(c, responsesRequest.Model, claudeResponse)
}

// drainStream 把流水线产出的帧写给客户端
// 写失败视为客户端断开：取消流水线、不再写入，只把已缓冲的帧排空等它收尾
func (e *messageExchange) drainStream(c *gin.Context, upstreamModel string, cancel context.CancelFunc, events <-chan string, usageOut <-chan types.Usage) {
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	writeFailed := false

	for frame := range events {
		if writeFailed {
			continue
		}
		if _, err := c.Writer.WriteString(frame); err != nil {
			writeFailed = true
			cancel()
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	usage := <-usageOut
	e.sessions.AddUsage(e.identity, usage.Total())
	e.record(upstreamModel, true, http.StatusOK, usage, "")
}

// finishBuffered 输出非流式响应并记账
func (e *messageExchange) finishBuffered(c *gin.Context, upstreamModel string, claudeResponse *types.ClaudeResponse) {
	e.sessions.AddUsage(e.identity, claudeResponse.Usage.Total())
	e.record(upstreamModel, false, http.StatusOK, claudeResponse.Usage, "")
	c.JSON(http.StatusOK, claudeResponse)
}

// renderUpstreamError 非流式错误按 {detail} 透传状态码
func (e *messageExchange) renderUpstreamError(c *gin.Context, upstreamModel string, upstreamErr *upstream.Error) {
	log.Printf("❌ 上游错误: %s", upstreamErr.Message)
	e.record(upstreamModel, false, upstreamErr.Status, types.Usage{}, upstreamErr.Message)
	c.JSON(upstreamErr.Status, gin.H{"detail": upstreamErr.Message})
}

// renderStreamSetupError 流还没建立时的错误走 Claude error 事件形态的 JSON
func (e *messageExchange) renderStreamSetupError(c *gin.Context, upstreamModel string, upstreamErr *upstream.Error) {
	log.Printf("❌ 流式上游错误: %s", upstreamErr.Message)
	e.record(upstreamModel, true, upstreamErr.Status, types.Usage{}, upstreamErr.Message)
	c.JSON(upstreamErr.Status, gin.H{
		"type":  "error",
		"error": gin.H{"type": "api_error", "message": upstreamErr.Message},
	})
}

// record 写请求日志（启用时）
func (e *messageExchange) record(upstreamModel string, streaming bool, status int, usage types.Usage, errMessage string) {
	if e.reqLog == nil {
		return
	}
	e.reqLog.RecordAsync(requestlog.Entry{
		ClaudeModel:   e.request.Model,
		UpstreamModel: upstreamModel,
		WireAPI:       string(e.cfg.WireAPI),
		Streaming:     streaming,
		StatusCode:    status,
		DurationMS:    time.Since(e.started).Milliseconds(),
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		SessionID:     e.sessionID,
		Error:         errMessage,
		RequestBody:   requestlog.SanitizeRequestBody(e.requestBody),
	})
}

// thinkingRequested 下游是否请求了 thinking 展示
func thinkingRequested(request *types.ClaudeMessagesRequest) bool {
	if request.Thinking == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(request.Thinking.Type)) {
	case "", "disabled", "off", "none":
		return false
	default:
		return true
	}
}

// readRequestBody 读取请求体，超限映射为 413
func readRequestBody(c *gin.Context) ([]byte, bool) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"detail": fmt.Sprintf("request body too large (limit %d bytes)", maxBytesErr.Limit),
			})
			return nil, false
		}
		badRequest(c, fmt.Sprintf("failed to read request body: %v", err))
		return nil, false
	}
	return bodyBytes, true
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": message})
}

func internalError(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": message})
}
