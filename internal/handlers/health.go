package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
	"github.com/yhw2003/claude-openai-bridge/internal/types"
	"github.com/yhw2003/claude-openai-bridge/internal/upstream"
)

// Root GET / 服务信息
func Root(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		routing := cfg.Routing()
		c.JSON(http.StatusOK, gin.H{
			"message": "Claude-to-OpenAI API Proxy",
			"status":  "running",
			"config": gin.H{
				"openai_base_url":           cfg.OpenAIBaseURL,
				"api_key_configured":        cfg.OpenAIAPIKey != "",
				"client_api_key_validation": cfg.AnthropicAPIKey != "",
				"wire_api":                  string(cfg.WireAPI),
				"big_model":                 routing.BigModel,
				"middle_model":              routing.MiddleModel,
				"small_model":               routing.SmallModel,
			},
			"endpoints": gin.H{
				"messages":        "/v1/messages",
				"count_tokens":    "/v1/messages/count_tokens",
				"health":          "/health",
				"test_connection": "/test-connection",
			},
		})
	}
}

// Health GET /health 存活检查
func Health(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":                    "healthy",
			"timestamp":                 time.Now().UTC().Format(time.RFC3339),
			"openai_api_configured":     cfg.OpenAIAPIKey != "",
			"api_key_valid":             cfg.ValidateOpenAIKeyFormat(),
			"client_api_key_validation": cfg.AnthropicAPIKey != "",
		})
	}
}

// TestConnection GET /test-connection 向上游发 5 token 探测请求
func TestConnection(cfg *config.Config, client *upstream.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		routing := cfg.Routing()
		probe := types.ChatRequest{
			Model:       routing.SmallModel,
			Messages:    []types.ChatMessage{{Role: types.RoleUser, Content: "Hello"}},
			MaxTokens:   5,
			Temperature: 1.0,
		}
		probeBody, _ := json.Marshal(probe)

		chatResponse, upstreamErr := client.ChatCompletion(probeBody, "")
		if upstreamErr != nil {
			log.Printf("❌ 连接测试失败: %s", upstreamErr.Message)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "failed",
				"error_type": "API Error",
				"message":    upstreamErr.Message,
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
				"suggestions": []string{
					"Check OPENAI_API_KEY",
					"Verify model permissions",
					"Check provider rate limits",
				},
			})
			return
		}

		responseID := chatResponse.ID
		if responseID == "" {
			responseID = "unknown"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "success",
			"message":     "Successfully connected to upstream OpenAI-compatible API",
			"model_used":  routing.SmallModel,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"response_id": responseID,
		})
	}
}
