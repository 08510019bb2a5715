package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
)

// context key 常量
const (
	ContextKeyIdentity  = "sessionIdentity"
	ContextKeyDeviceTag = "deviceTag"
)

// secureCompare 常数时间比较，防止时序攻击
func secureCompare(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ClientAuthMiddleware 校验客户端密钥并计算身份指纹
// 凭据形如 <key>[|<device_tag>]，x-api-key 和 Authorization: Bearer 都接受
// 未配置 ANTHROPIC_API_KEY 时匿名放行，但仍然产出身份指纹
func ClientAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := extractClientCredential(c)
		baseKey, deviceTag := splitCredential(credential)

		if cfg.AnthropicAPIKey != "" {
			if !secureCompare(baseKey, cfg.AnthropicAPIKey) {
				if cfg.ShouldLog("info") {
					log.Printf("🔒 [认证失败] IP: %s | Path: %s", clientIP(c), c.Request.URL.Path)
				}
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"detail": "Invalid API key. Please provide a valid Anthropic API key.",
				})
				return
			}
		}

		identityKey := baseKey
		if identityKey == "" {
			identityKey = "anonymous"
		}
		c.Set(ContextKeyIdentity, Fingerprint(clientIP(c), identityKey, deviceTag))
		c.Set(ContextKeyDeviceTag, deviceTag)
		c.Next()
	}
}

// extractClientCredential 依次尝试 x-api-key 和 Authorization 头
func extractClientCredential(c *gin.Context) string {
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}

	authorization := c.GetHeader("Authorization")
	if authorization == "" {
		return ""
	}
	scheme, value, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// splitCredential 分离密钥本体和可选的设备标签
func splitCredential(credential string) (baseKey, deviceTag string) {
	baseKey, deviceTag, found := strings.Cut(credential, "|")
	if !found || deviceTag == "" {
		deviceTag = "-"
	}
	return baseKey, deviceTag
}

// Identity 取出中间件写入的身份指纹
func Identity(c *gin.Context) string {
	identity, _ := c.Get(ContextKeyIdentity)
	fingerprint, _ := identity.(string)
	return fingerprint
}
