package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// Fingerprint 身份指纹：sha256("<ip>|<base_key_or_anonymous>|<device_tag_or_->")
// 同时作为会话表的 key 和透传给上游的 session_id 头
func Fingerprint(ip, baseKey, deviceTag string) string {
	if baseKey == "" {
		baseKey = "anonymous"
	}
	if deviceTag == "" {
		deviceTag = "-"
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", ip, baseKey, deviceTag)))
	return hex.EncodeToString(sum[:])
}

// clientIP 取第一个合法来源：X-Forwarded-For → X-Real-IP → 对端地址
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" && net.ParseIP(realIP) != nil {
		return realIP
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
