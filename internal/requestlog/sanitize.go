package requestlog

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	maxStoredBodyBytes = 32 * 1024
	maxInlineImageData = 256
)

// SanitizeRequestBody 入库前清洗请求体
// 去掉客户端 metadata，截断 base64 图片数据，整体封顶 32KiB
func SanitizeRequestBody(body []byte) string {
	sanitized := string(body)

	if gjson.Get(sanitized, "metadata").Exists() {
		if patched, err := sjson.Delete(sanitized, "metadata"); err == nil {
			sanitized = patched
		}
	}

	sanitized = truncateImageData(sanitized)

	if len(sanitized) > maxStoredBodyBytes {
		sanitized = sanitized[:maxStoredBodyBytes]
	}
	return sanitized
}

// truncateImageData 把超长的 source.data 字段替换为占位说明
func truncateImageData(body string) string {
	messages := gjson.Get(body, "messages")
	if !messages.IsArray() {
		return body
	}

	for messageIndex, message := range messages.Array() {
		content := message.Get("content")
		if !content.IsArray() {
			continue
		}
		for blockIndex, block := range content.Array() {
			data := block.Get("source.data")
			if data.Type != gjson.String || len(data.String()) <= maxInlineImageData {
				continue
			}
			path := fmt.Sprintf("messages.%d.content.%d.source.data", messageIndex, blockIndex)
			placeholder := fmt.Sprintf("<%d bytes truncated>", len(data.String()))
			if patched, err := sjson.Set(body, path, placeholder); err == nil {
				body = patched
			}
		}
	}
	return body
}
