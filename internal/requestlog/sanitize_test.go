package requestlog

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestSanitizeRequestBody_RemovesMetadata(t *testing.T) {
	body := `{"model":"claude-3-5-sonnet-20241022","metadata":{"user_id":"u_123"},"messages":[]}`
	sanitized := SanitizeRequestBody([]byte(body))

	if gjson.Get(sanitized, "metadata").Exists() {
		t.Fatalf("metadata must be removed: %s", sanitized)
	}
	if gjson.Get(sanitized, "model").String() != "claude-3-5-sonnet-20241022" {
		t.Fatalf("other fields must survive: %s", sanitized)
	}
}

func TestSanitizeRequestBody_TruncatesImageData(t *testing.T) {
	data := strings.Repeat("A", 5000)
	body := `{"messages":[{"role":"user","content":[{"type":"image","source":{"type":"base64","media_type":"image/png","data":"` + data + `"}}]}]}`

	sanitized := SanitizeRequestBody([]byte(body))

	stored := gjson.Get(sanitized, "messages.0.content.0.source.data").String()
	if stored == data {
		t.Fatalf("image data must be truncated")
	}
	if !strings.Contains(stored, "truncated") {
		t.Fatalf("expected truncation marker, got %q", stored)
	}
}

func TestSanitizeRequestBody_CapsTotalSize(t *testing.T) {
	body := `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 100_000) + `"}]}`
	sanitized := SanitizeRequestBody([]byte(body))
	if len(sanitized) > maxStoredBodyBytes {
		t.Fatalf("stored body exceeds cap: %d", len(sanitized))
	}
}
