package upstream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
)

func testClientConfig(baseURL string) *config.Config {
	return &config.Config{
		OpenAIAPIKey:   "sk-test",
		OpenAIBaseURL:  baseURL,
		RequestTimeout: 5,
		LogLevel:       "ERROR",
		CustomHeaders:  map[string]string{"X-Custom-Tag": "demo"},
	}
}

func TestClient_PostHeaders(t *testing.T) {
	var captured http.Header
	var capturedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		capturedQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl_1","choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.AzureAPIVersion = "2024-06-01"
	client := NewClient(cfg)

	response, upstreamErr := client.ChatCompletion([]byte(`{"model":"gpt-4o"}`), "session-123")
	if upstreamErr != nil {
		t.Fatalf("unexpected upstream error: %v", upstreamErr)
	}
	if response.ID != "chatcmpl_1" {
		t.Fatalf("unexpected response: %#v", response)
	}

	if captured.Get("Authorization") != "Bearer sk-test" {
		t.Fatalf("missing bearer auth: %v", captured)
	}
	if captured.Get("Accept-Encoding") != "identity" {
		t.Fatalf("Accept-Encoding must be identity: %v", captured)
	}
	if captured.Get("Content-Type") != "application/json" {
		t.Fatalf("missing content type: %v", captured)
	}
	if captured.Get("session_id") != "session-123" {
		t.Fatalf("session_id header not forwarded: %v", captured)
	}
	if captured.Get("X-Custom-Tag") != "demo" {
		t.Fatalf("custom header missing: %v", captured)
	}
	if capturedQuery != "api-version=2024-06-01" {
		t.Fatalf("azure api-version not appended: %q", capturedQuery)
	}
}

func TestClient_ErrorClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid_api_key: bad credentials"}}`))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	_, upstreamErr := client.ChatCompletion([]byte(`{}`), "")
	if upstreamErr == nil {
		t.Fatalf("expected upstream error")
	}
	if upstreamErr.Status != http.StatusUnauthorized {
		t.Fatalf("status must pass through, got %d", upstreamErr.Status)
	}
	if upstreamErr.Message != "Invalid API key. Please verify OPENAI_API_KEY configuration." {
		t.Fatalf("message not classified: %q", upstreamErr.Message)
	}
}

func TestClient_NonJSONBodyBecomes502(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html>definitely not json</html>`))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	_, upstreamErr := client.ChatCompletion([]byte(`{}`), "")
	if upstreamErr == nil {
		t.Fatalf("expected decode error")
	}
	if upstreamErr.Status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", upstreamErr.Status)
	}
	for _, needle := range []string{"status:", "content-type:", "body-preview:"} {
		if !strings.Contains(upstreamErr.Message, needle) {
			t.Fatalf("decode error must contain %q: %q", needle, upstreamErr.Message)
		}
	}
}

func TestClient_ResponsesSSEReplay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: response.completed\n" +
			"data: {\"type\":\"response.completed\",\"response\":{\"id\":\"resp_z\",\"status\":\"completed\",\"output\":[]}}\n\n"))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	response, upstreamErr := client.Responses([]byte(`{}`), "")
	if upstreamErr != nil {
		t.Fatalf("unexpected error: %v", upstreamErr)
	}
	if response.ID != "resp_z" {
		t.Fatalf("expected replayed response, got %#v", response)
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	client := NewClient(testClientConfig("http://127.0.0.1:1"))
	_, upstreamErr := client.ChatCompletion([]byte(`{}`), "")
	if upstreamErr == nil || upstreamErr.Status != http.StatusBadGateway {
		t.Fatalf("connect failure must map to 502, got %#v", upstreamErr)
	}
}
