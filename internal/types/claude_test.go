package types

import (
	"encoding/json"
	"testing"
)

func TestClaudeContent_ParsesString(t *testing.T) {
	var content ClaudeContent
	if err := json.Unmarshal([]byte(`"hello"`), &content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content.Text == nil || *content.Text != "hello" {
		t.Fatalf("expected text content, got %#v", content)
	}
}

func TestClaudeContent_ParsesBlocks(t *testing.T) {
	payload := `[
		{"type":"text","text":"hi"},
		{"type":"tool_use","id":"call_1","name":"Bash","input":{"cmd":"ls"}},
		{"type":"tool_result","tool_use_id":"call_1","content":"ok"}
	]`

	var content ClaudeContent
	if err := json.Unmarshal([]byte(payload), &content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(content.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(content.Blocks))
	}
	if content.Blocks[0].Type != ContentText || content.Blocks[0].Text != "hi" {
		t.Fatalf("unexpected first block: %#v", content.Blocks[0])
	}
	if content.Blocks[1].ID != "call_1" || content.Blocks[1].Name != "Bash" {
		t.Fatalf("unexpected tool_use block: %#v", content.Blocks[1])
	}
	if content.Blocks[2].ToolUseID != "call_1" {
		t.Fatalf("unexpected tool_result block: %#v", content.Blocks[2])
	}
}

func TestClaudeContent_UnknownBlockFallsThrough(t *testing.T) {
	payload := `[{"type":"server_tool_use","weird":{"deep":[1,2]}},{"type":"text","text":"kept"}]`

	var content ClaudeContent
	if err := json.Unmarshal([]byte(payload), &content); err != nil {
		t.Fatalf("unknown block should not abort parsing: %v", err)
	}
	if len(content.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(content.Blocks))
	}
	if content.Blocks[0].Type != ContentUnknown {
		t.Fatalf("expected unknown block, got %q", content.Blocks[0].Type)
	}
	if len(content.Blocks[0].Raw) == 0 {
		t.Fatalf("unknown block should keep raw JSON")
	}
	if content.Blocks[1].Text != "kept" {
		t.Fatalf("following block should survive, got %#v", content.Blocks[1])
	}
}

func TestClaudeContent_OpaqueValueKept(t *testing.T) {
	var content ClaudeContent
	if err := json.Unmarshal([]byte(`{"odd":"shape"}`), &content); err != nil {
		t.Fatalf("opaque content should not fail: %v", err)
	}
	if content.Raw == nil {
		t.Fatalf("expected raw passthrough, got %#v", content)
	}
}

func TestClaudeSystem_Forms(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, system ClaudeSystem)
	}{
		{
			name:    "PlainString",
			payload: `"be brief"`,
			check: func(t *testing.T, system ClaudeSystem) {
				if system.Text == nil || *system.Text != "be brief" {
					t.Fatalf("expected text form, got %#v", system)
				}
			},
		},
		{
			name:    "Blocks",
			payload: `[{"type":"text","text":"a"},{"type":"cache_control","text":"ignored"}]`,
			check: func(t *testing.T, system ClaudeSystem) {
				if len(system.Blocks) != 2 {
					t.Fatalf("expected 2 blocks, got %d", len(system.Blocks))
				}
			},
		},
		{
			name:    "Opaque",
			payload: `12345`,
			check: func(t *testing.T, system ClaudeSystem) {
				if system.Raw == nil {
					t.Fatalf("expected raw form, got %#v", system)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var system ClaudeSystem
			if err := json.Unmarshal([]byte(tt.payload), &system); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, system)
		})
	}
}

func TestClaudeToolChoice_Forms(t *testing.T) {
	var mode ClaudeToolChoice
	if err := json.Unmarshal([]byte(`"auto"`), &mode); err != nil || mode.Mode != "auto" {
		t.Fatalf("expected mode form, got %#v (err=%v)", mode, err)
	}

	var named ClaudeToolChoice
	if err := json.Unmarshal([]byte(`{"type":"tool","name":"Bash"}`), &named); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if named.Type != "tool" || named.Name != "Bash" {
		t.Fatalf("expected named form, got %#v", named)
	}

	var opaque ClaudeToolChoice
	if err := json.Unmarshal([]byte(`[1,2]`), &opaque); err != nil {
		t.Fatalf("opaque tool_choice should not fail: %v", err)
	}
	if opaque.Raw == nil {
		t.Fatalf("expected raw passthrough, got %#v", opaque)
	}
}

func TestClaudeResponseBlock_Marshal(t *testing.T) {
	emptyText, err := json.Marshal(NewTextBlock(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(emptyText) != `{"text":"","type":"text"}` {
		t.Fatalf("empty text block must keep text field, got %s", emptyText)
	}

	toolUse, err := json.Marshal(NewToolUseBlock("call_1", "Bash", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(toolUse, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if input, ok := decoded["input"].(map[string]interface{}); !ok || len(input) != 0 {
		t.Fatalf("tool_use input should default to empty object, got %s", toolUse)
	}
}

func TestClaudeMessagesRequest_FullParse(t *testing.T) {
	payload := `{
		"model":"claude-3-5-sonnet-20241022",
		"max_tokens":1024,
		"messages":[{"role":"user","content":"hi"}],
		"system":"stay close",
		"stop_sequences":["END"],
		"stream":true,
		"temperature":0.5,
		"tools":[{"name":"Bash","input_schema":{"type":"object"}}],
		"tool_choice":{"type":"auto"},
		"thinking":{"type":"enabled","budget_tokens":4096},
		"some_future_field":{"ignored":true}
	}`

	var request ClaudeMessagesRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if request.MaxTokens != 1024 || !request.Stream {
		t.Fatalf("unexpected request: %#v", request)
	}
	if request.Thinking == nil || request.Thinking.BudgetTokens != 4096 {
		t.Fatalf("thinking not parsed: %#v", request.Thinking)
	}
	if request.ToolChoice == nil || request.ToolChoice.Type != "auto" {
		t.Fatalf("tool_choice not parsed: %#v", request.ToolChoice)
	}
}
