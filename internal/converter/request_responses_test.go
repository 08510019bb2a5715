package converter

import (
	"testing"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
	"github.com/yhw2003/claude-openai-bridge/internal/types"
)

func TestConvertClaudeToResponses_Basics(t *testing.T) {
	request := parseRequest(t, `{
		"model":"claude-3-5-sonnet-20241022",
		"max_tokens":256,
		"system":"be brief",
		"temperature":0.5,
		"top_p":0.8,
		"stop_sequences":["stop"],
		"messages":[{"role":"user","content":"hello"}],
		"tools":[{"name":"Bash","description":"run shell","input_schema":{"type":"object"}}],
		"tool_choice":"auto"
	}`)

	responsesRequest := ConvertClaudeToResponses(request, testConfig())

	if responsesRequest.Instructions != "be brief" {
		t.Fatalf("expected instructions, got %q", responsesRequest.Instructions)
	}
	if responsesRequest.MaxOutputTokens != 256 {
		t.Fatalf("expected max_output_tokens 256, got %d", responsesRequest.MaxOutputTokens)
	}
	if responsesRequest.Temperature == nil || *responsesRequest.Temperature != 0.5 {
		t.Fatalf("unexpected temperature: %#v", responsesRequest.Temperature)
	}
	if len(responsesRequest.Stop) != 1 || responsesRequest.Stop[0] != "stop" {
		t.Fatalf("unexpected stop: %#v", responsesRequest.Stop)
	}

	if len(responsesRequest.Input) != 1 {
		t.Fatalf("expected single input item, got %d", len(responsesRequest.Input))
	}
	item := responsesRequest.Input[0]
	if item.Type != "message" || item.Role != "user" || item.Content != "hello" {
		t.Fatalf("unexpected input item: %#v", item)
	}

	if len(responsesRequest.Tools) != 1 || responsesRequest.Tools[0].Name != "Bash" {
		t.Fatalf("tools should lose function wrapper: %#v", responsesRequest.Tools)
	}
	if responsesRequest.ToolChoice != "auto" {
		t.Fatalf("unexpected tool choice: %#v", responsesRequest.ToolChoice)
	}
}

func TestConvertClaudeToResponses_AssistantToolCalls(t *testing.T) {
	request := parseRequest(t, `{
		"model":"claude-3-5-sonnet-20241022",
		"max_tokens":256,
		"messages":[
			{"role":"assistant","content":[
				{"type":"text","text":"  "},
				{"type":"tool_use","id":"call_abc","name":"Bash","input":{"command":"go test"}}
			]},
			{"role":"user","content":[
				{"type":"tool_result","tool_use_id":"call_abc","content":"passed"}
			]}
		]
	}`)

	responsesRequest := ConvertClaudeToResponses(request, testConfig())

	if len(responsesRequest.Input) != 2 {
		t.Fatalf("expected function_call + function_call_output, got %#v", responsesRequest.Input)
	}

	call := responsesRequest.Input[0]
	if call.Type != "function_call" || call.CallID != "call_abc" || call.Name != "Bash" {
		t.Fatalf("unexpected function_call item: %#v", call)
	}
	if call.Arguments != `{"command":"go test"}` {
		t.Fatalf("unexpected arguments: %q", call.Arguments)
	}

	output := responsesRequest.Input[1]
	if output.Type != "function_call_output" || output.CallID != "call_abc" || output.Output != "passed" {
		t.Fatalf("unexpected function_call_output item: %#v", output)
	}
}

func TestConvertClaudeToResponses_ImageParts(t *testing.T) {
	request := parseRequest(t, `{
		"model":"claude-3-5-sonnet-20241022",
		"max_tokens":64,
		"messages":[{"role":"user","content":[
			{"type":"text","text":"look"},
			{"type":"image","source":{"type":"base64","media_type":"image/png","data":"QUJD"}}
		]}]
	}`)

	responsesRequest := ConvertClaudeToResponses(request, testConfig())

	parts, ok := responsesRequest.Input[0].Content.([]types.ResponsesContentPart)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected input parts, got %#v", responsesRequest.Input[0].Content)
	}
	if parts[0].Type != "input_text" || parts[0].Text != "look" {
		t.Fatalf("unexpected text part: %#v", parts[0])
	}
	if parts[1].Type != "input_image" || parts[1].ImageURL != "data:image/png;base64,QUJD" {
		t.Fatalf("unexpected image part: %#v", parts[1])
	}
}

func TestConvertClaudeToResponses_NamedToolChoiceAndReasoning(t *testing.T) {
	cfg := testConfig()
	cfg.SetRouting(&config.Routing{BigModel: "o3-mini", MiddleModel: "o3-mini", SmallModel: "o3-mini"})

	request := parseRequest(t, `{
		"model":"claude-3-5-sonnet-20241022",
		"max_tokens":256,
		"messages":[{"role":"user","content":"hello"}],
		"tools":[{"name":"Bash"}],
		"tool_choice":{"type":"tool","name":"Bash"},
		"thinking":{"type":"enabled"}
	}`)

	responsesRequest := ConvertClaudeToResponses(request, cfg)

	named, ok := responsesRequest.ToolChoice.(types.ResponsesNamedToolChoice)
	if !ok || named.Name != "Bash" || named.Type != "function" {
		t.Fatalf("unexpected tool choice: %#v", responsesRequest.ToolChoice)
	}
	if responsesRequest.Reasoning == nil || responsesRequest.Reasoning.Effort != "medium" {
		t.Fatalf("expected reasoning effort medium, got %#v", responsesRequest.Reasoning)
	}
}

func TestConvertClaudeToResponses_MultipleSystemJoined(t *testing.T) {
	request := parseRequest(t, `{
		"model":"claude-3-5-sonnet-20241022",
		"max_tokens":64,
		"system":[{"type":"text","text":"first"},{"type":"text","text":"second"}],
		"messages":[{"role":"user","content":"hello"}]
	}`)

	responsesRequest := ConvertClaudeToResponses(request, testConfig())
	if responsesRequest.Instructions != "first\n\nsecond" {
		t.Fatalf("unexpected instructions: %q", responsesRequest.Instructions)
	}
}
