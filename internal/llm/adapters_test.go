package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// conversation is a history exercising every block type: a user
// question, an assistant tool use, and the paired tool result.
func conversation() []Message {
	return []Message{
		UserText("What's on my calendar?"),
		{Role: RoleAssistant, Content: []ContentBlock{
			TextBlock("Let me check."),
			ToolUseBlock(ToolCall{ID: "call_1", Name: "get_calendar_events", Input: map[string]any{"days_ahead": 3}}),
		}},
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock(ToolResult{ToolUseID: "call_1", Content: `[]`}),
		}},
	}
}

var calendarTool = ToolSpec{
	Name:        "get_calendar_events",
	Description: "Get upcoming calendar events",
	InputSchema: Schema{Properties: map[string]Property{
		"days_ahead": {Type: "integer", Description: "Number of days to look ahead (default 7)"},
	}},
}

func captureServer(t *testing.T, reply string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			if err := json.Unmarshal(body, captured); err != nil {
				t.Errorf("request body is not JSON: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropic_SendTurn(t *testing.T) {
	var req map[string]any
	srv := captureServer(t, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "Checking free time."},
			{"type": "tool_use", "id": "toolu_9", "name": "find_free_times", "input": {"duration_minutes": 30}}
		],
		"usage": {"input_tokens": 120, "output_tokens": 40}
	}`, &req)

	p, err := NewAnthropic(ProviderConfig{APIKey: "test", BaseURL: srv.URL + "/"}, clientOptions{})
	if err != nil {
		t.Fatalf("NewAnthropic() error: %v", err)
	}
	resp, err := p.SendTurn(context.Background(), Request{
		Model: "claude-test", System: "be brief", Messages: conversation(),
		Tools: []ToolSpec{calendarTool}, MaxTokens: 512,
	})
	if err != nil {
		t.Fatalf("SendTurn() error: %v", err)
	}

	if resp.StopReason != StopToolUse {
		t.Errorf("StopReason = %q, want %q", resp.StopReason, StopToolUse)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "toolu_9" || resp.ToolCalls[0].Name != "find_free_times" {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	if got := resp.ToolCalls[0].Input["duration_minutes"]; got != float64(30) {
		t.Errorf("input duration_minutes = %v", got)
	}
	if resp.Text != "Checking free time." {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.OutputTokens != 40 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	msgs, _ := req["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3", len(msgs))
	}
	last := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	if last["type"] != "tool_result" || last["tool_use_id"] != "call_1" {
		t.Errorf("tool result block = %v", last)
	}
	if tools, _ := req["tools"].([]any); len(tools) != 1 {
		t.Errorf("sent %d tools, want 1", len(tools))
	}
}

func TestAnthropic_MissingKey(t *testing.T) {
	_, err := NewAnthropic(ProviderConfig{}, clientOptions{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("error = %v, want ConfigError wrapping ErrMissingCredential", err)
	}
}

func TestAnthropic_AuthFailureNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	p, _ := NewAnthropic(ProviderConfig{APIKey: "bad", BaseURL: srv.URL + "/"}, clientOptions{})
	_, err := p.SendTurn(context.Background(), Request{Messages: []Message{UserText("hi")}, MaxTokens: 10})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusUnauthorized || reqErr.Retryable() {
		t.Errorf("RequestError = %+v, retryable=%v", reqErr, reqErr.Retryable())
	}
}

func TestOpenAI_SendTurn(t *testing.T) {
	var req map[string]any
	srv := captureServer(t, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test",
		"choices": [{
			"index": 0, "finish_reason": "tool_calls",
			"message": {"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_a", "type": "function", "function": {"name": "search_emails", "arguments": "{\"query\":\"invoice\"}"}},
				{"id": "call_b", "type": "function", "function": {"name": "get_top_news", "arguments": "{}"}}
			]}
		}],
		"usage": {"prompt_tokens": 50, "completion_tokens": 12, "total_tokens": 62}
	}`, &req)

	p, err := NewOpenAI("chatgpt", ProviderConfig{APIKey: "test", BaseURL: srv.URL + "/"}, clientOptions{})
	if err != nil {
		t.Fatalf("NewOpenAI() error: %v", err)
	}
	resp, err := p.SendTurn(context.Background(), Request{
		System: "system prompt", Messages: conversation(), Tools: []ToolSpec{calendarTool}, MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("SendTurn() error: %v", err)
	}

	if resp.StopReason != StopToolUse || len(resp.ToolCalls) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ToolCalls[0].ID != "call_a" || resp.ToolCalls[0].Input["query"] != "invoice" {
		t.Errorf("first call = %+v", resp.ToolCalls[0])
	}
	if len(resp.ToolCalls[1].Input) != 0 {
		t.Errorf("second call input = %v, want empty", resp.ToolCalls[1].Input)
	}

	msgs := req["messages"].([]any)
	roles := make([]string, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	if got := strings.Join(roles, ","); got != "system,user,assistant,tool" {
		t.Errorf("roles = %s, want system,user,assistant,tool", got)
	}
	asst := msgs[2].(map[string]any)
	calls := asst["tool_calls"].([]any)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	if fn["arguments"] != `{"days_ahead":3}` {
		t.Errorf("arguments = %v", fn["arguments"])
	}
	if tool := msgs[3].(map[string]any); tool["tool_call_id"] != "call_1" {
		t.Errorf("tool message = %v", tool)
	}
}

func TestOpenAI_FinalAnswer(t *testing.T) {
	srv := captureServer(t, `{
		"id": "x", "object": "chat.completion", "created": 1, "model": "grok-beta",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "All clear."}}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
	}`, nil)

	p, _ := NewOpenAI("grok", ProviderConfig{APIKey: "test", BaseURL: srv.URL + "/"}, clientOptions{})
	resp, err := p.SendTurn(context.Background(), Request{Messages: []Message{UserText("hi")}})
	if err != nil {
		t.Fatalf("SendTurn() error: %v", err)
	}
	if resp.StopReason != StopDone || resp.Text != "All clear." || len(resp.ToolCalls) != 0 {
		t.Errorf("resp = %+v", resp)
	}
	if p.Name() != "grok" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestGemini_SendTurn(t *testing.T) {
	var req map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [
				{"functionCall": {"name": "check_conflicts", "args": {"start_time": "2025-01-16T10:00:00"}}}
			]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 30, "candidatesTokenCount": 5}
		}`))
	}))
	defer srv.Close()

	p, err := NewGemini(ProviderConfig{APIKey: "test", BaseURL: srv.URL + "/"}, clientOptions{})
	if err != nil {
		t.Fatalf("NewGemini() error: %v", err)
	}
	resp, err := p.SendTurn(context.Background(), Request{
		System: "sys", Messages: conversation(), Tools: []ToolSpec{calendarTool},
	})
	if err != nil {
		t.Fatalf("SendTurn() error: %v", err)
	}

	if !strings.Contains(path, "gemini-pro:generateContent") {
		t.Errorf("path = %q", path)
	}
	if resp.StopReason != StopToolUse || len(resp.ToolCalls) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.HasPrefix(resp.ToolCalls[0].ID, "call_") {
		t.Errorf("synthesized id = %q, want call_ prefix", resp.ToolCalls[0].ID)
	}
	if resp.Usage.InputTokens != 30 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	contents := req["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("sent %d contents, want 3", len(contents))
	}
	part := contents[2].(map[string]any)["parts"].([]any)[0].(map[string]any)
	fr := part["functionResponse"].(map[string]any)
	if fr["name"] != "get_calendar_events" || fr["id"] != "call_1" {
		t.Errorf("functionResponse = %v", fr)
	}
}

func TestOllama_SendTurn(t *testing.T) {
	var req map[string]any
	srv := captureServer(t, `{"model":"llama3","message":{"role":"assistant","content":"Here you go."},"done":true,"prompt_eval_count":9,"eval_count":3}`, &req)

	p := NewOllama(ProviderConfig{BaseURL: srv.URL}, clientOptions{})
	resp, err := p.SendTurn(context.Background(), Request{
		System: "sys", Messages: conversation(), Tools: []ToolSpec{calendarTool}, MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("SendTurn() error: %v", err)
	}
	if resp.StopReason != StopDone || resp.ToolCalls != nil || resp.Text != "Here you go." {
		t.Errorf("resp = %+v", resp)
	}
	if _, ok := req["tools"]; ok {
		t.Error("tools must not be sent to ollama")
	}
	if opts := req["options"].(map[string]any); opts["num_predict"] != float64(100) {
		t.Errorf("options = %v", opts)
	}
	msgs := req["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("sent %d messages, want 4", len(msgs))
	}
	if c := msgs[3].(map[string]any)["content"].(string); !strings.Contains(c, "[tool result] []") {
		t.Errorf("flattened tool result = %q", c)
	}
}

func TestOllama_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllama(ProviderConfig{BaseURL: srv.URL}, clientOptions{})
	_, err := p.SendTurn(context.Background(), Request{Messages: []Message{UserText("hi")}})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusNotFound {
		t.Fatalf("error = %v, want RequestError with 404", err)
	}
	if reqErr.Retryable() {
		t.Error("404 should not be retryable")
	}
}
