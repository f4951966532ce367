// Package llm normalizes heterogeneous language-model backends into one
// tool-calling conversation protocol. Callers build provider-neutral
// [Message] histories and [ToolSpec] sets; each [Provider] translates
// them to its wire format and projects the reply back into a [Response].
package llm

import (
	"context"
	"log/slog"
	"strings"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags the variant held by a [ContentBlock].
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ToolCall is a model request to run one tool. ID is issued by the
// backend, or synthesized by the adapter when the backend has none, and
// must come back unchanged in the matching [ToolResult].
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ContentBlock is a tagged union over text, tool use and tool result.
// Exactly one payload matching Type is set.
type ContentBlock struct {
	Type       BlockType   `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolCall   `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextBlock wraps plain text.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock wraps a tool call.
func ToolUseBlock(c ToolCall) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUse: &c}
}

// ToolResultBlock wraps a tool result.
func ToolResultBlock(r ToolResult) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolResult: &r}
}

// Message is one entry in a conversation history. Content order is
// significant.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserText builds a single-block user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Content {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolCalls returns the tool-use blocks of the message, in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Type == BlockToolUse && b.ToolUse != nil {
			calls = append(calls, *b.ToolUse)
		}
	}
	return calls
}

// Property describes one tool input field.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Schema is the object schema of a tool's input.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Map renders the schema as a JSON-schema object.
func (s Schema) Map() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		m := map[string]any{"type": p.Type}
		if p.Description != "" {
			m["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			m["enum"] = p.Enum
		}
		if p.Default != nil {
			m["default"] = p.Default
		}
		props[name] = m
	}
	out := map[string]any{"type": "object", "properties": props}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// ToolSpec declares a callable tool to the model.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

// Request is one model turn.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// StopReason classifies why the model stopped.
type StopReason string

const (
	// StopToolUse means the model wants tool results before continuing.
	StopToolUse StopReason = "tool_use"
	// StopDone means the reply is final.
	StopDone StopReason = "done"
)

// Usage is provider-neutral token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a normalized model reply.
type Response struct {
	StopReason StopReason
	ToolCalls  []ToolCall
	Text       string
	Model      string
	Usage      Usage
}

// Provider is one language-model backend.
type Provider interface {
	// Name returns the provider id (claude, chatgpt, ...).
	Name() string
	// SendTurn sends the full history and tool set and returns the
	// normalized reply.
	SendTurn(ctx context.Context, req Request) (*Response, error)
}

// Projector extracts the normalized view from a backend-native
// response R. Implementations are pure.
type Projector[R any] interface {
	ExtractText(raw R) string
	ExtractToolCalls(raw R) []ToolCall
	StopReason(raw R) StopReason
}

// Normalize projects raw through p. The stop reason is reconciled with
// the extracted calls: a tool-use stop with no calls is final, and any
// returned call forces a tool-use stop so it gets answered.
func Normalize[R any](p Projector[R], raw R) *Response {
	calls := p.ExtractToolCalls(raw)
	stop := p.StopReason(raw)
	switch {
	case len(calls) > 0:
		stop = StopToolUse
	case stop == StopToolUse:
		stop = StopDone
	}
	return &Response{
		StopReason: stop,
		ToolCalls:  calls,
		Text:       p.ExtractText(raw),
	}
}
