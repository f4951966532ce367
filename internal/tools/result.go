package tools

import (
	"encoding/json"
	"fmt"

	"github.com/nugget/steward/internal/llm"
)

// Status is the outcome of a tool call.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of one tool call. For StatusError the payload
// is the error message.
type Result struct {
	Status  Status
	Payload any
}

// OK wraps a successful payload.
func OK(payload any) Result { return Result{Status: StatusOK, Payload: payload} }

// Error wraps an error message.
func Error(msg string) Result { return Result{Status: StatusError, Payload: msg} }

// IsError reports whether the call failed.
func (r Result) IsError() bool { return r.Status == StatusError }

type errorPayload struct {
	Error string `json:"error"`
}

// Text serializes the result for the model. Successful payloads render
// as JSON (strings pass through verbatim); errors render as
// {"error": msg}.
func (r Result) Text() string {
	if r.IsError() {
		b, _ := json.Marshal(errorPayload{Error: fmt.Sprint(r.Payload)})
		return string(b)
	}
	if s, ok := r.Payload.(string); ok {
		return s
	}
	b, err := json.Marshal(r.Payload)
	if err != nil {
		b, _ = json.Marshal(errorPayload{Error: "encode result: " + err.Error()})
	}
	return string(b)
}

// ToolResult wraps the result as the answer to a tool call.
func (r Result) ToolResult(toolUseID string) llm.ToolResult {
	return llm.ToolResult{ToolUseID: toolUseID, Content: r.Text(), IsError: r.IsError()}
}

// ParseResult reverses Text: the is_error flag selects the status and
// the content is decoded as JSON where possible.
func ParseResult(content string, isError bool) Result {
	if isError {
		var ep errorPayload
		if err := json.Unmarshal([]byte(content), &ep); err == nil {
			return Error(ep.Error)
		}
		return Error(content)
	}
	var payload any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return OK(content)
	}
	return OK(payload)
}
