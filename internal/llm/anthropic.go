package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider talks to the Anthropic Messages API through the
// official SDK. Tool use and tool results are native content blocks.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	logger *slog.Logger
}

// NewAnthropic creates a Claude provider.
func NewAnthropic(pc ProviderConfig, opts clientOptions) (*AnthropicProvider, error) {
	if pc.APIKey == "" {
		return nil, &ConfigError{Provider: "claude", Detail: "ANTHROPIC_API_KEY is not set", Err: ErrMissingCredential}
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(pc.APIKey),
		option.WithMaxRetries(opts.maxRetries),
	}
	if pc.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(pc.BaseURL))
	}
	if opts.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.httpClient))
	}
	if opts.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.timeout))
	}

	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(reqOpts...),
		model:  defaultModel("claude", pc),
		logger: logger.With("provider", "claude"),
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "claude" }

// SendTurn implements Provider.
func (p *AnthropicProvider) SendTurn(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  anthropicMessages(req.Messages),
		Tools:     anthropicTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if p.logger.Enabled(ctx, LevelTrace) {
		if b, err := json.Marshal(params); err == nil {
			p.logger.Log(ctx, LevelTrace, "request payload", "json", string(b))
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, requestError("claude", status, err)
	}
	p.logger.Log(ctx, LevelTrace, "response content", "content", msg.Content)

	resp := Normalize[*anthropic.Message](anthropicProjector{}, msg)
	resp.Model = string(msg.Model)
	resp.Usage = Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return resp, nil
}

func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case BlockToolUse:
				input := b.ToolUse.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUse.ID, input, b.ToolUse.Name))
			case BlockToolResult:
				r := b.ToolResult
				blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolUseID, r.Content, r.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func anthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: s.InputSchema.Map()["properties"],
				Required:   s.InputSchema.Required,
			},
		}})
	}
	return out
}

// anthropicProjector reads an SDK Message.
type anthropicProjector struct{}

func (anthropicProjector) ExtractText(m *anthropic.Message) string {
	var text string
	for _, b := range m.Content {
		if b.Type == "text" {
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
	}
	return text
}

func (anthropicProjector) ExtractToolCalls(m *anthropic.Message) []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Type != "tool_use" {
			continue
		}
		calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Input: decodeArgs(b.Input)})
	}
	return calls
}

func (anthropicProjector) StopReason(m *anthropic.Message) StopReason {
	if m.StopReason == anthropic.StopReasonToolUse {
		return StopToolUse
	}
	return StopDone
}

// decodeArgs parses a JSON object of tool arguments. Malformed or
// non-object input yields an empty map so validation reports the
// missing fields.
func decodeArgs(raw []byte) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

var _ Provider = (*AnthropicProvider)(nil)
