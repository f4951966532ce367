package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider speaks the Chat Completions API. It serves both
// ChatGPT and Grok, which exposes an OpenAI-compatible endpoint.
type OpenAIProvider struct {
	id     string
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI-compatible provider registered under id.
func NewOpenAI(id string, pc ProviderConfig, opts clientOptions) (*OpenAIProvider, error) {
	if pc.APIKey == "" {
		return nil, &ConfigError{Provider: id, Detail: "API key is not set", Err: ErrMissingCredential}
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
	return &OpenAIProvider{
		id:     id,
		client: openai.NewClient(reqOpts...),
		model:  defaultModel(id, pc),
		logger: logger.With("provider", id),
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.id }

// SendTurn implements Provider.
func (p *OpenAIProvider) SendTurn(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: openaiMessages(req.System, req.Messages),
		Tools:    openaiTools(req.Tools),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if p.logger.Enabled(ctx, LevelTrace) {
		if b, err := json.Marshal(params); err == nil {
			p.logger.Log(ctx, LevelTrace, "request payload", "json", string(b))
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, requestError(p.id, status, err)
	}

	resp := Normalize[*openai.ChatCompletion](openaiProjector{}, completion)
	resp.Model = completion.Model
	resp.Usage = Usage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	return resp, nil
}

// openaiMessages flattens the neutral history. The system prompt leads,
// assistant tool uses become tool_calls, and each tool result becomes
// its own tool-role message keyed by tool_call_id.
func openaiMessages(system string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		if m.Role == RoleAssistant {
			calls := m.ToolCalls()
			if len(calls) == 0 {
				out = append(out, openai.AssistantMessage(m.Text()))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if text := m.Text(); text != "" {
				asst.Content.OfString = openai.String(text)
			}
			for _, c := range calls {
				args, _ := json.Marshal(c.Input)
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: c.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      c.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
			continue
		}

		for _, b := range m.Content {
			switch b.Type {
			case BlockToolResult:
				out = append(out, openai.ToolMessage(b.ToolResult.Content, b.ToolResult.ToolUseID))
			case BlockText:
				if b.Text != "" {
					out = append(out, openai.UserMessage(b.Text))
				}
			}
		}
	}
	return out
}

func openaiTools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  openai.FunctionParameters(s.InputSchema.Map()),
			},
		})
	}
	return out
}

// openaiProjector reads the first choice of a ChatCompletion.
type openaiProjector struct{}

func (openaiProjector) ExtractText(c *openai.ChatCompletion) string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

func (openaiProjector) ExtractToolCalls(c *openai.ChatCompletion) []ToolCall {
	if len(c.Choices) == 0 {
		return nil
	}
	var calls []ToolCall
	for _, tc := range c.Choices[0].Message.ToolCalls {
		calls = append(calls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: decodeArgs([]byte(tc.Function.Arguments)),
		})
	}
	return calls
}

func (openaiProjector) StopReason(c *openai.ChatCompletion) StopReason {
	if len(c.Choices) > 0 && c.Choices[0].FinishReason == "tool_calls" {
		return StopToolUse
	}
	return StopDone
}

var _ Provider = (*OpenAIProvider)(nil)
