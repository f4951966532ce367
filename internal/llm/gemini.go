package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK. Tool use
// maps to FunctionCall parts and tool results to FunctionResponse
// parts.
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(pc ProviderConfig, opts clientOptions) (*GeminiProvider, error) {
	if pc.APIKey == "" {
		return nil, &ConfigError{Provider: "gemini", Detail: "GEMINI_API_KEY is not set", Err: ErrMissingCredential}
	}
	cc := &genai.ClientConfig{
		APIKey:     pc.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.httpClient,
	}
	if pc.BaseURL != "" {
		cc.HTTPOptions.BaseURL = pc.BaseURL
	}
	if opts.timeout > 0 {
		timeout := opts.timeout
		cc.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, &ConfigError{Provider: "gemini", Detail: "create client", Err: err}
	}

	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiProvider{
		client: client,
		model:  defaultModel("gemini", pc),
		logger: logger.With("provider", "gemini"),
	}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// SendTurn implements Provider. Gemini has no retry option, so
// transient failures are surfaced as retryable RequestErrors.
func (p *GeminiProvider) SendTurn(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.InputSchema.Map(),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := geminiContents(req.Messages)
	p.logger.Log(ctx, LevelTrace, "request contents", "count", len(contents))

	result, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		status := 0
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return nil, requestError("gemini", status, err)
	}

	proj := geminiProjector{newID: func() string { return "call_" + uuid.NewString() }}
	resp := Normalize[*genai.GenerateContentResponse](proj.withIDs(result), result)
	resp.Model = result.ModelVersion
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}

// geminiContents maps the neutral history. Function responses carry
// the function name, so it is recovered from the paired tool use.
func geminiContents(msgs []Message) []*genai.Content {
	names := make(map[string]string)
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		var parts []*genai.Part
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				if b.Text != "" {
					parts = append(parts, genai.NewPartFromText(b.Text))
				}
			case BlockToolUse:
				names[b.ToolUse.ID] = b.ToolUse.Name
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   b.ToolUse.ID,
					Name: b.ToolUse.Name,
					Args: b.ToolUse.Input,
				}})
			case BlockToolResult:
				key := "output"
				if b.ToolResult.IsError {
					key = "error"
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       b.ToolResult.ToolUseID,
					Name:     names[b.ToolResult.ToolUseID],
					Response: map[string]any{key: b.ToolResult.Content},
				}})
			}
		}
		if len(parts) > 0 {
			out = append(out, genai.NewContentFromParts(parts, genai.Role(role)))
		}
	}
	return out
}

// geminiProjector reads the first candidate. Gemini may omit call ids;
// missing ones are synthesized once per response so every accessor
// sees the same ids.
type geminiProjector struct {
	newID func() string
	ids   map[*genai.FunctionCall]string
}

func (p geminiProjector) withIDs(r *genai.GenerateContentResponse) geminiProjector {
	p.ids = make(map[*genai.FunctionCall]string)
	for _, fc := range r.FunctionCalls() {
		if fc.ID == "" {
			p.ids[fc] = p.newID()
		}
	}
	return p
}

func (p geminiProjector) ExtractText(r *genai.GenerateContentResponse) string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range r.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text += part.Text
		}
	}
	return text
}

func (p geminiProjector) ExtractToolCalls(r *genai.GenerateContentResponse) []ToolCall {
	var calls []ToolCall
	for _, fc := range r.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = p.ids[fc]
		}
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, ToolCall{ID: id, Name: fc.Name, Input: args})
	}
	return calls
}

func (p geminiProjector) StopReason(r *genai.GenerateContentResponse) StopReason {
	if len(r.FunctionCalls()) > 0 {
		return StopToolUse
	}
	return StopDone
}

var _ Provider = (*GeminiProvider)(nil)
