package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/steward/internal/httpkit"
)

// OllamaProvider talks to a local Ollama server. Steward's Ollama
// backend runs without tools: schemas are never sent, the reply never
// contains tool calls, and any tool blocks already in history are
// flattened to plain text.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllama creates a Llama provider. It needs no credential.
func NewOllama(pc ProviderConfig, opts clientOptions) *OllamaProvider {
	baseURL := pc.BaseURL
	if baseURL == "" {
		baseURL = lookup("llama").baseURL
	}
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.httpClient
	if client == nil {
		timeout := opts.timeout
		if timeout == 0 {
			// Local models can take minutes on a cold load.
			timeout = 5 * time.Minute
		}
		client = httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithRetry(opts.maxRetries, 2*time.Second),
			httpkit.WithLogger(logger),
		)
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      defaultModel("llama", pc),
		httpClient: client,
		logger:     logger.With("provider", "llama"),
	}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "llama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// SendTurn implements Provider.
func (p *OllamaProvider) SendTurn(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	body := ollamaChatRequest{
		Model:    model,
		Messages: ollamaMessages(req.System, req.Messages),
		Options:  ollamaOptions{NumPredict: req.MaxTokens},
	}

	var raw ollamaChatResponse
	if err := httpkit.PostJSON(ctx, p.httpClient, p.baseURL+"/api/chat", body, &raw); err != nil {
		return nil, requestError("llama", 0, err)
	}
	p.logger.Log(ctx, LevelTrace, "response content", "content", raw.Message.Content)

	resp := Normalize[*ollamaChatResponse](ollamaProjector{}, &raw)
	resp.Model = raw.Model
	resp.Usage = Usage{InputTokens: raw.PromptEvalCount, OutputTokens: raw.EvalCount}
	return resp, nil
}

func ollamaMessages(system string, msgs []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, ollamaMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		var parts []string
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				if b.Text != "" {
					parts = append(parts, b.Text)
				}
			case BlockToolUse:
				parts = append(parts, fmt.Sprintf("[called tool %s]", b.ToolUse.Name))
			case BlockToolResult:
				parts = append(parts, fmt.Sprintf("[tool result] %s", b.ToolResult.Content))
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, ollamaMessage{Role: string(m.Role), Content: strings.Join(parts, "\n")})
	}
	return out
}

type ollamaProjector struct{}

func (ollamaProjector) ExtractText(r *ollamaChatResponse) string { return r.Message.Content }
func (ollamaProjector) ExtractToolCalls(*ollamaChatResponse) []ToolCall { return nil }
func (ollamaProjector) StopReason(*ollamaChatResponse) StopReason { return StopDone }

var _ Provider = (*OllamaProvider)(nil)
