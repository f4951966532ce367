// Package agent implements the conversation loop: it sends the history
// and tool set to a language model, dispatches the tool calls the model
// asks for, feeds the results back, and repeats until the model answers
// in text.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/steward/internal/calendar"
	"github.com/nugget/steward/internal/llm"
	"github.com/nugget/steward/internal/prompts"
	"github.com/nugget/steward/internal/tools"
)

// ErrNotConverged is returned when the model is still asking for tools
// after the configured number of rounds.
var ErrNotConverged = errors.New("model did not produce an answer within the round limit")

// Options configures an [Engine].
type Options struct {
	Provider llm.Provider
	Model    string
	Tools    *tools.Set
	Config   Config
	Logger   *slog.Logger

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time

	// OnUsage, when set, receives the token usage of every model call.
	OnUsage func(llm.Usage)
}

// Engine owns one conversation. Turns are serialized; Chat, Clear and
// History are safe for concurrent use.
type Engine struct {
	provider llm.Provider
	model    string
	tools    *tools.Set
	cfg      Config
	loc      *time.Location
	now      func() time.Time
	onUsage  func(llm.Usage)
	logger   *slog.Logger

	mu      sync.Mutex
	history []llm.Message
}

// NewEngine creates an engine with an empty history.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("agent: provider is required")
	}
	if opts.Tools == nil {
		return nil, fmt.Errorf("agent: tool set is required")
	}
	cfg := opts.Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		provider: opts.Provider,
		model:    opts.Model,
		tools:    opts.Tools,
		cfg:      cfg,
		loc:      cfg.Location(),
		now:      now,
		onUsage:  opts.OnUsage,
		logger:   logger.With("component", "agent", "provider", opts.Provider.Name()),
	}, nil
}

// Provider returns the provider id the engine talks to.
func (e *Engine) Provider() string { return e.provider.Name() }

// Chat sends one user message and returns the model's final text.
// The history keeps everything up to a failure; a failed turn is not
// rolled back.
func (e *Engine) Chat(ctx context.Context, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.history = append(e.history, llm.UserText(text))
	system := e.systemPrompt()
	e.logger.Info("chat turn started", "history", len(e.history))

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		resp, err := e.send(ctx, system)
		if err != nil {
			e.logger.Error("model call failed", "round", round, "error", err)
			return "", err
		}

		if resp.StopReason != llm.StopToolUse || len(resp.ToolCalls) == 0 {
			reply := resp.Text
			if strings.TrimSpace(reply) == "" {
				reply = prompts.EmptyResponseFallback
			}
			// The fallback is recorded too, so the next user message
			// never follows a tool result or another user message.
			e.history = append(e.history, llm.Message{
				Role:    llm.RoleAssistant,
				Content: []llm.ContentBlock{llm.TextBlock(reply)},
			})
			e.logger.Info("chat turn completed",
				"rounds", round,
				"elapsed", time.Since(start).Round(time.Millisecond),
				"input_tokens", resp.Usage.InputTokens,
				"output_tokens", resp.Usage.OutputTokens,
			)
			return reply, nil
		}

		results := e.dispatch(ctx, resp.ToolCalls)
		if err := ctx.Err(); err != nil {
			return "", err
		}

		assistant := llm.Message{Role: llm.RoleAssistant}
		if resp.Text != "" {
			assistant.Content = append(assistant.Content, llm.TextBlock(resp.Text))
		}
		answers := llm.Message{Role: llm.RoleUser}
		for i, call := range resp.ToolCalls {
			assistant.Content = append(assistant.Content, llm.ToolUseBlock(call))
			answers.Content = append(answers.Content, llm.ToolResultBlock(results[i]))
		}
		e.history = append(e.history, assistant, answers)
	}

	e.logger.Warn("chat turn did not converge", "max_rounds", e.cfg.MaxRounds)
	return "", fmt.Errorf("%w (%d rounds)", ErrNotConverged, e.cfg.MaxRounds)
}

func (e *Engine) send(ctx context.Context, system string) (*llm.Response, error) {
	mctx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()

	resp, err := e.provider.SendTurn(mctx, llm.Request{
		Model:     e.model,
		System:    system,
		Messages:  slices.Clone(e.history),
		Tools:     e.tools.Specs(),
		MaxTokens: e.cfg.MaxTokens,
	})
	if err != nil {
		var reqErr *llm.RequestError
		if ctx.Err() == nil && errors.Is(mctx.Err(), context.DeadlineExceeded) && !errors.As(err, &reqErr) {
			return nil, &llm.RequestError{
				Provider: e.provider.Name(),
				Err:      fmt.Errorf("model call timed out after %s: %w", e.cfg.ModelTimeout, err),
			}
		}
		return nil, err
	}
	if e.onUsage != nil {
		e.onUsage(resp.Usage)
	}
	return resp, nil
}

// dispatch runs every call of one model turn, at most ToolConcurrency
// at a time, and returns the results in call order.
func (e *Engine) dispatch(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, len(calls))
	var g errgroup.Group
	g.SetLimit(e.cfg.ToolConcurrency)

	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.runTool(ctx, call).ToolResult(call.ID)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) runTool(ctx context.Context, call llm.ToolCall) tools.Result {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()

	start := time.Now()
	res := e.tools.Execute(tctx, call.Name, call.Input)
	if res.IsError() && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		res = tools.Error(fmt.Sprintf("tool %s timed out after %s", call.Name, e.cfg.ToolTimeout))
	}

	e.logger.Debug("tool dispatched",
		"tool", call.Name,
		"id", call.ID,
		"error", res.IsError(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	e.logger.Log(ctx, llm.LevelTrace, "tool result", "tool", call.Name, "input", call.Input, "result", res.Text())
	return res
}

func (e *Engine) systemPrompt() string {
	now := e.now().In(e.loc)
	var degraded []string
	for _, s := range e.tools.Degraded() {
		degraded = append(degraded, string(s))
	}
	return prompts.SystemPrompt(
		prompts.TimeContext(now, calendar.ZoneName(e.loc)),
		prompts.UTCOffset(now),
		tools.PriorityKeywords,
		degraded,
	)
}

// Clear empties the history.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// History returns a copy of the conversation so far.
func (e *Engine) History() []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.history)
}
