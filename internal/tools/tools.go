// Package tools declares the fixed set of tools the assistant exposes
// to the language model and executes them against the calendar, mail,
// Reddit and news collaborators. Every failure is converted into an
// error [Result] so the conversation can continue.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/nugget/steward/internal/llm"
)

// Service names the external collaborator a tool depends on.
type Service string

// Services backing the assistant's tools.
const (
	ServiceCalendar Service = "calendar"
	ServiceEmail    Service = "email"
	ServiceReddit   Service = "reddit"
	ServiceNews     Service = "news"
)

// Capability is the availability of a service.
type Capability int

const (
	// Unavailable services are not configured; their tools are omitted.
	Unavailable Capability = iota
	// Degraded services are configured but currently unreachable;
	// their tools stay and the system prompt says so.
	Degraded
	// Available services are configured and healthy.
	Available
)

func (c Capability) String() string {
	switch c {
	case Degraded:
		return "degraded"
	case Available:
		return "available"
	default:
		return "unavailable"
	}
}

// Handler executes one tool call. The returned payload is serialized
// as JSON; a returned [Result] is passed through unchanged.
type Handler func(ctx context.Context, args Args) (any, error)

// Tool is a registered tool definition.
type Tool struct {
	Spec       llm.ToolSpec
	Capability Service
	Handler    Handler
}

// Registry holds tool definitions in registration order.
type Registry struct {
	tools  []Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t.Spec.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Spec.Name)
	}
	for _, existing := range r.tools {
		if existing.Spec.Name == t.Spec.Name {
			return fmt.Errorf("tool %s is already registered", t.Spec.Name)
		}
	}
	r.tools = append(r.tools, t)
	return nil
}

// Names returns every registered tool name in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Spec.Name
	}
	return names
}

// Snapshot returns the immutable set of tools whose service is not
// unavailable under caps. Services missing from caps are unavailable.
func (r *Registry) Snapshot(caps map[Service]Capability) *Set {
	s := &Set{byName: make(map[string]Tool), logger: r.logger}
	seenDegraded := map[Service]bool{}
	for _, t := range r.tools {
		c := caps[t.Capability]
		if c == Unavailable {
			continue
		}
		if c == Degraded && !seenDegraded[t.Capability] {
			seenDegraded[t.Capability] = true
			s.degraded = append(s.degraded, t.Capability)
		}
		s.tools = append(s.tools, t)
		s.byName[t.Spec.Name] = t
	}
	sort.Slice(s.degraded, func(i, j int) bool { return s.degraded[i] < s.degraded[j] })
	return s
}

// Set is the fixed tool set of one session. It is safe for concurrent
// use.
type Set struct {
	tools    []Tool
	byName   map[string]Tool
	degraded []Service
	logger   *slog.Logger
}

// Specs returns the tool specs in registration order.
func (s *Set) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, len(s.tools))
	for i, t := range s.tools {
		specs[i] = t.Spec
	}
	return specs
}

// Len returns the number of tools.
func (s *Set) Len() int { return len(s.tools) }

// Has reports whether the set contains a tool.
func (s *Set) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Degraded returns the services that are configured but unhealthy.
func (s *Set) Degraded() []Service { return slices.Clone(s.degraded) }

// Execute validates input against the tool's schema and runs its
// handler. It never panics and never returns a Go error: unknown tools,
// invalid input, handler errors and panics all become error results.
func (s *Set) Execute(ctx context.Context, name string, input map[string]any) (res Result) {
	t, ok := s.byName[name]
	if !ok {
		return Error((&ErrUnknownTool{Name: name}).Error())
	}
	if input == nil {
		input = map[string]any{}
	}
	if err := Validate(t.Spec.InputSchema, input); err != nil {
		return Error(fmt.Sprintf("invalid input for %s: %v", name, err))
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("tool panicked", "tool", name, "panic", p)
			res = Error(fmt.Sprintf("tool %s failed unexpectedly: %v", name, p))
		}
	}()

	payload, err := t.Handler(ctx, Args(input))
	if err != nil {
		return Error(err.Error())
	}
	if r, ok := payload.(Result); ok {
		return r
	}
	return OK(payload)
}

// ErrUnknownTool is reported when the model calls a tool that is not
// in the session's set.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return "Unknown tool: " + e.Name
}
