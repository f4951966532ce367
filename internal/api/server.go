// Package api implements Steward's HTTP API: chat over JSON and
// WebSocket, read-only views of the calendar, mail and feeds, provider
// selection, and the Reddit authorization flow.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/steward/internal/agent"
	"github.com/nugget/steward/internal/buildinfo"
	"github.com/nugget/steward/internal/calendar"
	"github.com/nugget/steward/internal/connwatch"
	"github.com/nugget/steward/internal/llm"
	"github.com/nugget/steward/internal/tools"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Calendar is the calendar view the API serves. *calendar.Service
// satisfies it.
type Calendar interface {
	Location() *time.Location
	Upcoming(ctx context.Context, limit int) ([]calendar.Event, error)
}

// Providers lists and selects language-model providers. *llm.Factory
// satisfies it.
type Providers interface {
	List() []llm.ProviderStatus
	Effective() string
	SetDefault(name string) error
}

// RedditAuth runs the Reddit web authorization flow. *reddit.Auth
// satisfies it.
type RedditAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
}

// HealthSource reports per-service connectivity. *connwatch.Manager
// satisfies it.
type HealthSource interface {
	Status() map[string]connwatch.ServiceStatus
}

// Options wires the server to its collaborators. Nil collaborators
// make their endpoints answer 503.
type Options struct {
	Address string
	Port    int

	Sessions  *agent.Sessions
	Providers Providers

	Calendar   Calendar
	Mail       tools.Mailbox
	Session    tools.Session
	News       tools.News
	Reddit     tools.Reddit
	RedditAuth RedditAuth

	Health       HealthSource
	Capabilities func() map[tools.Service]tools.Capability

	// Now overrides the clock. Default: time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader

	statesMu    sync.Mutex
	oauthStates map[string]time.Time
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		opts:   opts,
		now:    now,
		logger: logger.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16 * 1024,
		},
		oauthStates: make(map[string]time.Time),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/clear", s.handleChatClear)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)

	// Read-only views
	mux.HandleFunc("GET /api/calendar/upcoming", s.handleUpcoming)
	mux.HandleFunc("GET /api/emails/recent", s.handleRecentEmails)
	mux.HandleFunc("GET /api/emails/exclusions", s.handleListExclusions)
	mux.HandleFunc("POST /api/emails/exclusions", s.handleAddExclusion)
	mux.HandleFunc("DELETE /api/emails/exclusions", s.handleRemoveExclusion)
	mux.HandleFunc("GET /api/news", s.handleNews)
	mux.HandleFunc("GET /api/reddit", s.handleReddit)

	// Providers
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("POST /api/providers/default", s.handleSetDefaultProvider)

	// Reddit web authorization
	mux.HandleFunc("GET /auth/reddit", s.handleRedditAuth)
	mux.HandleFunc("GET /auth/reddit/callback", s.handleRedditCallback)

	// Health endpoints
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns
// [http.ErrServerClosed] after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.opts.Address, s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // a chat turn may run many tool rounds
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.opts.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.opts.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}

func (s *Server) ok(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v, s.logger)
}

func (s *Server) unconfigured(w http.ResponseWriter, service string) {
	s.errorResponse(w, http.StatusServiceUnavailable, service+" is not configured")
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.ok(w, map[string]string{
		"name":    "Steward",
		"version": buildinfo.Version,
		"status":  "ok",
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.ok(w, buildinfo.Info())
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status       string                             `json:"status"`
	Version      string                             `json:"version"`
	Uptime       string                             `json:"uptime"`
	Provider     string                             `json:"provider,omitempty"`
	Services     map[string]connwatch.ServiceStatus `json:"services"`
	Capabilities map[string]string                  `json:"capabilities"`
}

// handleHealth reports "healthy" unless a configured service is
// degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "healthy",
		Version:      buildinfo.Version,
		Uptime:       buildinfo.Uptime().Round(time.Second).String(),
		Services:     map[string]connwatch.ServiceStatus{},
		Capabilities: map[string]string{},
	}
	if s.opts.Providers != nil {
		resp.Provider = s.opts.Providers.Effective()
	}
	if s.opts.Health != nil {
		resp.Services = s.opts.Health.Status()
	}
	if s.opts.Capabilities != nil {
		for svc, c := range s.opts.Capabilities() {
			resp.Capabilities[string(svc)] = c.String()
			if c == tools.Degraded {
				resp.Status = "degraded"
			}
		}
	}
	s.ok(w, resp)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
