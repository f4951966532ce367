package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// errNoSessions is returned when the server has no session table.
var errNoSessions = errors.New("chat is not available")

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	HTML      string `json:"html"`
	SessionID string `json:"session_id"`
	Provider  string `json:"provider,omitempty"`
}

// chat runs one turn in the named session and returns the reply and
// the provider that answered it.
func (s *Server) chat(ctx context.Context, sessionID, text string) (reply, provider string, err error) {
	if s.opts.Sessions == nil {
		return "", "", errNoSessions
	}
	engine, err := s.opts.Sessions.Get(sessionID)
	if err != nil {
		return "", "", err
	}
	reply, err = engine.Chat(ctx, text)
	return reply, engine.Provider(), err
}

// handleChat runs one chat turn.
// POST /api/chat {"message": "what's on my calendar tomorrow?"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, provider, err := s.chat(r.Context(), sessionID, text)
	if err != nil {
		if errors.Is(err, errNoSessions) {
			s.errorResponse(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "agent error: "+err.Error())
		return
	}

	s.ok(w, ChatResponse{
		Response:  reply,
		HTML:      RenderMarkdown(reply),
		SessionID: sessionID,
		Provider:  provider,
	})
}

// handleChatClear empties a session's history.
// POST /api/chat/clear {"session_id": "..."}
func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		s.errorResponse(w, http.StatusBadRequest, "session_id is required")
		return
	}
	cleared := false
	if s.opts.Sessions != nil {
		cleared = s.opts.Sessions.Clear(req.SessionID)
	}
	s.ok(w, map[string]any{
		"success":    true,
		"cleared":    cleared,
		"session_id": req.SessionID,
	})
}
