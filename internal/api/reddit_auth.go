package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// oauthStateTTL bounds how long an authorization attempt stays valid.
const oauthStateTTL = 10 * time.Minute

// newOAuthState issues a one-time state value and drops expired ones.
func (s *Server) newOAuthState() string {
	state := uuid.NewString()
	now := s.now()
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	for k, exp := range s.oauthStates {
		if now.After(exp) {
			delete(s.oauthStates, k)
		}
	}
	s.oauthStates[state] = now.Add(oauthStateTTL)
	return state
}

// consumeOAuthState reports whether state was issued and unexpired. A
// state is accepted at most once.
func (s *Server) consumeOAuthState(state string) bool {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	exp, ok := s.oauthStates[state]
	delete(s.oauthStates, state)
	return ok && !s.now().After(exp)
}

// handleRedditAuth starts the Reddit web authorization flow.
func (s *Server) handleRedditAuth(w http.ResponseWriter, r *http.Request) {
	if s.opts.RedditAuth == nil {
		s.unconfigured(w, "reddit")
		return
	}
	http.Redirect(w, r, s.opts.RedditAuth.AuthCodeURL(s.newOAuthState()), http.StatusFound)
}

// handleRedditCallback completes the flow and stores the token.
func (s *Server) handleRedditCallback(w http.ResponseWriter, r *http.Request) {
	if s.opts.RedditAuth == nil {
		s.unconfigured(w, "reddit")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.errorResponse(w, http.StatusBadRequest, "reddit authorization denied: "+e)
		return
	}
	if !s.consumeOAuthState(q.Get("state")) {
		s.errorResponse(w, http.StatusBadRequest, "invalid or expired state")
		return
	}
	code := q.Get("code")
	if code == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing code")
		return
	}
	if err := s.opts.RedditAuth.Exchange(r.Context(), code); err != nil {
		s.logger.Error("reddit authorization failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	s.ok(w, map[string]any{
		"success": true,
		"message": "Reddit authorization complete. You can close this window.",
	})
}
