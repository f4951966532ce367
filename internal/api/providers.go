package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if s.opts.Providers == nil {
		s.unconfigured(w, "providers")
		return
	}
	s.ok(w, map[string]any{
		"providers": s.opts.Providers.List(),
		"default":   s.opts.Providers.Effective(),
	})
}

// handleSetDefaultProvider stores the preferred provider. Sessions
// created afterwards use it; existing sessions are dropped.
// POST /api/providers/default {"provider": "gemini"}
func (s *Server) handleSetDefaultProvider(w http.ResponseWriter, r *http.Request) {
	if s.opts.Providers == nil {
		s.unconfigured(w, "providers")
		return
	}
	var req struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Provider)
	if name == "" {
		s.errorResponse(w, http.StatusBadRequest, "provider is required")
		return
	}
	if err := s.opts.Providers.SetDefault(name); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.Sessions != nil {
		s.opts.Sessions.Reset()
	}
	effective := s.opts.Providers.Effective()
	s.logger.Info("default provider changed", "provider", effective)
	s.ok(w, map[string]any{"success": true, "default": effective})
}
