package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/steward/internal/email"
	"github.com/nugget/steward/internal/news"
	"github.com/nugget/steward/internal/reddit"
	"github.com/nugget/steward/internal/session"
	"github.com/nugget/steward/internal/tools"
)

const (
	upcomingLimit    = 10
	recentEmailLimit = 10
	newsLimit        = 20
	redditLimit      = 5
)

// UpcomingEvent is one entry of GET /api/calendar/upcoming.
type UpcomingEvent struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	StartDisplay string    `json:"start_display"`
	Location     string    `json:"location"`
	Description  string    `json:"description"`
	Link         string    `json:"link"`
	IsPriority   bool      `json:"is_priority"`
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	if s.opts.Calendar == nil {
		s.unconfigured(w, "calendar")
		return
	}
	events, err := s.opts.Calendar.Upcoming(r.Context(), upcomingLimit)
	if err != nil {
		s.logger.Error("upcoming events failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	loc := s.opts.Calendar.Location()
	out := make([]UpcomingEvent, len(events))
	for i, e := range events {
		start := e.Start.In(loc)
		display := start.Format("Monday, January 02 at 03:04 PM")
		if e.AllDay {
			display = start.Format("Monday, January 02") + " (all day)"
		}
		out[i] = UpcomingEvent{
			ID:           e.ID,
			Title:        e.Summary,
			Start:        start,
			StartDisplay: display,
			Location:     e.Location,
			Description:  e.Description,
			Link:         e.Link,
			IsPriority:   tools.IsPriority(e.Summary),
		}
	}
	s.ok(w, map[string]any{"events": out})
}

func (s *Server) handleRecentEmails(w http.ResponseWriter, r *http.Request) {
	if s.opts.Mail == nil {
		s.unconfigured(w, "email")
		return
	}
	since := tools.SinceLogin(s.opts.Session, s.now())
	var exclusions []string
	if s.opts.Session != nil {
		var err error
		if exclusions, err = s.opts.Session.ExclusionDomains(); err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	envs, err := s.opts.Mail.Since(r.Context(), since, recentEmailLimit, exclusions)
	if err != nil {
		s.logger.Error("recent emails failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	if envs == nil {
		envs = []email.Envelope{}
	}
	s.ok(w, map[string]any{"emails": envs, "since": since})
}

// exclusionRequest is the body of POST and DELETE
// /api/emails/exclusions.
type exclusionRequest struct {
	Domain string `json:"domain"`
}

// exclusionResponse reports the domain list after an edit.
type exclusionResponse struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message,omitempty"`
	ExclusionDomains []string `json:"exclusion_domains"`
}

func (s *Server) handleListExclusions(w http.ResponseWriter, r *http.Request) {
	if s.opts.Session == nil {
		s.unconfigured(w, "session store")
		return
	}
	domains, err := s.opts.Session.ExclusionDomains()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if domains == nil {
		domains = []string{}
	}
	s.ok(w, exclusionResponse{Success: true, ExclusionDomains: domains})
}

// exclusionDomain reads the domain from the JSON body or, failing that,
// the domain query parameter.
func exclusionDomain(r *http.Request) string {
	var req exclusionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Domain == "" {
		req.Domain = r.URL.Query().Get("domain")
	}
	return strings.TrimSpace(req.Domain)
}

func (s *Server) handleAddExclusion(w http.ResponseWriter, r *http.Request) {
	if s.opts.Session == nil {
		s.unconfigured(w, "session store")
		return
	}
	domain := exclusionDomain(r)
	added, domains, err := s.opts.Session.AddExclusionDomain(domain)
	switch {
	case errors.Is(err, session.ErrEmptyDomain):
		s.errorResponse(w, http.StatusBadRequest, "No domain provided")
	case err != nil:
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	case !added:
		s.errorResponse(w, http.StatusBadRequest, "Domain already exists")
	default:
		s.ok(w, exclusionResponse{
			Success:          true,
			Message:          "Added " + session.NormalizeDomain(domain),
			ExclusionDomains: domains,
		})
	}
}

func (s *Server) handleRemoveExclusion(w http.ResponseWriter, r *http.Request) {
	if s.opts.Session == nil {
		s.unconfigured(w, "session store")
		return
	}
	domain := exclusionDomain(r)
	removed, domains, err := s.opts.Session.RemoveExclusionDomain(domain)
	switch {
	case errors.Is(err, session.ErrEmptyDomain):
		s.errorResponse(w, http.StatusBadRequest, "No domain provided")
	case err != nil:
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	case !removed:
		s.errorResponse(w, http.StatusNotFound, "Domain not found")
	default:
		s.ok(w, exclusionResponse{
			Success:          true,
			Message:          "Removed " + session.NormalizeDomain(domain),
			ExclusionDomains: domains,
		})
	}
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if s.opts.News == nil {
		s.unconfigured(w, "news")
		return
	}
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if topic == "" {
		topic = "general"
	}
	articles, err := s.opts.News.ByTopic(r.Context(), topic, parseIntParam(r, "limit", newsLimit))
	if err != nil {
		s.logger.Error("news failed", "topic", topic, "error", err)
		s.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	if articles == nil {
		articles = []news.Article{}
	}
	s.ok(w, map[string]any{"articles": articles, "topic": topic})
}

func (s *Server) handleReddit(w http.ResponseWriter, r *http.Request) {
	if s.opts.Reddit == nil {
		s.unconfigured(w, "reddit")
		return
	}
	timeFilter := r.URL.Query().Get("time_filter")
	if timeFilter == "" {
		timeFilter = "day"
	}
	if !reddit.ValidTimeFilter(timeFilter) {
		s.errorResponse(w, http.StatusBadRequest, "invalid time_filter "+timeFilter)
		return
	}
	posts, err := s.opts.Reddit.TopFromSubscriptions(r.Context(), timeFilter, parseIntParam(r, "limit", redditLimit))
	if err != nil {
		s.logger.Error("reddit failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	if posts == nil {
		posts = []reddit.Post{}
	}
	s.ok(w, map[string]any{"posts": posts})
}
