package tools

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/steward/internal/llm"
	"github.com/nugget/steward/internal/reddit"
)

// handlers binds tool handlers to their collaborators.
type handlers struct {
	Deps
	logger *slog.Logger
}

// NewAssistantRegistry builds the registry of every assistant tool, in
// the order the model sees them.
func NewAssistantRegistry(d Deps) (*Registry, error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{Deps: d, logger: logger.With("component", "tools")}
	r := NewRegistry(h.logger)

	defs := []Tool{
		{
			Spec: spec("get_calendar_events", "Get calendar events for the next N days",
				props{"days_ahead": {Type: "integer", Description: "Number of days to look ahead (default 7)", Default: 7}}),
			Capability: ServiceCalendar,
			Handler:    h.getCalendarEvents,
		},
		{
			Spec: spec("find_free_times", "Find available time slots in the calendar",
				props{
					"days_ahead":       {Type: "integer", Description: "Number of days to search (default 7)", Default: 7},
					"duration_minutes": {Type: "integer", Description: "Required slot duration in minutes (default 60)", Default: 60},
				}),
			Capability: ServiceCalendar,
			Handler:    h.findFreeTimes,
		},
		{
			Spec: spec("create_calendar_event",
				"Create a new calendar event. IMPORTANT: Use the exact date from the reference dates provided. All times are in the local timezone given in the time context.",
				props{
					"summary":          {Type: "string", Description: "Event title"},
					"start_time":       {Type: "string", Description: "Start time in ISO format with timezone offset, e.g., '2026-01-08T20:30:00-05:00'. A time without an offset is taken as local time."},
					"duration_minutes": {Type: "integer", Description: "Event duration in minutes"},
					"description":      {Type: "string", Description: "Event description (optional)"},
					"location":         {Type: "string", Description: "Event location (optional)"},
				}, "summary", "start_time", "duration_minutes"),
			Capability: ServiceCalendar,
			Handler:    h.createCalendarEvent,
		},
		{
			Spec: spec("search_emails", "Search emails for scheduling-related content",
				props{"query": {Type: "string", Description: "Search query for emails"}}, "query"),
			Capability: ServiceEmail,
			Handler:    h.searchEmails,
		},
		{
			Spec: spec("check_conflicts", "Check if a proposed time has conflicts, especially with priority events",
				props{
					"start_time": {Type: "string", Description: "Start time in ISO format with timezone offset"},
					"end_time":   {Type: "string", Description: "End time in ISO format with timezone offset"},
				}, "start_time", "end_time"),
			Capability: ServiceCalendar,
			Handler:    h.checkConflicts,
		},
		{
			Spec: spec("find_event", "Search for calendar events by name/keyword. Use this to find an event before deleting it.",
				props{
					"search_term": {Type: "string", Description: "The name or keyword to search for in event titles"},
					"days_ahead":  {Type: "integer", Description: "Number of days to search ahead (default 30)", Default: 30},
				}, "search_term"),
			Capability: ServiceCalendar,
			Handler:    h.findEvent,
		},
		{
			Spec: spec("delete_event", "Delete a calendar event by its ID. Always use find_event first to get the correct event ID, and confirm with the user before deleting.",
				props{
					"event_id":      {Type: "string", Description: "The unique ID of the event to delete"},
					"event_summary": {Type: "string", Description: "The name of the event (for confirmation logging)"},
				}, "event_id"),
			Capability: ServiceCalendar,
			Handler:    h.deleteEvent,
		},
		{
			Spec: spec("get_new_emails_since_login", "Get inbound emails received since the user's previous login (or the last 24 hours), skipping excluded sender domains",
				props{"max_results": {Type: "integer", Description: "Maximum number of emails to return (default 20)", Default: 20}}),
			Capability: ServiceEmail,
			Handler:    h.newEmailsSinceLogin,
		},
		{
			Spec: spec("read_email", "Read the full text of an email by its uid, as returned by search_emails or get_new_emails_since_login",
				props{"uid": {Type: "integer", Description: "The email uid"}}, "uid"),
			Capability: ServiceEmail,
			Handler:    h.readEmail,
		},
		{
			Spec: spec("add_exclusion_domain", "Exclude a sender domain (and its subdomains) from new-email summaries",
				props{"domain": {Type: "string", Description: "Domain to exclude, e.g. 'newsletters.example.com'"}}, "domain"),
			Capability: ServiceEmail,
			Handler:    h.addExclusionDomain,
		},
		{
			Spec: spec("remove_exclusion_domain", "Stop excluding a sender domain from new-email summaries",
				props{"domain": {Type: "string", Description: "Domain to stop excluding"}}, "domain"),
			Capability: ServiceEmail,
			Handler:    h.removeExclusionDomain,
		},
		{
			Spec:       spec("get_exclusion_domains", "List the sender domains excluded from new-email summaries", props{}),
			Capability: ServiceEmail,
			Handler:    h.getExclusionDomains,
		},
		{
			Spec: spec("get_top_reddit_posts", "Get the top posts from the user's subscribed subreddits, ranked by score",
				props{
					"limit":       {Type: "integer", Description: "Number of posts to return (default 10)", Default: 10},
					"time_filter": {Type: "string", Description: "Time window for top posts (default day); 'all' returns the hottest posts right now", Enum: reddit.TimeFilters, Default: "day"},
				}),
			Capability: ServiceReddit,
			Handler:    h.topRedditPosts,
		},
		{
			Spec: spec("get_top_news", "Get top news headlines for a topic such as business, marketing, stocks, technology, sports, entertainment, health, science or general",
				props{
					"topic": {Type: "string", Description: "News topic (default general)", Default: "general"},
					"limit": {Type: "integer", Description: "Number of articles to return (default 10)", Default: 10},
				}),
			Capability: ServiceNews,
			Handler:    h.topNews,
		},
	}

	for _, t := range defs {
		if err := r.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.Spec.Name, err)
		}
	}
	return r, nil
}

type props map[string]llm.Property

func spec(name, description string, p props, required ...string) llm.ToolSpec {
	return llm.ToolSpec{
		Name:        name,
		Description: description,
		InputSchema: llm.Schema{Properties: p, Required: required},
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// displayTime renders "Thursday, January 16, 2025 at 02:00 PM EST".
func displayTime(t time.Time) string {
	return t.Format("Monday, January 02, 2006 at 03:04 PM MST")
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
