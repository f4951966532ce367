package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/steward/internal/calendar"
	"github.com/nugget/steward/internal/email"
	"github.com/nugget/steward/internal/news"
	"github.com/nugget/steward/internal/reddit"
)

// Calendar is the calendar collaborator. *calendar.Service satisfies it.
type Calendar interface {
	Location() *time.Location
	Events(ctx context.Context, daysAhead int) ([]calendar.Event, error)
	FreeSlots(ctx context.Context, daysAhead int, duration time.Duration) ([]calendar.Slot, error)
	Conflicts(ctx context.Context, start, end time.Time) ([]calendar.Event, error)
	FindByName(ctx context.Context, term string, daysAhead int) ([]calendar.Event, error)
	Create(ctx context.Context, ev calendar.NewEvent) (calendar.Event, error)
	Delete(ctx context.Context, id string) error
}

// Mailbox is the email collaborator. *email.Client satisfies it.
type Mailbox interface {
	SearchMessages(ctx context.Context, opts email.SearchOptions) ([]email.Envelope, error)
	Since(ctx context.Context, since time.Time, limit int, exclusions []string) ([]email.Envelope, error)
	ReadMessage(ctx context.Context, uid uint32) (*email.Message, error)
}

// Session is the persisted user state. *session.Store satisfies it.
type Session interface {
	PreviousLogin() (time.Time, bool, error)
	ExclusionDomains() ([]string, error)
	AddExclusionDomain(domain string) (bool, []string, error)
	RemoveExclusionDomain(domain string) (bool, []string, error)
}

// Reddit reads ranked posts. *reddit.Client satisfies it.
type Reddit interface {
	TopFromSubscriptions(ctx context.Context, timeFilter string, limit int) ([]reddit.Post, error)
}

// News reads headlines. *news.Client satisfies it.
type News interface {
	ByTopic(ctx context.Context, topic string, limit int) ([]news.Article, error)
}

// Deps are the collaborators behind the assistant tools. Nil
// collaborators are allowed; the caller marks their service
// unavailable so the tools never reach them.
type Deps struct {
	Calendar Calendar
	Mail     Mailbox
	Session  Session
	Reddit   Reddit
	News     News

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time

	Logger *slog.Logger
}
