package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/steward/internal/email"
	"github.com/nugget/steward/internal/session"
)

const (
	searchLimit    = 10
	sinceFallback  = 24 * time.Hour
	defaultNewMail = 20
)

func (h *handlers) searchEmails(ctx context.Context, args Args) (any, error) {
	envs, err := h.Mail.SearchMessages(ctx, email.SearchOptions{
		Query: args.String("query"),
		Limit: searchLimit,
	})
	if err != nil {
		return nil, err
	}
	if envs == nil {
		envs = []email.Envelope{}
	}
	return envs, nil
}

type newMail struct {
	Count  int              `json:"count"`
	Since  time.Time        `json:"since"`
	Emails []email.Envelope `json:"emails"`
}

// SinceLogin returns the point new mail is measured from: the previous
// login, or 24 hours before now when there is none.
func SinceLogin(s Session, now time.Time) time.Time {
	if s != nil {
		if t, ok, err := s.PreviousLogin(); err == nil && ok {
			return t
		}
	}
	return now.Add(-sinceFallback)
}

func (h *handlers) newEmailsSinceLogin(ctx context.Context, args Args) (any, error) {
	since := SinceLogin(h.Session, h.Now())
	var exclusions []string
	if h.Session != nil {
		var err error
		if exclusions, err = h.Session.ExclusionDomains(); err != nil {
			return nil, fmt.Errorf("load exclusion domains: %w", err)
		}
	}
	limit := args.Int("max_results", defaultNewMail)
	if limit <= 0 {
		limit = defaultNewMail
	}
	envs, err := h.Mail.Since(ctx, since, limit, exclusions)
	if err != nil {
		return nil, err
	}
	if envs == nil {
		envs = []email.Envelope{}
	}
	return newMail{Count: len(envs), Since: since, Emails: envs}, nil
}

func (h *handlers) readEmail(ctx context.Context, args Args) (any, error) {
	uid := args.Int("uid", 0)
	if uid <= 0 {
		return Error("uid must be a positive integer"), nil
	}
	msg, err := h.Mail.ReadMessage(ctx, uint32(uid))
	if err != nil {
		return nil, err
	}
	return formatMessage(msg), nil
}

func formatMessage(m *email.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", m.From)
	if len(m.To) > 0 {
		fmt.Fprintf(&b, "To: %s\n", strings.Join(m.To, ", "))
	}
	if len(m.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(m.Cc, ", "))
	}
	if !m.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", m.Date.Format(time.RFC1123Z))
	}
	fmt.Fprintf(&b, "Subject: %s\n\n", m.Subject)
	b.WriteString(strings.TrimSpace(m.TextBody))
	return b.String()
}

type exclusionResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	ExclusionDomains []string `json:"exclusion_domains"`
}

func (h *handlers) addExclusionDomain(_ context.Context, args Args) (any, error) {
	if h.Session == nil {
		return nil, errors.New("session state is not available")
	}
	d := session.NormalizeDomain(args.String("domain"))
	added, domains, err := h.Session.AddExclusionDomain(d)
	if err != nil {
		return nil, err
	}
	if !added {
		return exclusionResult{Message: "Domain already exists", ExclusionDomains: domains}, nil
	}
	return exclusionResult{Success: true, Message: "Added " + d, ExclusionDomains: domains}, nil
}

func (h *handlers) removeExclusionDomain(_ context.Context, args Args) (any, error) {
	if h.Session == nil {
		return nil, errors.New("session state is not available")
	}
	d := session.NormalizeDomain(args.String("domain"))
	removed, domains, err := h.Session.RemoveExclusionDomain(d)
	if err != nil {
		return nil, err
	}
	if !removed {
		return exclusionResult{Message: "Domain not found", ExclusionDomains: domains}, nil
	}
	return exclusionResult{Success: true, Message: "Removed " + d, ExclusionDomains: domains}, nil
}

func (h *handlers) getExclusionDomains(context.Context, Args) (any, error) {
	domains := []string{}
	if h.Session != nil {
		var err error
		if domains, err = h.Session.ExclusionDomains(); err != nil {
			return nil, err
		}
	}
	return map[string][]string{"exclusion_domains": domains}, nil
}
