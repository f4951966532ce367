package email

import (
	"context"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
)

// Since returns up to limit inbound messages received after since,
// newest first. Mail from the owner's own address and from excluded
// sender domains is dropped.
func (c *Client) Since(ctx context.Context, since time.Time, limit int, exclusions []string) ([]Envelope, error) {
	if limit <= 0 {
		limit = 20
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openInbox(ctx); err != nil {
		return nil, err
	}

	// IMAP SINCE has day granularity; the exact cut is applied below.
	set, ok, err := c.searchUIDs(&imap.SearchCriteria{Since: since}, 0)
	if err != nil || !ok {
		return nil, err
	}
	envs, err := c.fetchEnvelopes(set)
	if err != nil {
		return nil, err
	}
	return FilterInbound(envs, since, c.cfg.Address, exclusions, limit), nil
}

// FilterInbound keeps envelopes dated after since that were not sent
// by self and whose sender domain is not excluded, up to limit entries.
func FilterInbound(envs []Envelope, since time.Time, self string, exclusions []string, limit int) []Envelope {
	self = strings.ToLower(self)
	var out []Envelope
	for _, env := range envs {
		if !env.Date.IsZero() && !env.Date.After(since) {
			continue
		}
		if self != "" && env.FromAddr == self {
			continue
		}
		if Excluded(env.FromAddr, exclusions) {
			continue
		}
		out = append(out, env)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Excluded reports whether addr's domain equals one of domains or is a
// subdomain of one.
func Excluded(addr string, domains []string) bool {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	host := strings.ToLower(addr[at+1:])
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
