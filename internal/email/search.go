package email

import (
	"context"

	"github.com/emersion/go-imap/v2"
)

// SearchMessages searches INBOX. Results are newest first, limited to
// opts.Limit messages.
func (c *Client) SearchMessages(ctx context.Context, opts SearchOptions) ([]Envelope, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	criteria := &imap.SearchCriteria{}
	if opts.Query != "" {
		criteria.Text = append(criteria.Text, opts.Query)
	}
	if opts.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   "From",
			Value: opts.From,
		})
	}
	if !opts.Since.IsZero() {
		criteria.Since = opts.Since
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openInbox(ctx); err != nil {
		return nil, err
	}
	set, ok, err := c.searchUIDs(criteria, limit)
	if err != nil || !ok {
		return nil, err
	}
	return c.fetchEnvelopes(set)
}
