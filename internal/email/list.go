package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// ListRecent returns the newest limit messages in INBOX, newest first.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]Envelope, error) {
	if limit <= 0 {
		limit = 20
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openInbox(ctx); err != nil {
		return nil, err
	}
	set, ok, err := c.searchUIDs(&imap.SearchCriteria{}, limit)
	if err != nil || !ok {
		return nil, err
	}
	return c.fetchEnvelopes(set)
}

// fetchEnvelopes fetches envelope data for the given UIDs and returns
// them newest first. Caller must hold c.mu with INBOX selected.
func (c *Client) fetchEnvelopes(uidSet imap.UIDSet) ([]Envelope, error) {
	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID:        true,
		Envelope:   true,
		Flags:      true,
		RFC822Size: true,
	})

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		env, err := parseMessageData(msg)
		if err != nil {
			c.logger.Debug("skipping message", "error", err)
			continue
		}
		envelopes = append(envelopes, env)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}

	for i, j := 0, len(envelopes)-1; i < j; i, j = i+1, j-1 {
		envelopes[i], envelopes[j] = envelopes[j], envelopes[i]
	}
	return envelopes, nil
}

func parseMessageData(msg *imapclient.FetchMessageData) (Envelope, error) {
	var env Envelope
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			env.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			for _, f := range data.Flags {
				env.Flags = append(env.Flags, string(f))
			}
		case imapclient.FetchItemDataRFC822Size:
			env.Size = uint32(data.Size)
		case imapclient.FetchItemDataEnvelope:
			fillEnvelope(&env, data.Envelope)
		case imapclient.FetchItemDataBodySection:
			drainLiteral(data.Literal)
		}
	}
	if env.UID == 0 {
		return env, fmt.Errorf("message missing UID")
	}
	return env, nil
}

func fillEnvelope(env *Envelope, e *imap.Envelope) {
	if e == nil {
		return
	}
	env.Date = e.Date
	env.Subject = e.Subject
	if len(e.From) > 0 {
		env.From = formatAddress(e.From[0])
		env.FromAddr = strings.ToLower(e.From[0].Addr())
	}
	for _, addr := range e.To {
		env.To = append(env.To, formatAddress(addr))
	}
}

// formatAddress renders "Name <user@host>", or "user@host" when no
// display name is set.
func formatAddress(addr imap.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}
