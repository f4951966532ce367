// Package email reads the owner's mailbox over IMAP. It lists, searches
// and reads messages, and reports inbound mail received since a point
// in time with excluded sender domains filtered out.
package email

import (
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
)

// drainLiteral reads and discards an IMAP literal so an unread body
// section does not stall the stream.
func drainLiteral(r imap.LiteralReader) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, r)
}

// Envelope is the summary metadata for a message.
type Envelope struct {
	// UID is the IMAP unique identifier within INBOX.
	UID uint32 `json:"uid"`

	Date time.Time `json:"date"`

	// From is formatted as "Name <addr>" or just the address.
	From string `json:"from"`

	// FromAddr is the bare sender address, used for filtering.
	FromAddr string `json:"-"`

	To      []string `json:"to,omitempty"`
	Subject string   `json:"subject"`
	Flags   []string `json:"flags,omitempty"`
	Size    uint32   `json:"size,omitempty"`
}

// Unread reports whether the message lacks the \Seen flag.
func (e Envelope) Unread() bool {
	for _, f := range e.Flags {
		if f == string(imap.FlagSeen) {
			return false
		}
	}
	return true
}

// Message is a fully-fetched email with its body extracted from the
// MIME structure.
type Message struct {
	Envelope

	MessageID  string   `json:"message_id,omitempty"`
	References []string `json:"references,omitempty"`
	Cc         []string `json:"cc,omitempty"`
	ReplyTo    string   `json:"reply_to,omitempty"`

	// TextBody is the plain-text body. When a message carries only
	// HTML, TextBody holds its text rendering.
	TextBody string `json:"body"`

	// HTMLBody is the raw HTML part, if any.
	HTMLBody string `json:"-"`
}

// SearchOptions controls a mailbox search.
type SearchOptions struct {
	// Query is free text matched against headers and body.
	Query string

	// From filters by sender address or name.
	From string

	// Since restricts results to messages on or after this date.
	Since time.Time

	// Limit is the maximum number of results. Default: 20.
	Limit int
}
