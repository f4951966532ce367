package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/nugget/steward/internal/htmltext"
)

// maxBodySize bounds the extracted body text.
const maxBodySize = 32 * 1024

// maxRawMessageSize bounds how much of the raw RFC822 literal is
// buffered. The remainder is drained to keep the stream in sync.
const maxRawMessageSize = 5 * 1024 * 1024

const truncatedNote = "\n\n[truncated: message exceeds 32KB]"

// ReadMessage fetches and parses one INBOX message by UID. Reading
// marks the message \Seen.
func (c *Client) ReadMessage(ctx context.Context, uid uint32) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openInbox(ctx); err != nil {
		return nil, err
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		Flags:       true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{{}},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message UID %d not found in %s", uid, inbox)
	}

	result := &Message{}
	var rawBody []byte

	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			result.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			for _, f := range data.Flags {
				result.Flags = append(result.Flags, string(f))
			}
		case imapclient.FetchItemDataRFC822Size:
			result.Size = uint32(data.Size)
		case imapclient.FetchItemDataEnvelope:
			fillEnvelope(&result.Envelope, data.Envelope)
			if data.Envelope != nil {
				result.MessageID = data.Envelope.MessageID
				for _, addr := range data.Envelope.Cc {
					result.Cc = append(result.Cc, formatAddress(addr))
				}
				if len(data.Envelope.ReplyTo) > 0 {
					result.ReplyTo = formatAddress(data.Envelope.ReplyTo[0])
				}
			}
		case imapclient.FetchItemDataBodySection:
			// The literal must be consumed before the next item or
			// its bytes are lost.
			if data.Literal == nil {
				continue
			}
			var readErr error
			rawBody, readErr = io.ReadAll(io.LimitReader(data.Literal, maxRawMessageSize))
			drainLiteral(data.Literal)
			if readErr != nil {
				c.logger.Debug("error reading body literal", "uid", uid, "error", readErr)
				rawBody = nil
			}
		}
	}

	if rawBody != nil {
		if err := c.parseBody(result, bytes.NewReader(rawBody)); err != nil {
			c.logger.Debug("body parse error", "uid", uid, "error", err)
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch message UID %d: %w", uid, err)
	}
	return result, nil
}

// parseBody walks the MIME structure for the first text/plain and
// text/html parts and the References header. Unknown charsets are
// tolerated: go-message returns a usable reader alongside the error.
func (c *Client) parseBody(msg *Message, r io.Reader) error {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return fmt.Errorf("create mail reader: %w", err)
	}
	if mr == nil {
		return fmt.Errorf("create mail reader returned nil: %w", err)
	}

	if refs, err := mr.Header.MsgIDList("References"); err == nil && len(refs) > 0 {
		msg.References = refs
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return fmt.Errorf("next part: %w", err)
		}
		if part == nil {
			continue
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()

		switch {
		case contentType == "text/plain" && msg.TextBody == "":
			msg.TextBody = c.readPart(part.Body)
		case contentType == "text/html" && msg.HTMLBody == "":
			msg.HTMLBody = c.readPart(part.Body)
		}
	}

	if msg.TextBody == "" && msg.HTMLBody != "" {
		msg.TextBody = htmltext.Text(msg.HTMLBody)
	}
	return nil
}

func (c *Client) readPart(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		c.logger.Debug("error reading body part", "error", err)
		return ""
	}
	text := string(body)
	if len(body) > maxBodySize {
		text = text[:maxBodySize] + truncatedNote
	}
	return strings.TrimSpace(text)
}
