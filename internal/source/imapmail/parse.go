package imapmail

import (
	"bytes"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

type parsedMessage struct {
	messageID string
	from      string
	subject   string
	date      time.Time
	text      string
	html      string
}

// body prefers the plain-text part, falling back to HTML.
func (p parsedMessage) body() string {
	if strings.TrimSpace(p.text) != "" {
		return p.text
	}
	return p.html
}

// parseMessage parses a raw RFC 5322 message with go-message. The first
// text/plain and text/html inline parts are kept; attachments are skipped.
func parseMessage(raw []byte) parsedMessage {
	var p parsedMessage
	if len(raw) == 0 {
		return p
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Unparseable MIME; keep the raw text.
		p.text = string(raw)
		return p
	}
	defer mr.Close()

	p.messageID, _ = mr.Header.MessageID()
	p.subject, _ = mr.Header.Subject()
	p.date, _ = mr.Header.Date()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		p.from = from[0].Address
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && p.text == "":
			p.text = string(body)
		case strings.HasPrefix(contentType, "text/html") && p.html == "":
			p.html = string(body)
		}
	}

	return p
}
