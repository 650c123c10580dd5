// Package outlook fetches unread Outlook messages through Microsoft Graph.
package outlook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source"
)

// Adapter implements source.Fetcher for Outlook accounts.
type Adapter struct {
	client *Client
	tokens source.TokenProvider
}

// New creates an Outlook adapter.
func New(client *Client, tokens source.TokenProvider) *Adapter {
	return &Adapter{client: client, tokens: tokens}
}

// Fetch returns the newest unread messages, at most source.MaxBatch.
func (a *Adapter) Fetch(ctx context.Context, account *model.Account) ([]source.RawMessage, error) {
	var page []Message
	err := source.WithToken(ctx, a.tokens, account, func(ctx context.Context, token string) error {
		var err error
		page, err = a.client.UnreadMessages(ctx, token, source.MaxBatch)
		return err
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]source.RawMessage, 0, len(page))
	for _, m := range page {
		raw, err := toRaw(m)
		if err != nil {
			return nil, &source.TransportError{
				Provider: model.ProviderOutlook,
				Op:       fmt.Sprintf("mapping message %s", m.ID),
				Err:      err,
			}
		}
		msgs = append(msgs, raw)
	}

	return source.Truncate(msgs), nil
}

func toRaw(m Message) (source.RawMessage, error) {
	received, err := time.Parse(time.RFC3339, m.ReceivedDateTime)
	if err != nil {
		return source.RawMessage{}, fmt.Errorf("parsing receivedDateTime %q: %w", m.ReceivedDateTime, err)
	}

	var from string
	if m.From != nil {
		from = m.From.EmailAddress.Address
	}

	to := make([]string, 0, len(m.ToRecipients))
	for _, r := range m.ToRecipients {
		to = append(to, r.EmailAddress.Address)
	}

	return source.RawMessage{
		ProviderMessageID: m.ID,
		From:              from,
		To:                strings.Join(to, ", "),
		Subject:           m.Subject,
		Body:              m.Body.Content,
		ReceivedAt:        received.UTC(),
	}, nil
}
