// Package gmail fetches unread Gmail messages through the Gmail REST API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source"
)

const unreadQuery = "is:unread"

// Adapter implements source.Fetcher for Gmail accounts.
type Adapter struct {
	tokens     source.TokenProvider
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithEndpoint points the adapter at a different API root.
func WithEndpoint(url string) Option {
	return func(a *Adapter) { a.endpoint = url }
}

// WithHTTPClient sets the base client that carries bearer tokens.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// New creates a Gmail adapter that obtains tokens from tokens.
func New(tokens source.TokenProvider, opts ...Option) *Adapter {
	a := &Adapter{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch lists up to source.MaxBatch unread messages and downloads each
// one in full. Any failure discards the whole batch.
func (a *Adapter) Fetch(ctx context.Context, account *model.Account) ([]source.RawMessage, error) {
	var msgs []source.RawMessage
	err := source.WithToken(ctx, a.tokens, account, func(ctx context.Context, token string) error {
		var err error
		msgs, err = a.fetch(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (a *Adapter) service(ctx context.Context, token string) (*gm.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	return gm.NewService(ctx, opts...)
}

func (a *Adapter) fetch(ctx context.Context, token string) ([]source.RawMessage, error) {
	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, transportErr("creating service", err)
	}

	list, err := svc.Users.Messages.List("me").
		Q(unreadQuery).
		MaxResults(source.MaxBatch).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("listing messages", err)
	}

	refs := list.Messages
	if len(refs) > source.MaxBatch {
		refs = refs[:source.MaxBatch]
	}

	msgs := make([]source.RawMessage, 0, len(refs))
	for _, ref := range refs {
		full, err := svc.Users.Messages.Get("me", ref.Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			return nil, classify(fmt.Sprintf("getting message %s", ref.Id), err)
		}

		raw, err := a.normalize(full)
		if err != nil {
			return nil, transportErr(fmt.Sprintf("decoding message %s", ref.Id), err)
		}
		msgs = append(msgs, raw)
	}

	return msgs, nil
}

// normalize converts a full Gmail message into a RawMessage.
func (a *Adapter) normalize(msg *gm.Message) (source.RawMessage, error) {
	raw := source.RawMessage{ProviderMessageID: msg.Id}
	if msg.Payload == nil {
		raw.ReceivedAt = a.receivedAt("", msg.InternalDate)
		return raw, nil
	}

	headers := headerMap(msg.Payload.Headers)
	raw.Subject = headers["Subject"]
	raw.From = headers["From"]
	raw.To = headers["To"]
	raw.ReceivedAt = a.receivedAt(headers["Date"], msg.InternalDate)

	body, err := extractBody(msg.Payload)
	if err != nil {
		return source.RawMessage{}, err
	}
	raw.Body = body

	return raw, nil
}

func (a *Adapter) receivedAt(dateHeader string, internalDate int64) time.Time {
	if dateHeader != "" {
		if t, err := mail.ParseDate(dateHeader); err == nil {
			return t.UTC()
		}
	}
	if internalDate > 0 {
		return time.UnixMilli(internalDate).UTC()
	}
	return a.now().UTC()
}

// headerMap indexes headers by their exact name. Gmail header names are
// matched case-sensitively; the first occurrence wins.
func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		if _, ok := m[h.Name]; !ok {
			m[h.Name] = h.Value
		}
	}
	return m
}

// extractBody prefers the payload's own body, then the first text/plain
// part found depth-first.
func extractBody(payload *gm.MessagePart) (string, error) {
	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBase64URL(payload.Body.Data)
	}

	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			return decodeBase64URL(part.Body.Data)
		}
	}
	for _, part := range payload.Parts {
		if strings.HasPrefix(part.MimeType, "multipart/") {
			body, err := extractBody(part)
			if err != nil || body != "" {
				return body, err
			}
		}
	}

	return "", nil
}

// decodeBase64URL decodes Gmail's URL-safe base64, with or without padding.
func decodeBase64URL(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", fmt.Errorf("decoding base64url body: %w", err)
	}
	return string(b), nil
}

func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, source.ErrUnauthorized)
	}
	return transportErr(op, err)
}

func transportErr(op string, err error) error {
	return &source.TransportError{Provider: model.ProviderGmail, Op: op, Err: err}
}
