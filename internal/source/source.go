package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/unibox/internal/model"
)

// MaxBatch caps how many messages one Fetch may return.
const MaxBatch = 50

// ErrUnauthorized is wrapped by adapters when the provider rejects the
// bearer token. WithToken turns it into one refresh and one retry.
var ErrUnauthorized = errors.New("provider rejected access token")

// AuthError means the account's grant or credentials are no longer
// accepted. It is terminal until the account is re-linked.
type AuthError struct {
	Provider model.Provider
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransportError is a retryable failure talking to a provider: network
// errors, unexpected statuses, malformed responses.
type TransportError struct {
	Provider model.Provider
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s) %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err (or any error in its chain) is a
// TransportError.
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// RawMessage is a fetched message before dedup and annotation.
type RawMessage struct {
	ProviderMessageID string
	From              string
	To                string
	Subject           string
	Body              string
	ReceivedAt        time.Time
}

// Fetcher retrieves at most MaxBatch unread messages for one account.
// A fetch is all-or-nothing: on error no messages are returned.
type Fetcher interface {
	Fetch(ctx context.Context, account *model.Account) ([]RawMessage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, account *model.Account) ([]RawMessage, error)

func (f FetcherFunc) Fetch(ctx context.Context, account *model.Account) ([]RawMessage, error) {
	return f(ctx, account)
}

// Registry maps a provider tag to its adapter.
type Registry map[model.Provider]Fetcher

// Lookup returns the adapter registered for p.
func (r Registry) Lookup(p model.Provider) (Fetcher, bool) {
	f, ok := r[p]
	return f, ok
}

// TokenProvider hands out access tokens for OAuth accounts.
type TokenProvider interface {
	// AccessToken returns a token that is valid now, refreshing first
	// when the stored one has expired or is about to.
	AccessToken(ctx context.Context, account *model.Account) (string, error)

	// ForceRefresh replaces stale, a token the provider just rejected.
	ForceRefresh(ctx context.Context, account *model.Account, stale string) (string, error)
}

// WithToken runs call with a valid access token. If call reports
// ErrUnauthorized, the token is refreshed and call is retried once; a
// second rejection becomes an AuthError.
func WithToken(
	ctx context.Context,
	tokens TokenProvider,
	account *model.Account,
	call func(ctx context.Context, token string) error,
) error {
	token, err := tokens.AccessToken(ctx, account)
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	token, err = tokens.ForceRefresh(ctx, account, token)
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if errors.Is(err, ErrUnauthorized) {
		return &AuthError{
			Provider: account.Provider,
			Message:  "access token rejected after refresh",
			Err:      err,
		}
	}
	return err
}

// Truncate returns at most MaxBatch messages.
func Truncate(msgs []RawMessage) []RawMessage {
	if len(msgs) > MaxBatch {
		return msgs[:MaxBatch]
	}
	return msgs
}
