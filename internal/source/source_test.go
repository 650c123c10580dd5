package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/unibox/internal/model"
)

type fakeTokens struct {
	token     string
	refreshed []string
	refresh   func(stale string) (string, error)
}

func (f *fakeTokens) AccessToken(context.Context, *model.Account) (string, error) {
	return f.token, nil
}

func (f *fakeTokens) ForceRefresh(_ context.Context, _ *model.Account, stale string) (string, error) {
	f.refreshed = append(f.refreshed, stale)
	return f.refresh(stale)
}

func TestWithTokenRetriesOnceAfterRefresh(t *testing.T) {
	tokens := &fakeTokens{token: "old", refresh: func(string) (string, error) { return "new", nil }}
	acct := &model.Account{ID: "a1", Provider: model.ProviderGmail}

	var seen []string
	err := WithToken(context.Background(), tokens, acct, func(_ context.Context, token string) error {
		seen = append(seen, token)
		if token == "old" {
			return fmt.Errorf("listing: %w", ErrUnauthorized)
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, []string{"old", "new"}, seen)
	require.Equal(t, []string{"old"}, tokens.refreshed)
}

func TestWithTokenSecondRejectionIsAuthError(t *testing.T) {
	tokens := &fakeTokens{token: "old", refresh: func(string) (string, error) { return "new", nil }}
	acct := &model.Account{ID: "a1", Provider: model.ProviderOutlook}

	calls := 0
	err := WithToken(context.Background(), tokens, acct, func(context.Context, string) error {
		calls++
		return ErrUnauthorized
	})

	require.Equal(t, 2, calls)
	require.True(t, IsAuthError(err))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestWithTokenPassesThroughOtherErrors(t *testing.T) {
	tokens := &fakeTokens{token: "tok"}
	acct := &model.Account{ID: "a1", Provider: model.ProviderGmail}
	boom := &TransportError{Provider: model.ProviderGmail, Op: "list", Err: errors.New("connection reset")}

	err := WithToken(context.Background(), tokens, acct, func(context.Context, string) error {
		return boom
	})

	require.True(t, IsTransportError(err))
	require.False(t, IsAuthError(err))
	require.Empty(t, tokens.refreshed)
}

func TestRegistryLookup(t *testing.T) {
	f := FetcherFunc(func(context.Context, *model.Account) ([]RawMessage, error) { return nil, nil })
	reg := Registry{model.ProviderIMAP: f}

	_, ok := reg.Lookup(model.ProviderIMAP)
	require.True(t, ok)
	_, ok = reg.Lookup(model.ProviderGmail)
	require.False(t, ok)
}
