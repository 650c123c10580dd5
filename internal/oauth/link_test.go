package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source/outlook"
	"github.com/nhle/unibox/internal/store/storetest"
)

func newProfileServer(auth *fakeAuthServer, email string) *httptest.Server {
	mux := http.NewServeMux()
	mux.Handle("/token", auth)
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		auth.mu.Lock()
		want := "Bearer " + auth.access
		auth.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"email": email, "verified_email": true})
	})
	mux.HandleFunc("/graph/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                "graph-id",
			"userPrincipalName": email,
		})
	})
	return httptest.NewServer(mux)
}

func TestLinkCreatesThenUpdatesGmailAccount(t *testing.T) {
	auth := &fakeAuthServer{access: "access-1", refresh: "refresh-1"}
	srv := newProfileServer(auth, "alice@gmail.com")
	defer srv.Close()

	st := storetest.NewTestStore(t)
	m := newTestManager(t, st, srv)
	l := NewLinker(m, st, zap.NewNop(), WithGoogleUserinfoEndpoint(srv.URL+"/"))
	ctx := context.Background()

	state, err := m.state.sign(model.ProviderGmail, "user-1")
	require.NoError(t, err)

	acct, err := l.Link(ctx, model.ProviderGmail, "code-1", state)
	require.NoError(t, err)
	require.Equal(t, "alice@gmail.com", acct.Email)
	require.Equal(t, "user-1", acct.UserID)
	require.Equal(t, "authorization_code", auth.form().Get("grant_type"))
	require.Equal(t, "code-1", auth.form().Get("code"))

	require.NoError(t, st.SetReauthRequired(ctx, acct.ID, true))

	auth.mu.Lock()
	auth.access, auth.refresh = "access-2", ""
	auth.mu.Unlock()

	relinked, err := l.Link(ctx, model.ProviderGmail, "code-2", state)
	require.NoError(t, err)
	require.Equal(t, acct.ID, relinked.ID)

	stored, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, "access-2", stored.AccessToken)
	require.Equal(t, "refresh-1", stored.RefreshToken)
	require.False(t, stored.ReauthRequired)

	accounts, err := st.ListAccounts(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestLinkOutlookUsesGraphProfile(t *testing.T) {
	auth := &fakeAuthServer{access: "access-1", refresh: "refresh-1"}
	srv := newProfileServer(auth, "bob@contoso.com")
	defer srv.Close()

	st := storetest.NewTestStore(t)
	m := newTestManager(t, st, srv)
	l := NewLinker(m, st, zap.NewNop(), WithGraphClient(outlook.NewClient(srv.URL+"/graph", srv.Client())))

	state, err := m.state.sign(model.ProviderOutlook, "user-2")
	require.NoError(t, err)

	acct, err := l.Link(context.Background(), model.ProviderOutlook, "code", state)
	require.NoError(t, err)
	require.Equal(t, model.ProviderOutlook, acct.Provider)
	require.Equal(t, "bob@contoso.com", acct.Email)
}

func TestLinkRejectsBadStateBeforeExchange(t *testing.T) {
	auth := &fakeAuthServer{access: "access-1", refresh: "refresh-1"}
	srv := newProfileServer(auth, "alice@gmail.com")
	defer srv.Close()

	st := storetest.NewTestStore(t)
	m := newTestManager(t, st, srv)
	l := NewLinker(m, st, zap.NewNop())

	_, err := l.Link(context.Background(), model.ProviderGmail, "code", "not-a-token")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Zero(t, auth.calls.Load())
}

func TestLinkNewAccountRequiresRefreshToken(t *testing.T) {
	auth := &fakeAuthServer{access: "access-1"}
	srv := newProfileServer(auth, "alice@gmail.com")
	defer srv.Close()

	st := storetest.NewTestStore(t)
	m := newTestManager(t, st, srv)
	l := NewLinker(m, st, zap.NewNop(), WithGoogleUserinfoEndpoint(srv.URL+"/"))

	state, err := m.state.sign(model.ProviderGmail, "user-1")
	require.NoError(t, err)

	_, err = l.Link(context.Background(), model.ProviderGmail, "code", state)
	require.ErrorIs(t, err, ErrNoRefreshToken)
}
