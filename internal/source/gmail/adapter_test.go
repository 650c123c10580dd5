package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source"
)

type staticTokens struct {
	token     string
	refreshed string
}

func (s *staticTokens) AccessToken(context.Context, *model.Account) (string, error) {
	return s.token, nil
}

func (s *staticTokens) ForceRefresh(_ context.Context, _ *model.Account, stale string) (string, error) {
	s.refreshed = stale
	s.token = "fresh-token"
	return s.token, nil
}

type fakeGmail struct {
	messages  map[string]map[string]any
	order     []string
	authToken string
	failGetID string
	listCalls atomic.Int32
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.authToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
		return
	}

	const prefix = "/gmail/v1/users/me/messages"
	switch {
	case r.URL.Path == prefix:
		f.listCalls.Add(1)
		if r.URL.Query().Get("q") != "is:unread" || r.URL.Query().Get("maxResults") != "50" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		refs := make([]map[string]string, 0, len(f.order))
		for _, id := range f.order {
			refs = append(refs, map[string]string{"id": id, "threadId": "t-" + id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": refs})
	case strings.HasPrefix(r.URL.Path, prefix+"/"):
		id := strings.TrimPrefix(r.URL.Path, prefix+"/")
		if id == f.failGetID {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Query().Get("format") != "full" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(f.messages[id])
	default:
		http.NotFound(w, r)
	}
}

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func newAdapter(t *testing.T, fake *fakeGmail, tokens source.TokenProvider) *Adapter {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(tokens, WithEndpoint(srv.URL+"/"), WithHTTPClient(srv.Client()))
}

func TestFetchDecodesDirectBody(t *testing.T) {
	body := "Hello ünïcode?>>~ body with url-unsafe bytes \xfb\xff"
	fake := &fakeGmail{
		authToken: "tok",
		order:     []string{"m1"},
		messages: map[string]map[string]any{
			"m1": {
				"id":           "m1",
				"internalDate": "1700000000000",
				"payload": map[string]any{
					"mimeType": "text/plain",
					"headers": []map[string]string{
						{"name": "Subject", "value": "Quote request"},
						{"name": "From", "value": "alice@example.com"},
						{"name": "To", "value": "shop@example.com"},
						{"name": "Date", "value": "Mon, 02 Jan 2006 15:04:05 -0700"},
					},
					"body": map[string]any{"data": encode(body)},
				},
			},
		},
	}
	a := newAdapter(t, fake, &staticTokens{token: "tok"})

	msgs, err := a.Fetch(context.Background(), &model.Account{ID: "a1", Provider: model.ProviderGmail})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got := msgs[0]
	require.Equal(t, "m1", got.ProviderMessageID)
	require.Equal(t, body, got.Body)
	require.Equal(t, "Quote request", got.Subject)
	require.Equal(t, "alice@example.com", got.From)
	require.Equal(t, "shop@example.com", got.To)
	require.Equal(t, time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC), got.ReceivedAt)
}

func TestFetchMultipartAndMissingHeaders(t *testing.T) {
	fake := &fakeGmail{
		authToken: "tok",
		order:     []string{"m2"},
		messages: map[string]map[string]any{
			"m2": {
				"id":           "m2",
				"internalDate": "1700000000000",
				"payload": map[string]any{
					"mimeType": "multipart/alternative",
					"headers": []map[string]string{
						{"name": "subject", "value": "lowercase is ignored"},
					},
					"body": map[string]any{"size": 0},
					"parts": []map[string]any{
						{"mimeType": "text/html", "body": map[string]any{"data": encode("<p>html</p>")}},
						{"mimeType": "text/plain", "body": map[string]any{"data": encode("plain text")}},
					},
				},
			},
		},
	}
	a := newAdapter(t, fake, &staticTokens{token: "tok"})

	msgs, err := a.Fetch(context.Background(), &model.Account{ID: "a1", Provider: model.ProviderGmail})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "plain text", msgs[0].Body)
	require.Equal(t, "", msgs[0].Subject)
	require.Equal(t, "", msgs[0].From)
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), msgs[0].ReceivedAt)
}

func TestFetchIsAllOrNothing(t *testing.T) {
	fake := &fakeGmail{
		authToken: "tok",
		order:     []string{"ok", "broken"},
		failGetID: "broken",
		messages: map[string]map[string]any{
			"ok": {"id": "ok", "payload": map[string]any{"body": map[string]any{"data": encode("x")}}},
		},
	}
	a := newAdapter(t, fake, &staticTokens{token: "tok"})

	msgs, err := a.Fetch(context.Background(), &model.Account{ID: "a1", Provider: model.ProviderGmail})
	require.Error(t, err)
	require.True(t, source.IsTransportError(err))
	require.Nil(t, msgs)
}

func TestFetchRefreshesOnUnauthorized(t *testing.T) {
	fake := &fakeGmail{authToken: "fresh-token"}
	tokens := &staticTokens{token: "stale-token"}
	a := newAdapter(t, fake, tokens)

	msgs, err := a.Fetch(context.Background(), &model.Account{ID: "a1", Provider: model.ProviderGmail})
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Equal(t, "stale-token", tokens.refreshed)
	require.EqualValues(t, 1, fake.listCalls.Load())
}

func TestDecodeBase64URLRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "ab", "abc", "??>>~~", "\x00\xff\xfe"} {
		padded, err := decodeBase64URL(base64.URLEncoding.EncodeToString([]byte(s)))
		require.NoError(t, err)
		require.Equal(t, s, padded)

		raw, err := decodeBase64URL(base64.RawURLEncoding.EncodeToString([]byte(s)))
		require.NoError(t, err)
		require.Equal(t, s, raw)
	}
}
