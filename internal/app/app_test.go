package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/ai"
	"github.com/nhle/unibox/internal/events"
	"github.com/nhle/unibox/internal/inbox"
	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/secret"
	"github.com/nhle/unibox/internal/source"
)

func testConfig(t *testing.T) *model.AppConfig {
	t.Helper()
	key, err := secret.GenerateKey()
	require.NoError(t, err)

	return &model.AppConfig{
		Database: model.DatabaseConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(t.TempDir(), "nested", "unibox.db"),
		},
		Sync:    model.SyncConfig{AnnotateWorkers: 2, PollIntervalSec: 60, CycleTimeout: time.Minute},
		Secrets: model.SecretsConfig{EncryptionKey: key},
	}
}

func TestNewWithoutOptionalInfrastructure(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, events.Noop{}, a.Publisher)
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Replies)
	assert.NotNil(t, a.NewPoller())
}

func TestNewRejectsBadEncryptionKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secrets.EncryptionKey = "not-base64!"

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestSyncAndReplyEndToEnd(t *testing.T) {
	ctx := context.Background()

	fetcher := source.FetcherFunc(func(context.Context, *model.Account) ([]source.RawMessage, error) {
		return []source.RawMessage{{
			ProviderMessageID: "uid-1",
			From:              "buyer@example.com",
			Subject:           "Widget order",
			Body:              "Is the Widget in stock?",
			ReceivedAt:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}}, nil
	})
	completer := ai.CompleterFunc(func(_ context.Context, req ai.Request) (string, error) {
		switch req.MaxTokens {
		case 500:
			return `{"intent":"inquiry","sentiment":"positive","priority":"high","summary":"Stock question"}`, nil
		case 200:
			return `["Widget"]`, nil
		default:
			return "Yes, the Widget is in stock.", nil
		}
	})

	a, err := New(ctx, testConfig(t), zap.NewNop(),
		WithFetchers(source.Registry{model.ProviderIMAP: fetcher}),
		WithCompleter(completer),
	)
	require.NoError(t, err)
	defer a.Close()

	acct, err := a.Inbox.AddIMAPAccount(ctx, "user-1", inbox.IMAPAccount{
		Email: "shop@example.com", Host: "imap.example.com", Password: "pw",
	})
	require.NoError(t, err)

	_, err = a.Inbox.AddCatalogEntry(ctx, "user-1", model.CatalogEntry{Name: "Widget", Available: true})
	require.NoError(t, err)

	res, err := a.Orchestrator.SyncAccount(ctx, "user-1", acct.ID)
	require.NoError(t, err)
	require.Len(t, res.Persisted, 1)

	page, err := a.Inbox.ListMessages(ctx, "user-1", inbox.Query{Priority: "high"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "inquiry", *page.Messages[0].Intent)

	draft, err := a.Replies.Generate(ctx, "user-1", page.Messages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Yes, the Widget is in stock.", draft.Text)
	assert.Equal(t, model.ReplyPending, draft.Status)

	// Second cycle sees the same message and stores nothing new.
	res, err = a.Orchestrator.SyncAccount(ctx, "user-1", acct.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Persisted)
	assert.Equal(t, 1, res.Skipped)
}
