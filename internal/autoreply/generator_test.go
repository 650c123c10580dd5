package autoreply_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/ai"
	"github.com/nhle/unibox/internal/autoreply"
	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/store"
	"github.com/nhle/unibox/internal/store/storetest"
)

func seed(t *testing.T, st *store.SQLStore) *model.Message {
	t.Helper()
	ctx := context.Background()

	acct := &model.Account{
		UserID: "user-1", Provider: model.ProviderIMAP, Email: "me@example.com", Active: true,
		IMAPHost: "imap.example.com", IMAPPort: 993, IMAPPassword: "pw",
	}
	require.NoError(t, st.CreateAccount(ctx, acct))

	msg := &model.Message{
		AccountID: acct.ID, ProviderMessageID: "p1", Subject: "Gadget stock",
		Body: "Is the Gadget in stock?", ReceivedAt: time.Now(),
	}
	require.NoError(t, st.InsertMessage(ctx, msg))

	require.NoError(t, st.ReplaceCatalog(ctx, "user-1", []model.CatalogEntry{
		{Name: "Gadget", Description: "Classic gadget", Available: false},
		{Name: "Widget", Description: "Plain widget", Available: true},
	}))
	return msg
}

func TestGenerateCreatesPendingDraftEachCall(t *testing.T) {
	st := storetest.NewTestStore(t)
	msg := seed(t, st)

	var prompts []string
	completer := ai.CompleterFunc(func(_ context.Context, req ai.Request) (string, error) {
		prompts = append(prompts, req.Prompt)
		if req.MaxTokens == 200 {
			return `["Gadget"]`, nil
		}
		return "Sorry, the Gadget is out of stock.", nil
	})
	g := autoreply.New(st, ai.NewAnnotator(completer, zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	first, err := g.Generate(ctx, "user-1", msg.ID)
	require.NoError(t, err)
	second, err := g.Generate(ctx, "user-1", msg.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	drafts, err := st.ListDraftReplies(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	for _, d := range drafts {
		require.Equal(t, model.ReplyPending, d.Status)
		require.Equal(t, msg.ID, d.MessageID)
		require.Equal(t, "Sorry, the Gadget is out of stock.", d.Text)
		require.Nil(t, d.SentAt)
	}

	require.Len(t, prompts, 4)
	require.Contains(t, prompts[1], "- Gadget: Classic gadget (Out of stock)")
	require.NotContains(t, prompts[1], "Widget")

	stored, err := st.GetMessageForUser(ctx, "user-1", msg.ID)
	require.NoError(t, err)
	require.False(t, stored.IsRead)
}

func TestGenerateFallsBackWhenModelFails(t *testing.T) {
	st := storetest.NewTestStore(t)
	msg := seed(t, st)

	failing := ai.CompleterFunc(func(context.Context, ai.Request) (string, error) {
		return "", errors.New("provider down")
	})
	g := autoreply.New(st, ai.NewAnnotator(failing, zap.NewNop()), zap.NewNop())

	reply, err := g.Generate(context.Background(), "user-1", msg.ID)
	require.NoError(t, err)
	require.Equal(t, ai.FallbackReply, reply.Text)
	require.Equal(t, model.ReplyPending, reply.Status)
}

func TestGenerateIsOwnershipScoped(t *testing.T) {
	st := storetest.NewTestStore(t)
	msg := seed(t, st)
	g := autoreply.New(st, ai.NewAnnotator(nil, zap.NewNop()), zap.NewNop())

	_, err := g.Generate(context.Background(), "user-2", msg.ID)
	require.ErrorIs(t, err, autoreply.ErrMessageNotFound)

	_, err = g.Generate(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, autoreply.ErrMessageNotFound)

	drafts, err := st.ListDraftReplies(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Empty(t, drafts)
}
