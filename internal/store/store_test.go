package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/store"
	"github.com/nhle/unibox/internal/store/storetest"
)

func gmailAccount(userID, email string) *model.Account {
	expiry := time.Now().Add(time.Hour).UTC()
	return &model.Account{
		UserID:       userID,
		Provider:     model.ProviderGmail,
		Email:        email,
		Active:       true,
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  &expiry,
	}
}

func newMessage(accountID, providerID string, received time.Time) *model.Message {
	return &model.Message{
		AccountID:         accountID,
		ProviderMessageID: providerID,
		From:              "alice@example.com",
		To:                "shop@example.com",
		Subject:           "subject " + providerID,
		Body:              "body " + providerID,
		ReceivedAt:        received,
	}
}

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestStore(t)

	acct := gmailAccount("u1", "a@example.com")
	require.NoError(t, s.CreateAccount(ctx, acct))
	require.NotEmpty(t, acct.ID)

	got, err := s.GetAccountForUser(ctx, "u1", acct.ID)
	require.NoError(t, err)
	require.Equal(t, "refresh", got.RefreshToken)
	require.Equal(t, model.ProviderGmail, got.Provider)
	require.True(t, got.Active)

	_, err = s.GetAccountForUser(ctx, "u2", acct.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.CreateAccount(ctx, gmailAccount("u1", "a@example.com"))
	require.ErrorIs(t, err, store.ErrDuplicate)

	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetReauthRequired(ctx, acct.ID, true))
	syncable, err := s.ListSyncableAccounts(ctx)
	require.NoError(t, err)
	require.Empty(t, syncable)

	require.NoError(t, s.UpdateAccountTokens(ctx, acct.ID, "access-2", "refresh-2", expiry))
	got, err = s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, "access-2", got.AccessToken)
	require.Equal(t, "refresh-2", got.RefreshToken)
	require.False(t, got.ReauthRequired)
	require.True(t, expiry.Equal(*got.TokenExpiry))

	syncable, err = s.ListSyncableAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, syncable, 1)

	require.ErrorIs(t, s.DeleteAccount(ctx, "u2", acct.ID), store.ErrNotFound)
	require.NoError(t, s.DeleteAccount(ctx, "u1", acct.ID))
	_, err = s.GetAccount(ctx, acct.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateAccountRejectsMixedCredentials(t *testing.T) {
	s := storetest.NewTestStore(t)

	acct := gmailAccount("u1", "a@example.com")
	acct.IMAPPassword = "pw"
	require.Error(t, s.CreateAccount(context.Background(), acct))
}

func TestInsertMessageDedup(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestStore(t)
	acct := gmailAccount("u1", "a@example.com")
	require.NoError(t, s.CreateAccount(ctx, acct))

	now := time.Now().UTC()
	msg := newMessage(acct.ID, "p-1", now)
	msg.ApplyAnnotation(model.DefaultAnnotation())
	require.NoError(t, s.InsertMessage(ctx, msg))

	exists, err := s.MessageExists(ctx, acct.ID, "p-1")
	require.NoError(t, err)
	require.True(t, exists)

	err = s.InsertMessage(ctx, newMessage(acct.ID, "p-1", now))
	require.ErrorIs(t, err, store.ErrDuplicate)

	got, err := s.GetMessageForUser(ctx, "u1", msg.ID)
	require.NoError(t, err)
	ann, ok := got.Annotation()
	require.True(t, ok)
	require.Equal(t, model.DefaultAnnotation(), ann)

	// Same provider id under another account is a different message.
	other := gmailAccount("u1", "b@example.com")
	require.NoError(t, s.CreateAccount(ctx, other))
	require.NoError(t, s.InsertMessage(ctx, newMessage(other.ID, "p-1", now)))
}

func TestInsertMessageConcurrentWritersKeepUniqueness(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestStore(t)
	acct := gmailAccount("u1", "a@example.com")
	require.NoError(t, s.CreateAccount(ctx, acct))

	const writers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		inserted   int
		duplicates int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InsertMessage(ctx, newMessage(acct.ID, "same", time.Now()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, store.ErrDuplicate):
				duplicates++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, inserted)
	require.Equal(t, writers-1, duplicates)
}

func TestListMessagesFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestStore(t)
	acct := gmailAccount("u1", "a@example.com")
	require.NoError(t, s.CreateAccount(ctx, acct))

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []model.Priority{model.PriorityHigh, model.PriorityLow, model.PriorityHigh} {
		m := newMessage(acct.ID, string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
		m.ApplyAnnotation(model.Annotation{Intent: "inquiry", Sentiment: "positive", Priority: p, Summary: "s"})
		require.NoError(t, s.InsertMessage(ctx, m))
	}

	high := model.PriorityHigh
	msgs, total, err := s.ListMessages(ctx, store.MessageFilter{UserID: "u1", Priority: &high})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "c", msgs[0].ProviderMessageID)
	require.Equal(t, "a", msgs[1].ProviderMessageID)

	msgs, total, err = s.ListMessages(ctx, store.MessageFilter{UserID: "u1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, msgs, 1)
	require.Equal(t, "b", msgs[0].ProviderMessageID)

	_, total, err = s.ListMessages(ctx, store.MessageFilter{UserID: "someone-else"})
	require.NoError(t, err)
	require.Zero(t, total)

	require.NoError(t, s.MarkMessageRead(ctx, "u1", msgs[0].ID))
	unread := true
	_, total, err = s.ListMessages(ctx, store.MessageFilter{UserID: "u1", Unread: &unread})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	require.ErrorIs(t, s.MarkMessageRead(ctx, "u2", msgs[0].ID), store.ErrNotFound)
}

func TestDraftRepliesAccumulate(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestStore(t)
	acct := gmailAccount("u1", "a@example.com")
	require.NoError(t, s.CreateAccount(ctx, acct))
	msg := newMessage(acct.ID, "p-1", time.Now())
	require.NoError(t, s.InsertMessage(ctx, msg))

	require.NoError(t, s.CreateDraftReply(ctx, &model.DraftReply{MessageID: msg.ID, Text: "first"}))
	require.NoError(t, s.CreateDraftReply(ctx, &model.DraftReply{MessageID: msg.ID, Text: "second"}))

	replies, err := s.ListDraftReplies(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.NotEqual(t, replies[0].ID, replies[1].ID)
	for _, r := range replies {
		require.Equal(t, model.ReplyPending, r.Status)
		require.Equal(t, msg.ID, r.MessageID)
	}
}

func TestCatalogReplace(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestStore(t)

	price := 19.99
	require.NoError(t, s.CreateCatalogEntry(ctx, &model.CatalogEntry{UserID: "u1", Name: "Old Mug", Available: true}))
	require.NoError(t, s.ReplaceCatalog(ctx, "u1", []model.CatalogEntry{
		{Name: "Blue Kettle", SKU: "BK-1", Price: &price, Available: true, Metadata: model.Metadata{"color": "blue"}},
		{Name: "Red Teapot", Available: false},
	}))

	entries, err := s.ListCatalog(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Blue Kettle", entries[0].Name)
	require.InDelta(t, 19.99, *entries[0].Price, 0.0001)
	require.Equal(t, "blue", entries[0].Metadata["color"])
	require.False(t, entries[1].Available)
	require.Nil(t, entries[1].Price)
}

type reverseSealer struct{}

func (reverseSealer) Seal(s string) (string, error) { return "sealed:" + s, nil }
func (reverseSealer) Open(s string) (string, error) {
	if len(s) < 7 || s[:7] != "sealed:" {
		return "", errors.New("not sealed")
	}
	return s[7:], nil
}

func TestCredentialsAreSealed(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewTestStore(t, store.WithSealer(reverseSealer{}))

	acct := &model.Account{
		UserID: "u1", Provider: model.ProviderIMAP, Email: "a@example.com", Active: true,
		IMAPHost: "imap.example.com", IMAPPort: 993, IMAPPassword: "pw",
	}
	require.NoError(t, s.CreateAccount(ctx, acct))

	got, err := s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, "pw", got.IMAPPassword)
}
