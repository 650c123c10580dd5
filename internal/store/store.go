package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/unibox/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist or is not
	// visible to the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write would violate a uniqueness
	// constraint, most importantly (account_id, provider_message_id).
	ErrDuplicate = errors.New("duplicate record")
)

// MessageFilter controls filtering and pagination for message queries.
// Results are always scoped to UserID.
type MessageFilter struct {
	UserID    string
	AccountID *string
	Priority  *model.Priority
	Sentiment *string
	Unread    *bool
	Limit     int
	Offset    int
}

// Store defines the persistence interface for accounts, messages, draft
// replies, and catalog entries.
type Store interface {
	// === Accounts ===

	CreateAccount(ctx context.Context, acct *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountForUser(ctx context.Context, userID, id string) (*model.Account, error)
	FindAccount(ctx context.Context, userID string, provider model.Provider, email string) (*model.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]model.Account, error)
	ListSyncableAccounts(ctx context.Context) ([]model.Account, error)
	UpdateAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error
	SetReauthRequired(ctx context.Context, id string, required bool) error
	SetAccountActive(ctx context.Context, userID, id string, active bool) error
	DeleteAccount(ctx context.Context, userID, id string) error

	// === Messages ===

	MessageExists(ctx context.Context, accountID, providerMessageID string) (bool, error)
	InsertMessage(ctx context.Context, msg *model.Message) error
	GetMessageForUser(ctx context.Context, userID, id string) (*model.Message, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, int, error)
	MarkMessageRead(ctx context.Context, userID, id string) error

	// === Draft replies ===

	CreateDraftReply(ctx context.Context, reply *model.DraftReply) error
	ListDraftReplies(ctx context.Context, messageID string) ([]model.DraftReply, error)

	// === Catalog ===

	CreateCatalogEntry(ctx context.Context, entry *model.CatalogEntry) error
	ListCatalog(ctx context.Context, userID string) ([]model.CatalogEntry, error)
	ReplaceCatalog(ctx context.Context, userID string, entries []model.CatalogEntry) error

	Close() error
}

// Sealer protects credential material at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type plainSealer struct{}

func (plainSealer) Seal(s string) (string, error) { return s, nil }
func (plainSealer) Open(s string) (string, error) { return s, nil }
