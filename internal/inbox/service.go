// Package inbox holds the user-facing operations around synced mail:
// browsing messages, managing accounts, and maintaining the catalog.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/store"
)

// ErrInvalidInput is returned for malformed filters or account details.
var ErrInvalidInput = errors.New("invalid input")

// Service implements inbox operations on top of a store.Store. Every call
// is scoped to the given user.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger.With(zap.String("component", "inbox"))}
}

// Query filters a message listing. Empty fields are ignored.
type Query struct {
	AccountID  string
	Priority   string
	Sentiment  string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Page is one page of messages plus the number of matches overall.
type Page struct {
	Messages []model.Message
	Total    int
}

// ListMessages returns the user's messages, newest first.
func (s *Service) ListMessages(ctx context.Context, userID string, q Query) (*Page, error) {
	filter := store.MessageFilter{UserID: userID, Limit: q.Limit, Offset: q.Offset}

	if q.AccountID != "" {
		filter.AccountID = &q.AccountID
	}
	if q.Priority != "" {
		p, ok := model.ParsePriority(q.Priority)
		if !ok {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, q.Priority)
		}
		filter.Priority = &p
	}
	if q.Sentiment != "" {
		sentiment := strings.ToLower(strings.TrimSpace(q.Sentiment))
		filter.Sentiment = &sentiment
	}
	if q.UnreadOnly {
		unread := true
		filter.Unread = &unread
	}

	msgs, total, err := s.store.ListMessages(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{Messages: msgs, Total: total}, nil
}

// MessageDetail is a message with its drafts, newest first.
type MessageDetail struct {
	Message model.Message
	Drafts  []model.DraftReply
}

// GetMessage returns one message and its drafts.
func (s *Service) GetMessage(ctx context.Context, userID, id string) (*MessageDetail, error) {
	msg, err := s.store.GetMessageForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	drafts, err := s.store.ListDraftReplies(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	return &MessageDetail{Message: *msg, Drafts: drafts}, nil
}

// MarkRead sets the read flag on a message.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkMessageRead(ctx, userID, id)
}

// ListAccounts returns the user's linked accounts.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	return s.store.ListAccounts(ctx, userID)
}

// IMAPAccount is the input for AddIMAPAccount. Port 0 means 993.
type IMAPAccount struct {
	Email    string
	Host     string
	Port     int
	Password string
}

// AddIMAPAccount stores a password-authenticated IMAP account. The email
// address doubles as the IMAP username.
func (s *Service) AddIMAPAccount(ctx context.Context, userID string, in IMAPAccount) (*model.Account, error) {
	port := in.Port
	if port == 0 {
		port = model.DefaultIMAPPort
	}

	acct := &model.Account{
		UserID:       userID,
		Provider:     model.ProviderIMAP,
		Email:        strings.TrimSpace(in.Email),
		Active:       true,
		IMAPHost:     strings.TrimSpace(in.Host),
		IMAPPort:     port,
		IMAPPassword: in.Password,
	}
	if err := acct.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	s.logger.Info("imap account added", zap.String("account_id", acct.ID), zap.String("host", acct.IMAPHost))
	return acct, nil
}

// DeleteAccount removes an account with its messages and drafts.
func (s *Service) DeleteAccount(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteAccount(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("account deleted", zap.String("account_id", id))
	return nil
}

// SetAccountActive pauses or resumes syncing of an account.
func (s *Service) SetAccountActive(ctx context.Context, userID, id string, active bool) error {
	return s.store.SetAccountActive(ctx, userID, id, active)
}

// AddCatalogEntry adds one entry to the user's catalog.
func (s *Service) AddCatalogEntry(ctx context.Context, userID string, entry model.CatalogEntry) (*model.CatalogEntry, error) {
	entry.UserID = userID
	if err := s.store.CreateCatalogEntry(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListCatalog returns the user's catalog.
func (s *Service) ListCatalog(ctx context.Context, userID string) ([]model.CatalogEntry, error) {
	return s.store.ListCatalog(ctx, userID)
}

// ReplaceCatalog swaps the user's whole catalog for entries.
func (s *Service) ReplaceCatalog(ctx context.Context, userID string, entries []model.CatalogEntry) error {
	if err := s.store.ReplaceCatalog(ctx, userID, entries); err != nil {
		return err
	}
	s.logger.Info("catalog replaced", zap.String("user_id", userID), zap.Int("entries", len(entries)))
	return nil
}
