package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/unibox/internal/model"
)

const accountColumns = `id, user_id, provider, email, active, reauth_required,
	access_token, refresh_token, token_expiry,
	imap_host, imap_port, imap_password, created_at, updated_at`

// CreateAccount validates and inserts a new account. Generates a UUID if
// ID is empty. Returns ErrDuplicate if the user already linked the same
// mailbox.
func (s *SQLStore) CreateAccount(ctx context.Context, acct *model.Account) error {
	if err := acct.Validate(); err != nil {
		return fmt.Errorf("validating account: %w", err)
	}
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	now := s.now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	access, refresh, password, err := s.sealCredentials(acct.AccessToken, acct.RefreshToken, acct.IMAPPassword)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		acct.ID, acct.UserID, string(acct.Provider), acct.Email,
		boolToInt(acct.Active), boolToInt(acct.ReauthRequired),
		access, refresh, nullTime(acct.TokenExpiry),
		acct.IMAPHost, acct.IMAPPort, password,
		acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating account for %s: %w", acct.Email, ErrDuplicate)
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by ID regardless of owner.
func (s *SQLStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
}

// GetAccountForUser retrieves an account only if userID owns it.
func (s *SQLStore) GetAccountForUser(ctx context.Context, userID, id string) (*model.Account, error) {
	return s.getAccount(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? AND user_id = ?", id, userID)
}

// FindAccount looks up a user's account by provider and mailbox address.
func (s *SQLStore) FindAccount(
	ctx context.Context,
	userID string,
	provider model.Provider,
	email string,
) (*model.Account, error) {
	return s.getAccount(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = ? AND provider = ? AND email = ?",
		userID, string(provider), email)
}

func (s *SQLStore) getAccount(ctx context.Context, query string, args ...any) (*model.Account, error) {
	var acct model.Account
	if err := s.db.GetContext(ctx, &acct, s.q(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting account: %w", err)
	}
	if err := s.openCredentials(&acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// ListAccounts returns a user's accounts ordered by creation time.
func (s *SQLStore) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	return s.listAccounts(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = ? ORDER BY created_at", userID)
}

// ListSyncableAccounts returns every active account that does not need
// re-authorization.
func (s *SQLStore) ListSyncableAccounts(ctx context.Context) ([]model.Account, error) {
	return s.listAccounts(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE active = 1 AND reauth_required = 0 ORDER BY created_at")
}

func (s *SQLStore) listAccounts(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	var accounts []model.Account
	if err := s.db.SelectContext(ctx, &accounts, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	for i := range accounts {
		if err := s.openCredentials(&accounts[i]); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// UpdateAccountTokens stores refreshed OAuth tokens and clears the
// re-authorization flag.
func (s *SQLStore) UpdateAccountTokens(
	ctx context.Context,
	id, accessToken, refreshToken string,
	expiry time.Time,
) error {
	access, refresh, _, err := s.sealCredentials(accessToken, refreshToken, "")
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE accounts SET
			access_token = ?, refresh_token = ?, token_expiry = ?,
			reauth_required = 0, updated_at = ?
		WHERE id = ?`),
		access, refresh, expiry.UTC(), s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating tokens for account %s: %w", id, err)
	}
	return requireAffected(result, "account", id)
}

// SetReauthRequired flags or clears an account's re-authorization state.
func (s *SQLStore) SetReauthRequired(ctx context.Context, id string, required bool) error {
	result, err := s.db.ExecContext(ctx, s.q(
		"UPDATE accounts SET reauth_required = ?, updated_at = ? WHERE id = ?"),
		boolToInt(required), s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating reauth flag for account %s: %w", id, err)
	}
	return requireAffected(result, "account", id)
}

// SetAccountActive activates or deactivates a user's account.
func (s *SQLStore) SetAccountActive(ctx context.Context, userID, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, s.q(
		"UPDATE accounts SET active = ?, updated_at = ? WHERE id = ? AND user_id = ?"),
		boolToInt(active), s.now().UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("updating active flag for account %s: %w", id, err)
	}
	return requireAffected(result, "account", id)
}

// DeleteAccount removes a user's account together with its messages and
// drafts.
func (s *SQLStore) DeleteAccount(ctx context.Context, userID, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, tx.Rebind(
		"DELETE FROM accounts WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	if err := requireAffected(result, "account", id); err != nil {
		return err
	}

	// Cascade explicitly as well; SQLite only enforces foreign keys when
	// the pragma is on for the connection.
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM draft_replies WHERE message_id IN
			(SELECT id FROM messages WHERE account_id = ?)`), id); err != nil {
		return fmt.Errorf("deleting drafts for account %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(
		"DELETE FROM messages WHERE account_id = ?"), id); err != nil {
		return fmt.Errorf("deleting messages for account %s: %w", id, err)
	}

	return tx.Commit()
}

func (s *SQLStore) sealCredentials(access, refresh, password string) (string, string, string, error) {
	out := make([]string, 3)
	for i, v := range []string{access, refresh, password} {
		if v == "" {
			continue
		}
		sealed, err := s.sealer.Seal(v)
		if err != nil {
			return "", "", "", fmt.Errorf("sealing credentials: %w", err)
		}
		out[i] = sealed
	}
	return out[0], out[1], out[2], nil
}

func (s *SQLStore) openCredentials(acct *model.Account) error {
	for _, field := range []*string{&acct.AccessToken, &acct.RefreshToken, &acct.IMAPPassword} {
		if *field == "" {
			continue
		}
		plain, err := s.sealer.Open(*field)
		if err != nil {
			return fmt.Errorf("opening credentials for account %s: %w", acct.ID, err)
		}
		*field = plain
	}
	return nil
}

func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows for %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
