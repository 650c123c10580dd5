package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nhle/unibox/internal/model"
)

const messageColumns = `m.id, m.account_id, m.provider_message_id,
	m.sender, m.recipients, m.subject, m.body, m.received_at, m.is_read,
	m.ai_intent, m.ai_sentiment, m.ai_priority, m.ai_summary, m.created_at`

// MessageExists reports whether a message with the given provider id is
// already stored for the account.
func (s *SQLStore) MessageExists(ctx context.Context, accountID, providerMessageID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(
		"SELECT COUNT(*) FROM messages WHERE account_id = ? AND provider_message_id = ?"),
		accountID, providerMessageID,
	)
	if err != nil {
		return false, fmt.Errorf("checking message %s: %w", providerMessageID, err)
	}
	return n > 0, nil
}

// InsertMessage writes a message and its AI fields in a single statement.
// Returns ErrDuplicate if (account_id, provider_message_id) already exists.
func (s *SQLStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = s.now().UTC()

	var priority any
	if msg.Priority != nil {
		priority = string(*msg.Priority)
	}

	result, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO messages (
			id, account_id, provider_message_id,
			sender, recipients, subject, body, received_at, is_read,
			ai_intent, ai_sentiment, ai_priority, ai_summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, provider_message_id) DO NOTHING`),
		msg.ID, msg.AccountID, msg.ProviderMessageID,
		msg.From, msg.To, msg.Subject, msg.Body, msg.ReceivedAt.UTC(), boolToInt(msg.IsRead),
		nullString(msg.Intent), nullString(msg.Sentiment), priority, nullString(msg.Summary), msg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting message %s: %w", msg.ProviderMessageID, ErrDuplicate)
		}
		return fmt.Errorf("inserting message %s: %w", msg.ProviderMessageID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert of message %s: %w", msg.ProviderMessageID, err)
	}
	if n == 0 {
		return fmt.Errorf("inserting message %s: %w", msg.ProviderMessageID, ErrDuplicate)
	}
	return nil
}

// GetMessageForUser retrieves a message only if it belongs to one of
// userID's accounts.
func (s *SQLStore) GetMessageForUser(ctx context.Context, userID, id string) (*model.Message, error) {
	var msg model.Message
	err := s.db.GetContext(ctx, &msg, s.q(`
		SELECT `+messageColumns+`
		FROM messages m JOIN accounts a ON a.id = m.account_id
		WHERE m.id = ? AND a.user_id = ?`), id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	return &msg, nil
}

// ListMessages returns one page of a user's messages, newest first, and
// the total number of matches.
func (s *SQLStore) ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, int, error) {
	conditions := []string{"a.user_id = ?"}
	args := []any{filter.UserID}

	if filter.AccountID != nil {
		conditions = append(conditions, "m.account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.Priority != nil {
		conditions = append(conditions, "m.ai_priority = ?")
		args = append(args, string(*filter.Priority))
	}
	if filter.Sentiment != nil {
		conditions = append(conditions, "m.ai_sentiment = ?")
		args = append(args, *filter.Sentiment)
	}
	if filter.Unread != nil {
		conditions = append(conditions, "m.is_read = ?")
		args = append(args, boolToInt(!*filter.Unread))
	}

	from := " FROM messages m JOIN accounts a ON a.id = m.account_id WHERE " +
		strings.Join(conditions, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, s.q("SELECT COUNT(*)"+from), args...); err != nil {
		return nil, 0, fmt.Errorf("counting messages: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + messageColumns + from +
		" ORDER BY m.received_at DESC, m.id LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	var msgs []model.Message
	if err := s.db.SelectContext(ctx, &msgs, s.q(query), args...); err != nil {
		return nil, 0, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, total, nil
}

// MarkMessageRead sets the read flag on a message owned by userID.
func (s *SQLStore) MarkMessageRead(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE messages SET is_read = 1
		WHERE id = ? AND account_id IN (SELECT id FROM accounts WHERE user_id = ?)`),
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking message %s read: %w", id, err)
	}
	return requireAffected(result, "message", id)
}
