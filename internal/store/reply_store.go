package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/unibox/internal/model"
)

// CreateDraftReply inserts a new draft. Drafts are never overwritten.
func (s *SQLStore) CreateDraftReply(ctx context.Context, reply *model.DraftReply) error {
	if reply.ID == "" {
		reply.ID = uuid.New().String()
	}
	if reply.Status == "" {
		reply.Status = model.ReplyPending
	}
	reply.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO draft_replies (id, message_id, reply_text, status, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		reply.ID, reply.MessageID, reply.Text, string(reply.Status),
		nullTime(reply.SentAt), reply.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating draft reply for message %s: %w", reply.MessageID, err)
	}
	return nil
}

// ListDraftReplies returns a message's drafts, newest first.
func (s *SQLStore) ListDraftReplies(ctx context.Context, messageID string) ([]model.DraftReply, error) {
	var replies []model.DraftReply
	err := s.db.SelectContext(ctx, &replies, s.q(`
		SELECT id, message_id, reply_text, status, sent_at, created_at
		FROM draft_replies WHERE message_id = ?
		ORDER BY created_at DESC, id`), messageID)
	if err != nil {
		return nil, fmt.Errorf("listing draft replies for message %s: %w", messageID, err)
	}
	return replies, nil
}
