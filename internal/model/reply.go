package model

import "time"

// ReplyStatus tracks a draft through the review workflow.
type ReplyStatus string

const (
	ReplyPending  ReplyStatus = "pending"
	ReplyApproved ReplyStatus = "approved"
	ReplyRejected ReplyStatus = "rejected"
	ReplySent     ReplyStatus = "sent"
)

// DraftReply is a generated response candidate for a message. A message
// may have any number of drafts; regeneration adds rows.
type DraftReply struct {
	ID        string      `db:"id" json:"id"`
	MessageID string      `db:"message_id" json:"message_id"`
	Text      string      `db:"reply_text" json:"text"`
	Status    ReplyStatus `db:"status" json:"status"`
	SentAt    *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
