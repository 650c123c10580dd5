// Package autoreply drafts replies to stored messages using the user's
// catalog as grounding.
package autoreply

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/metrics"
	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/store"
)

// ErrMessageNotFound is returned when the message does not exist or the
// user does not own it.
var ErrMessageNotFound = errors.New("message not found")

// Store is the persistence the generator needs.
type Store interface {
	GetMessageForUser(ctx context.Context, userID, id string) (*model.Message, error)
	ListCatalog(ctx context.Context, userID string) ([]model.CatalogEntry, error)
	CreateDraftReply(ctx context.Context, reply *model.DraftReply) error
}

// Writer detects catalog mentions and writes reply text. Neither
// operation may fail.
type Writer interface {
	DetectMentions(ctx context.Context, body string, catalog []model.CatalogEntry) []model.CatalogEntry
	DraftReply(ctx context.Context, subject, body string, mentioned []model.CatalogEntry) string
}

// Generator creates draft replies on demand.
type Generator struct {
	store  Store
	writer Writer
	logger *zap.Logger
}

// New creates a Generator.
func New(st Store, w Writer, logger *zap.Logger) *Generator {
	return &Generator{
		store:  st,
		writer: w,
		logger: logger.With(zap.String("component", "autoreply")),
	}
}

// Generate drafts a reply to messageID and stores it as a new pending
// draft. Every call adds a draft; earlier drafts are kept. The message
// itself is not modified.
func (g *Generator) Generate(ctx context.Context, userID, messageID string) (*model.DraftReply, error) {
	msg, err := g.store.GetMessageForUser(ctx, userID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		return nil, fmt.Errorf("loading message %s: %w", messageID, err)
	}

	catalog, err := g.store.ListCatalog(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	mentioned := g.writer.DetectMentions(ctx, msg.Body, catalog)
	text := g.writer.DraftReply(ctx, msg.Subject, msg.Body, mentioned)

	reply := &model.DraftReply{
		MessageID: msg.ID,
		Text:      text,
		Status:    model.ReplyPending,
	}
	if err := g.store.CreateDraftReply(ctx, reply); err != nil {
		return nil, fmt.Errorf("saving draft reply: %w", err)
	}

	metrics.RecordDraft()
	g.logger.Info("draft reply created",
		zap.String("message_id", msg.ID),
		zap.String("reply_id", reply.ID),
		zap.Int("mentions", len(mentioned)),
	)
	return reply, nil
}
