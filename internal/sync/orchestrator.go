// Package sync runs sync cycles: fetch unread mail for one account,
// drop messages already stored, annotate the rest, and persist them.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/unibox/internal/events"
	"github.com/nhle/unibox/internal/metrics"
	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source"
	"github.com/nhle/unibox/internal/store"
)

var (
	// ErrAccountNotFound is returned when the account does not exist or
	// belongs to another user.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnknownProvider means no adapter is registered for the account's
	// provider.
	ErrUnknownProvider = errors.New("no adapter for provider")

	// ErrAccountInactive is returned for deactivated accounts.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrReauthRequired wraps the AuthError that flagged the account.
	ErrReauthRequired = errors.New("account requires re-authorization")
)

// Store is the persistence the orchestrator needs.
type Store interface {
	GetAccountForUser(ctx context.Context, userID, id string) (*model.Account, error)
	SetReauthRequired(ctx context.Context, id string, required bool) error
	MessageExists(ctx context.Context, accountID, providerMessageID string) (bool, error)
	InsertMessage(ctx context.Context, msg *model.Message) error
}

// Annotator classifies a message. It must not fail.
type Annotator interface {
	Annotate(ctx context.Context, subject, body string) model.Annotation
}

// Result summarizes one sync cycle.
type Result struct {
	// Persisted holds the messages stored by this cycle, in completion
	// order.
	Persisted []model.Message

	Fetched int
	// Skipped counts messages that were already stored.
	Skipped int
	// Dropped counts messages that could not be stored this cycle. They
	// are fetched again next time.
	Dropped int
}

// Orchestrator drives sync cycles. It is safe for concurrent use; cycles
// for different accounts are independent.
type Orchestrator struct {
	store     Store
	fetchers  source.Registry
	annotator Annotator
	publisher events.Publisher
	workers   int
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds how many messages are annotated at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPublisher announces every persisted message.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	st Store,
	fetchers source.Registry,
	annotator Annotator,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		fetchers:  fetchers,
		annotator: annotator,
		publisher: events.Noop{},
		workers:   1,
		logger:    logger.With(zap.String("component", "sync")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SyncAccount runs one cycle for accountID on behalf of userID.
//
// Fetch failures abort the cycle and nothing is persisted. An AuthError
// also flags the account for re-authorization and is returned wrapped in
// ErrReauthRequired. Failures storing individual messages are logged and
// counted as dropped; they do not fail the cycle.
//
// If ctx is cancelled mid-cycle no further messages are started, the
// returned Result holds what was already persisted, and the error wraps
// ctx.Err().
func (o *Orchestrator) SyncAccount(ctx context.Context, userID, accountID string) (*Result, error) {
	start := time.Now()

	acct, err := o.store.GetAccountForUser(ctx, userID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("loading account %s: %w", accountID, err)
	}
	if !acct.Active {
		return nil, fmt.Errorf("%w: %s", ErrAccountInactive, accountID)
	}

	fetcher, ok := o.fetchers.Lookup(acct.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, acct.Provider)
	}

	log := o.logger.With(
		zap.String("account_id", acct.ID),
		zap.String("provider", string(acct.Provider)),
	)
	provider := string(acct.Provider)

	raws, err := fetcher.Fetch(ctx, acct)
	if err != nil {
		if source.IsAuthError(err) {
			if flagErr := o.store.SetReauthRequired(ctx, acct.ID, true); flagErr != nil {
				log.Error("failed to flag account for re-authorization", zap.Error(flagErr))
			}
			log.Warn("account requires re-authorization", zap.Error(err))
			metrics.RecordSyncCycle(provider, "reauth", time.Since(start))
			return nil, fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		log.Warn("fetch failed", zap.Error(err))
		metrics.RecordSyncCycle(provider, "error", time.Since(start))
		return nil, fmt.Errorf("fetching account %s: %w", acct.ID, err)
	}
	raws = source.Truncate(raws)

	if acct.ReauthRequired {
		if err := o.store.SetReauthRequired(ctx, acct.ID, false); err != nil {
			log.Warn("failed to clear re-authorization flag", zap.Error(err))
		}
	}

	res := o.process(ctx, acct, raws, log)

	metrics.RecordMessages(provider, "persisted", len(res.Persisted))
	metrics.RecordMessages(provider, "skipped", res.Skipped)
	metrics.RecordMessages(provider, "dropped", res.Dropped)

	if err := ctx.Err(); err != nil {
		metrics.RecordSyncCycle(provider, "cancelled", time.Since(start))
		log.Info("sync cycle cancelled",
			zap.Int("persisted", len(res.Persisted)),
			zap.Int("fetched", res.Fetched),
		)
		return res, fmt.Errorf("sync of account %s interrupted: %w", acct.ID, err)
	}

	metrics.RecordSyncCycle(provider, "ok", time.Since(start))
	log.Info("sync cycle complete",
		zap.Int("fetched", res.Fetched),
		zap.Int("persisted", len(res.Persisted)),
		zap.Int("skipped", res.Skipped),
		zap.Int("dropped", res.Dropped),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// process fans the batch out to a bounded pool. Workers never return
// errors, so one bad message does not cancel the others.
func (o *Orchestrator) process(
	ctx context.Context,
	acct *model.Account,
	raws []source.RawMessage,
	log *zap.Logger,
) *Result {
	res := &Result{Fetched: len(raws)}
	var mu gosync.Mutex

	var g errgroup.Group
	g.SetLimit(o.workers)

	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			msg, outcome := o.processOne(ctx, acct, raw, log)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomePersisted:
				res.Persisted = append(res.Persisted, *msg)
			case outcomeSkipped:
				res.Skipped++
			case outcomeDropped:
				res.Dropped++
			}
			return nil
		})
	}
	_ = g.Wait()

	return res
}

type outcome int

const (
	outcomePersisted outcome = iota
	outcomeSkipped
	outcomeDropped
)

func (o *Orchestrator) processOne(
	ctx context.Context,
	acct *model.Account,
	raw source.RawMessage,
	log *zap.Logger,
) (*model.Message, outcome) {
	if ctx.Err() != nil {
		return nil, outcomeDropped
	}

	log = log.With(zap.String("provider_message_id", raw.ProviderMessageID))

	exists, err := o.store.MessageExists(ctx, acct.ID, raw.ProviderMessageID)
	if err != nil {
		log.Warn("dedup check failed; dropping message", zap.Error(err))
		return nil, outcomeDropped
	}
	if exists {
		return nil, outcomeSkipped
	}

	ann := o.annotator.Annotate(ctx, raw.Subject, raw.Body)
	if ctx.Err() != nil {
		return nil, outcomeDropped
	}

	msg := &model.Message{
		AccountID:         acct.ID,
		ProviderMessageID: raw.ProviderMessageID,
		From:              raw.From,
		To:                raw.To,
		Subject:           raw.Subject,
		Body:              raw.Body,
		ReceivedAt:        raw.ReceivedAt,
	}
	msg.ApplyAnnotation(ann)

	if err := o.store.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent cycle stored it first.
			return nil, outcomeSkipped
		}
		log.Warn("persist failed; dropping message", zap.Error(err))
		return nil, outcomeDropped
	}

	if err := o.publisher.PublishMessageSynced(ctx, events.NewMessageSynced(acct, msg)); err != nil {
		log.Warn("failed to publish message.synced", zap.String("message_id", msg.ID), zap.Error(err))
	}

	return msg, outcomePersisted
}
