// Package app wires configuration into the running components: store,
// token manager, provider adapters, AI, sync, and auto-reply.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/ai"
	"github.com/nhle/unibox/internal/autoreply"
	"github.com/nhle/unibox/internal/events"
	"github.com/nhle/unibox/internal/inbox"
	"github.com/nhle/unibox/internal/lock"
	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/oauth"
	"github.com/nhle/unibox/internal/secret"
	"github.com/nhle/unibox/internal/source"
	"github.com/nhle/unibox/internal/source/gmail"
	"github.com/nhle/unibox/internal/source/imapmail"
	"github.com/nhle/unibox/internal/source/outlook"
	"github.com/nhle/unibox/internal/store"
	appsync "github.com/nhle/unibox/internal/sync"
)

// App holds every long-lived component. Close releases them.
type App struct {
	Config       *model.AppConfig
	Logger       *zap.Logger
	Store        *store.SQLStore
	Tokens       *oauth.Manager
	Linker       *oauth.Linker
	Orchestrator *appsync.Orchestrator
	Replies      *autoreply.Generator
	Inbox        *inbox.Service
	Publisher    events.Publisher

	redis *redis.Client
}

// Option adjusts construction, mostly for tests.
type Option func(*options)

type options struct {
	httpClient *http.Client
	fetchers   source.Registry
	completer  ai.Completer
}

// WithHTTPClient is used for OAuth, Gmail, Graph, and AI calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithFetchers replaces the provider adapters.
func WithFetchers(r source.Registry) Option {
	return func(o *options) { o.fetchers = r }
}

// WithCompleter replaces the configured AI backend.
func WithCompleter(c ai.Completer) Option {
	return func(o *options) { o.completer = c }
}

// New builds the application from cfg. Optional infrastructure (Redis,
// AMQP, AI) is skipped with a warning when not configured.
func New(ctx context.Context, cfg *model.AppConfig, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var storeOpts []store.Option
	if cfg.Secrets.EncryptionKey != "" {
		box, err := secret.NewBoxFromBase64(cfg.Secrets.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("loading encryption key: %w", err)
		}
		storeOpts = append(storeOpts, store.WithSealer(box))
	} else {
		logger.Warn("secrets.encryption_key not set; credentials are stored unencrypted")
	}

	if err := ensureSQLiteDir(cfg.Database); err != nil {
		return nil, err
	}
	a.Store, err = store.Open(cfg.Database.Driver, cfg.Database.DSN, storeOpts...)
	if err != nil {
		return nil, err
	}

	locker, err := a.locker(ctx)
	if err != nil {
		return nil, err
	}

	var managerOpts []oauth.Option
	if o.httpClient != nil {
		managerOpts = append(managerOpts, oauth.WithHTTPClient(o.httpClient))
	}
	a.Tokens, err = oauth.NewManager(cfg.OAuth, a.Store, locker, logger, managerOpts...)
	if err != nil {
		return nil, err
	}

	graph := outlook.NewClient("", o.httpClient)
	a.Linker = oauth.NewLinker(a.Tokens, a.Store, logger, oauth.WithGraphClient(graph))

	fetchers := o.fetchers
	if fetchers == nil {
		var gmailOpts []gmail.Option
		if o.httpClient != nil {
			gmailOpts = append(gmailOpts, gmail.WithHTTPClient(o.httpClient))
		}
		fetchers = source.Registry{
			model.ProviderGmail:   gmail.New(a.Tokens, gmailOpts...),
			model.ProviderOutlook: outlook.New(graph, a.Tokens),
			model.ProviderIMAP:    imapmail.New(),
		}
	}

	annotator := ai.NewAnnotator(a.completer(cfg.AI, o), logger)

	a.Publisher, err = a.publisher(cfg.AMQP)
	if err != nil {
		return nil, err
	}

	a.Orchestrator = appsync.NewOrchestrator(a.Store, fetchers, annotator, logger,
		appsync.WithWorkers(cfg.Sync.AnnotateWorkers),
		appsync.WithPublisher(a.Publisher),
	)
	a.Replies = autoreply.New(a.Store, annotator, logger)
	a.Inbox = inbox.NewService(a.Store, logger)

	return a, nil
}

func (a *App) locker(ctx context.Context) (lock.Locker, error) {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		return lock.NewLocal(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Addr, err)
	}
	return lock.NewRedis(a.redis, 0), nil
}

func (a *App) completer(cfg model.AIConfig, o *options) ai.Completer {
	if o.completer != nil {
		return ai.NewBreaker(o.completer, a.Logger)
	}

	c, err := ai.NewCompleter(cfg, o.httpClient)
	if err != nil {
		if errors.Is(err, ai.ErrNoAPIKey) {
			a.Logger.Warn("ai.api_key not set; annotations and replies use fallbacks")
		} else {
			a.Logger.Warn("ai backend disabled", zap.Error(err))
		}
		return nil
	}
	return ai.NewBreaker(c, a.Logger)
}

func (a *App) publisher(cfg model.AMQPConfig) (events.Publisher, error) {
	if cfg.URL == "" {
		return events.Noop{}, nil
	}
	p, err := events.DialAMQP(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewPoller builds a poller over every syncable account.
func (a *App) NewPoller() *appsync.Poller {
	return appsync.NewPoller(a.Store, a.Orchestrator, appsync.PollerConfig{
		Interval:     secondsToDuration(a.Config.Sync.PollIntervalSec),
		CycleTimeout: a.Config.Sync.CycleTimeout,
		Parallel:     a.Config.Sync.AnnotateWorkers,
	}, a.Logger)
}

// Close releases the store, broker, and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
