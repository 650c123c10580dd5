package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/unibox/internal/model"
)

// SyncState represents the current state of an account's sync.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
	SyncReauth
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	case SyncReauth:
		return "reauth"
	default:
		return "unknown"
	}
}

// SyncStatus holds the sync state for a single account.
type SyncStatus struct {
	AccountID string
	UserID    string
	Provider  model.Provider
	State     SyncState
	LastSync  time.Time
	LastNew   int
	Error     error
}

// AccountLister supplies the accounts each poll cycle visits.
type AccountLister interface {
	ListSyncableAccounts(ctx context.Context) ([]model.Account, error)
}

// Syncer runs one account's cycle. *Orchestrator implements it.
type Syncer interface {
	SyncAccount(ctx context.Context, userID, accountID string) (*Result, error)
}

// PollerConfig tunes the polling loop.
type PollerConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration

	// Parallel bounds how many accounts sync at once.
	Parallel int
}

// Poller periodically syncs every active account that does not need
// re-authorization.
type Poller struct {
	accounts  AccountLister
	syncer    Syncer
	cfg       PollerConfig
	logger    *zap.Logger
	statuses  map[string]*SyncStatus
	triggerCh chan string
	stopCh    chan struct{}
	done      chan struct{}
	mu        gosync.Mutex
	running   bool
	stopped   bool
}

// allAccounts is the trigger value for a full cycle.
const allAccounts = ""

// NewPoller creates a Poller.
func NewPoller(accounts AccountLister, syncer Syncer, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 2 * time.Minute
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	return &Poller{
		accounts:  accounts,
		syncer:    syncer,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "poller")),
		statuses:  make(map[string]*SyncStatus),
		triggerCh: make(chan string, 16),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the polling loop. The first cycle runs immediately.
// A Poller cannot be restarted once stopped.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	<-p.done
}

// RefreshAll triggers an immediate cycle over every account.
func (p *Poller) RefreshAll() {
	p.trigger(allAccounts)
}

// RefreshAccount triggers an immediate sync of one account.
func (p *Poller) RefreshAccount(accountID string) {
	p.trigger(accountID)
}

func (p *Poller) trigger(id string) {
	select {
	case p.triggerCh <- id:
	default:
		// Channel full; a cycle is already pending.
	}
}

// Statuses returns the sync status of every account seen so far.
func (p *Poller) Statuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.RunCycle(ctx, allAccounts)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunCycle(ctx, allAccounts)
		case id := <-p.triggerCh:
			p.RunCycle(ctx, id)
		}
	}
}

// RunCycle syncs every syncable account, or only onlyID when it is set.
// Each account gets its own timeout; one account failing does not affect
// the others.
func (p *Poller) RunCycle(ctx context.Context, onlyID string) {
	accounts, err := p.accounts.ListSyncableAccounts(ctx)
	if err != nil {
		p.logger.Error("listing accounts", zap.Error(err))
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Parallel)

	for _, acct := range accounts {
		if onlyID != allAccounts && acct.ID != onlyID {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.syncOne(ctx, acct)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) syncOne(ctx context.Context, acct model.Account) {
	p.setStatus(acct, SyncRunning, 0, nil)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CycleTimeout)
	defer cancel()

	res, err := p.syncer.SyncAccount(ctx, acct.UserID, acct.ID)
	switch {
	case errors.Is(err, ErrReauthRequired):
		p.setStatus(acct, SyncReauth, 0, err)
	case err != nil:
		p.logger.Warn("account sync failed",
			zap.String("account_id", acct.ID),
			zap.Error(err),
		)
		p.setStatus(acct, SyncError, 0, err)
	default:
		p.setStatus(acct, SyncIdle, len(res.Persisted), nil)
	}
}

// setStatus updates the sync status for an account.
func (p *Poller) setStatus(acct model.Account, state SyncState, newCount int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[acct.ID]
	if !ok {
		status = &SyncStatus{AccountID: acct.ID, UserID: acct.UserID, Provider: acct.Provider}
		p.statuses[acct.ID] = status
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
		status.LastNew = newCount
	}
}
