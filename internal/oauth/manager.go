// Package oauth manages OAuth grants for Gmail and Outlook accounts:
// authorization URLs, code exchange, and serialized token refresh.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	gm "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"

	"github.com/nhle/unibox/internal/lock"
	"github.com/nhle/unibox/internal/metrics"
	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source"
)

var (
	// ErrNoRefreshToken means the account has no way to renew its grant.
	ErrNoRefreshToken = errors.New("account has no refresh token")

	// ErrUnsupportedProvider is returned for providers without OAuth.
	ErrUnsupportedProvider = errors.New("provider does not use OAuth")
)

// outlookScopes matches the permissions requested when linking Outlook.
var outlookScopes = []string{
	"openid", "profile", "email", "Mail.Read", "Mail.Send", "offline_access",
}

// TokenStore is the subset of the store the manager needs.
type TokenStore interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	UpdateAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error
}

// Manager implements source.TokenProvider. Refreshes for the same account
// are serialized through a Locker so a rotated refresh token is never
// used twice.
type Manager struct {
	configs    map[model.Provider]*oauth2.Config
	store      TokenStore
	locker     lock.Locker
	state      *stateSigner
	skew       time.Duration
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithEndpoint overrides a provider's authorization server.
func WithEndpoint(p model.Provider, ep oauth2.Endpoint) Option {
	return func(m *Manager) {
		if cfg, ok := m.configs[p]; ok {
			cfg.Endpoint = ep
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.state.now = now
	}
}

// NewManager builds OAuth clients for both providers from cfg.
func NewManager(
	cfg model.OAuthConfig,
	st TokenStore,
	locker lock.Locker,
	logger *zap.Logger,
	opts ...Option,
) (*Manager, error) {
	tenant := cfg.Outlook.Tenant
	if tenant == "" {
		tenant = "common"
	}

	signer, err := newStateSigner(cfg.StateSecret, cfg.StateTTL)
	if err != nil {
		return nil, err
	}
	if cfg.StateSecret == "" {
		logger.Warn("oauth state secret not configured; using an ephemeral key")
	}

	m := &Manager{
		configs: map[model.Provider]*oauth2.Config{
			model.ProviderGmail: {
				ClientID:     cfg.Gmail.ClientID,
				ClientSecret: cfg.Gmail.ClientSecret,
				RedirectURL:  cfg.Gmail.RedirectURL,
				Endpoint:     google.Endpoint,
				Scopes: []string{
					gm.GmailReadonlyScope,
					gm.GmailSendScope,
					oauth2api.UserinfoEmailScope,
				},
			},
			model.ProviderOutlook: {
				ClientID:     cfg.Outlook.ClientID,
				ClientSecret: cfg.Outlook.ClientSecret,
				RedirectURL:  cfg.Outlook.RedirectURL,
				Endpoint:     microsoft.AzureADEndpoint(tenant),
				Scopes:       outlookScopes,
			},
		},
		store:      st,
		locker:     locker,
		state:      signer,
		skew:       cfg.RefreshSkew,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		logger:     logger.With(zap.String("component", "oauth")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) config(p model.Provider) (*oauth2.Config, error) {
	cfg, ok := m.configs[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, p)
	}
	return cfg, nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// AuthorizationURL returns the consent URL for provider. The state
// parameter is a signed token carrying userID.
func (m *Manager) AuthorizationURL(provider model.Provider, userID string) (string, error) {
	cfg, err := m.config(provider)
	if err != nil {
		return "", err
	}

	state, err := m.state.sign(provider, userID)
	if err != nil {
		return "", err
	}

	if provider == model.ProviderGmail {
		return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
	}
	return cfg.AuthCodeURL(state), nil
}

// ParseState verifies a callback's state and returns the user id it
// carries.
func (m *Manager) ParseState(provider model.Provider, state string) (string, error) {
	return m.state.verify(provider, state)
}

// ExchangeCode trades an authorization code for tokens.
func (m *Manager) ExchangeCode(ctx context.Context, provider model.Provider, code string) (*oauth2.Token, error) {
	cfg, err := m.config(provider)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(m.clientContext(ctx), code)
	if err != nil {
		return nil, classify(provider, "exchanging authorization code", err)
	}
	return tok, nil
}

// AccessToken returns the account's access token, refreshing it first if
// it expires within the configured skew.
func (m *Manager) AccessToken(ctx context.Context, acct *model.Account) (string, error) {
	if !acct.Provider.UsesOAuth() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, acct.Provider)
	}
	if acct.TokenValid(m.now(), m.skew) {
		return acct.AccessToken, nil
	}
	return m.refresh(ctx, acct, "")
}

// ForceRefresh renews the token after the provider rejected stale.
func (m *Manager) ForceRefresh(ctx context.Context, acct *model.Account, stale string) (string, error) {
	if !acct.Provider.UsesOAuth() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, acct.Provider)
	}
	return m.refresh(ctx, acct, stale)
}

func (m *Manager) refresh(ctx context.Context, acct *model.Account, stale string) (string, error) {
	cfg, err := m.config(acct.Provider)
	if err != nil {
		return "", err
	}

	unlock, err := m.locker.Lock(ctx, "token-refresh:"+acct.ID)
	if err != nil {
		return "", transportErr(acct.Provider, "acquiring refresh lock", err)
	}
	defer unlock()

	// Reload under the lock: another caller may have refreshed already.
	current, err := m.store.GetAccount(ctx, acct.ID)
	if err != nil {
		return "", transportErr(acct.Provider, "reloading account", err)
	}
	now := m.now()
	if stale == "" && current.TokenValid(now, m.skew) {
		copyTokens(acct, current)
		return current.AccessToken, nil
	}
	if stale != "" && current.AccessToken != stale && current.TokenValid(now, 0) {
		copyTokens(acct, current)
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" {
		metrics.RecordTokenRefresh(string(acct.Provider), "reauth")
		return "", &source.AuthError{
			Provider: acct.Provider,
			Message:  "re-link the account",
			Err:      ErrNoRefreshToken,
		}
	}

	tok, err := cfg.TokenSource(m.clientContext(ctx), &oauth2.Token{
		RefreshToken: current.RefreshToken,
	}).Token()
	if err != nil {
		err = classify(acct.Provider, "refreshing token", err)
		outcome := "error"
		if source.IsAuthError(err) {
			outcome = "reauth"
		}
		metrics.RecordTokenRefresh(string(acct.Provider), outcome)
		m.logger.Warn("token refresh failed",
			zap.String("account_id", acct.ID),
			zap.String("provider", string(acct.Provider)),
			zap.Error(err),
		)
		return "", err
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = current.RefreshToken
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(time.Hour)
	}

	if err := m.store.UpdateAccountTokens(ctx, acct.ID, tok.AccessToken, refreshToken, expiry); err != nil {
		return "", transportErr(acct.Provider, "saving refreshed token", err)
	}

	metrics.RecordTokenRefresh(string(acct.Provider), "ok")
	m.logger.Info("token refreshed",
		zap.String("account_id", acct.ID),
		zap.String("provider", string(acct.Provider)),
		zap.Bool("rotated", tok.RefreshToken != "" && tok.RefreshToken != current.RefreshToken),
	)

	current.AccessToken = tok.AccessToken
	current.RefreshToken = refreshToken
	current.TokenExpiry = &expiry
	current.ReauthRequired = false
	copyTokens(acct, current)

	return tok.AccessToken, nil
}

func copyTokens(dst, src *model.Account) {
	dst.AccessToken = src.AccessToken
	dst.RefreshToken = src.RefreshToken
	dst.TokenExpiry = src.TokenExpiry
	dst.ReauthRequired = src.ReauthRequired
}

// classify separates revoked or invalid grants, which need the user to
// re-link, from transient failures.
func classify(p model.Provider, op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client", "interaction_required":
			return &source.AuthError{Provider: p, Message: op, Err: err}
		}
		if re.Response != nil &&
			(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
			return &source.AuthError{Provider: p, Message: op, Err: err}
		}
	}
	return transportErr(p, op, err)
}

func transportErr(p model.Provider, op string, err error) error {
	return &source.TransportError{Provider: p, Op: op, Err: err}
}
