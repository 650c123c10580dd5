package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source/outlook"
	"github.com/nhle/unibox/internal/store"
)

// AccountStore is the subset of the store used when linking.
type AccountStore interface {
	FindAccount(ctx context.Context, userID string, provider model.Provider, email string) (*model.Account, error)
	CreateAccount(ctx context.Context, acct *model.Account) error
	UpdateAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error
}

// Linker completes the OAuth callback: it exchanges the code, discovers
// the mailbox address, and creates or updates the account.
type Linker struct {
	manager        *Manager
	store          AccountStore
	graph          *outlook.Client
	googleEndpoint string
	logger         *zap.Logger
}

// LinkerOption configures a Linker.
type LinkerOption func(*Linker)

// WithGraphClient sets the client used to read the Outlook profile.
func WithGraphClient(c *outlook.Client) LinkerOption {
	return func(l *Linker) { l.graph = c }
}

// WithGoogleUserinfoEndpoint points the Google userinfo lookup elsewhere.
func WithGoogleUserinfoEndpoint(url string) LinkerOption {
	return func(l *Linker) { l.googleEndpoint = url }
}

// NewLinker creates a Linker.
func NewLinker(m *Manager, st AccountStore, logger *zap.Logger, opts ...LinkerOption) *Linker {
	l := &Linker{
		manager: m,
		store:   st,
		graph:   outlook.NewClient("", m.httpClient),
		logger:  logger.With(zap.String("component", "oauth-link")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Link handles an authorization callback for provider and returns the
// linked account. Re-linking an existing mailbox replaces its tokens and
// clears the re-auth flag.
func (l *Linker) Link(ctx context.Context, provider model.Provider, code, state string) (*model.Account, error) {
	userID, err := l.manager.ParseState(provider, state)
	if err != nil {
		return nil, err
	}

	tok, err := l.manager.ExchangeCode(ctx, provider, code)
	if err != nil {
		return nil, err
	}

	email, err := l.mailboxAddress(ctx, provider, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = l.manager.now().Add(time.Hour)
	}

	existing, err := l.store.FindAccount(ctx, userID, provider, email)
	switch {
	case err == nil:
		refresh := tok.RefreshToken
		if refresh == "" {
			refresh = existing.RefreshToken
		}
		if err := l.store.UpdateAccountTokens(ctx, existing.ID, tok.AccessToken, refresh, expiry); err != nil {
			return nil, fmt.Errorf("updating tokens for %s: %w", email, err)
		}
		existing.AccessToken = tok.AccessToken
		existing.RefreshToken = refresh
		existing.TokenExpiry = &expiry
		existing.ReauthRequired = false
		l.logger.Info("account re-linked",
			zap.String("account_id", existing.ID),
			zap.String("provider", string(provider)),
		)
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("looking up account %s: %w", email, err)
	}

	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("linking %s: %w", email, ErrNoRefreshToken)
	}

	acct := &model.Account{
		UserID:       userID,
		Provider:     provider,
		Email:        email,
		Active:       true,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  &expiry,
	}
	if err := l.store.CreateAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("creating account for %s: %w", email, err)
	}

	l.logger.Info("account linked",
		zap.String("account_id", acct.ID),
		zap.String("provider", string(provider)),
	)
	return acct, nil
}

func (l *Linker) mailboxAddress(ctx context.Context, provider model.Provider, token string) (string, error) {
	var (
		email string
		err   error
	)
	switch provider {
	case model.ProviderGmail:
		email, err = l.googleAddress(ctx, token)
	case model.ProviderOutlook:
		var u *outlook.User
		u, err = l.graph.Me(ctx, token)
		if u != nil {
			email = u.Address()
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s profile: %w", provider, err)
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%s profile has no email address", provider)
	}
	return email, nil
}

func (l *Linker) googleAddress(ctx context.Context, token string) (string, error) {
	ctx = l.manager.clientContext(ctx)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if l.googleEndpoint != "" {
		opts = append(opts, option.WithEndpoint(l.googleEndpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", err
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return info.Email, nil
}
