package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider identifies the mailbox backend of an account.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderIMAP    Provider = "imap"
)

// DefaultIMAPPort is used when an IMAP account is linked without a port.
const DefaultIMAPPort = 993

// ParseProvider converts a user-supplied string into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGmail, ProviderOutlook, ProviderIMAP:
		return true
	}
	return false
}

// UsesOAuth reports whether accounts of this provider authenticate with
// OAuth tokens rather than static credentials.
func (p Provider) UsesOAuth() bool {
	return p == ProviderGmail || p == ProviderOutlook
}

// Account is one linked mailbox owned by a user.
type Account struct {
	// ID is the internal unique identifier for this account.
	ID string `db:"id" json:"id"`

	// UserID is the owning user as supplied by the identity layer.
	UserID string `db:"user_id" json:"user_id"`

	Provider Provider `db:"provider" json:"provider"`

	// Email is the mailbox address. IMAP accounts also use it as the
	// login name.
	Email string `db:"email" json:"email"`

	Active bool `db:"active" json:"active"`

	// ReauthRequired is set when the provider rejected the stored grant
	// or credentials. Such accounts are skipped until re-linked.
	ReauthRequired bool `db:"reauth_required" json:"reauth_required"`

	// OAuth credential material (gmail, outlook).
	AccessToken  string     `db:"access_token" json:"-"`
	RefreshToken string     `db:"refresh_token" json:"-"`
	TokenExpiry  *time.Time `db:"token_expiry" json:"token_expiry,omitempty"`

	// Static credential material (imap).
	IMAPHost     string `db:"imap_host" json:"imap_host,omitempty"`
	IMAPPort     int    `db:"imap_port" json:"imap_port,omitempty"`
	IMAPPassword string `db:"imap_password" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks that the account's credential material matches its
// provider. OAuth and IMAP credentials are mutually exclusive.
func (a *Account) Validate() error {
	if a.UserID == "" {
		return errors.New("account user id must not be empty")
	}
	if !a.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", a.Provider)
	}
	if strings.TrimSpace(a.Email) == "" {
		return errors.New("account email must not be empty")
	}

	hasOAuth := a.AccessToken != "" || a.RefreshToken != "" || a.TokenExpiry != nil
	hasIMAP := a.IMAPHost != "" || a.IMAPPort != 0 || a.IMAPPassword != ""

	if a.Provider.UsesOAuth() {
		if hasIMAP {
			return fmt.Errorf("%s account must not carry IMAP credentials", a.Provider)
		}
		if a.AccessToken == "" && a.RefreshToken == "" {
			return fmt.Errorf("%s account requires an OAuth token", a.Provider)
		}
		return nil
	}

	if hasOAuth {
		return errors.New("imap account must not carry OAuth tokens")
	}
	if a.IMAPHost == "" || a.IMAPPassword == "" {
		return errors.New("imap account requires host and password")
	}
	if a.IMAPPort <= 0 || a.IMAPPort > 65535 {
		return fmt.Errorf("invalid IMAP port %d", a.IMAPPort)
	}
	return nil
}

// TokenValid reports whether the stored access token is usable for at
// least skew beyond now.
func (a *Account) TokenValid(now time.Time, skew time.Duration) bool {
	if a.AccessToken == "" || a.TokenExpiry == nil {
		return false
	}
	return now.Add(skew).Before(*a.TokenExpiry)
}
