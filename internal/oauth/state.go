package oauth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/unibox/internal/model"
)

// ErrInvalidState is returned when a callback's state parameter is
// forged, expired, or meant for another provider.
var ErrInvalidState = errors.New("invalid oauth state")

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// stateSigner issues short-lived HS256 tokens used as the OAuth state.
type stateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func newStateSigner(secret string, ttl time.Duration) (*stateSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating state key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &stateSigner{key: key, ttl: ttl, now: time.Now}, nil
}

func (s *stateSigner) sign(provider model.Provider, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id must not be empty")
	}

	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating state nonce: %w", err)
	}

	now := s.now()
	claims := stateClaims{
		Provider: string(provider),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        fmt.Sprintf("%x", nonce),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}
	return signed, nil
}

func (s *stateSigner) verify(provider model.Provider, state string) (string, error) {
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims,
		func(*jwt.Token) (interface{}, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider != string(provider) || claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}
