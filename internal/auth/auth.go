// Package auth issues and validates the bearer tokens that identify an
// account on the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates the token is malformed, expired or signed
	// with another key.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("auth: missing token")
)

// Identity is the authenticated account behind a token.
type Identity struct {
	AccountID string
	Username  string
	ExpiresAt time.Time
}

// Validator validates bearer tokens.
type Validator interface {
	// Validate returns the identity for a valid token, or ErrInvalidToken.
	Validate(ctx context.Context, token string) (*Identity, error)
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  quartz.Clock
}

// Option configures Tokens.
type Option func(*Tokens)

// WithClock sets the clock used for issue and expiry times.
func WithClock(c quartz.Clock) Option {
	return func(t *Tokens) { t.clock = c }
}

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) Option {
	return func(t *Tokens) { t.issuer = issuer }
}

// NewTokens creates a token signer. secret must not be empty.
func NewTokens(secret string, ttl time.Duration, opts ...Option) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: token ttl must be positive, got %s", ttl)
	}
	t := &Tokens{
		secret: []byte(secret),
		issuer: "blackjack",
		ttl:    ttl,
		clock:  quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue returns a signed token for the account and its expiry time.
func (t *Tokens) Issue(accountID, username string) (string, time.Time, error) {
	now := t.clock.Now()
	expiresAt := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate implements Validator.
func (t *Tokens) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		AccountID: c.Subject,
		Username:  c.Username,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
