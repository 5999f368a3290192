// Package accounts registers players and signs them in.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/roundid"
	"github.com/lox/blackjack/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// DefaultStartingBalance is credited to every new account.
const DefaultStartingBalance int64 = 1000

const maxUsernameLength = 32

var (
	ErrInvalidUsername    = errors.New("username must be 1-32 characters")
	ErrInvalidPassword    = errors.New("password is required")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Store persists accounts with their password hashes.
type Store interface {
	CreateAccount(ctx context.Context, a blackjack.Account, passwordHash []byte) (blackjack.Account, error)
	Credentials(ctx context.Context, username string) (blackjack.Account, []byte, error)
	GetAccount(ctx context.Context, id string) (blackjack.Account, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   blackjack.Account
}

// Config controls account creation.
type Config struct {
	StartingBalance int64
	BcryptCost      int
}

// Service implements registration and login.
type Service struct {
	store  Store
	tokens *auth.Tokens
	cfg    Config
	clock  quartz.Clock
	logger zerolog.Logger
}

// NewService creates an account service. Zero config values take defaults.
func NewService(s Store, tokens *auth.Tokens, cfg Config, clock quartz.Clock, logger zerolog.Logger) *Service {
	if cfg.StartingBalance <= 0 {
		cfg.StartingBalance = DefaultStartingBalance
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Service{
		store:  s,
		tokens: tokens,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With().Str("component", "accounts").Logger(),
	}
}

// Register creates an account with the starting balance.
func (s *Service) Register(ctx context.Context, username, password string) (blackjack.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return blackjack.Account{}, ErrInvalidUsername
	}
	if password == "" {
		return blackjack.Account{}, ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return blackjack.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now().UTC()
	a, err := s.store.CreateAccount(ctx, blackjack.Account{
		ID:        roundid.New(),
		Username:  username,
		Balance:   s.cfg.StartingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}, hash)
	if errors.Is(err, store.ErrConflict) {
		return blackjack.Account{}, ErrUsernameTaken
	}
	if err != nil {
		return blackjack.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info().Str("account", a.ID).Str("username", a.Username).Int64("balance", a.Balance).Msg("account registered")
	return a, nil
}

// Login verifies the password and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	a, hash, err := s.store.Credentials(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load credentials: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		s.logger.Debug().Str("username", username).Msg("login rejected")
		return Session{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(a.ID, a.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, Account: a}, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (blackjack.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return blackjack.Account{}, blackjack.ErrAccountNotFound
	}
	return a, err
}
