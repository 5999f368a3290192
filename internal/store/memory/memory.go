// Package memory is an in-process implementation of the round and account
// stores. Transactions stage writes and apply them together on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/store"
)

// Store keeps accounts, rounds and the ledger in maps guarded by one lock.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]blackjack.Account
	hashes   map[string][]byte
	rounds   map[string]blackjack.Round
	ledger   []blackjack.LedgerEntry
}

var _ blackjack.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]blackjack.Account),
		hashes:   make(map[string][]byte),
		rounds:   make(map[string]blackjack.Round),
	}
}

// CreateAccount inserts a new account with its password hash. Usernames are
// unique, case-insensitively.
func (s *Store) CreateAccount(ctx context.Context, a blackjack.Account, passwordHash []byte) (blackjack.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return blackjack.Account{}, fmt.Errorf("account %s: %w", a.ID, store.ErrConflict)
	}
	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Username, a.Username) {
			return blackjack.Account{}, fmt.Errorf("username %s: %w", a.Username, store.ErrConflict)
		}
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.Version = 1
	s.accounts[a.ID] = a
	s.hashes[a.ID] = append([]byte(nil), passwordHash...)
	return a, nil
}

// Credentials returns the account and password hash for username.
func (s *Store) Credentials(ctx context.Context, username string) (blackjack.Account, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return a, append([]byte(nil), s.hashes[id]...), nil
		}
	}
	return blackjack.Account{}, nil, store.ErrNotFound
}

// GetAccount returns an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (blackjack.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return blackjack.Account{}, store.ErrNotFound
	}
	return a, nil
}

// Ledger returns a copy of every ledger entry for accountID in append order.
func (s *Store) Ledger(ctx context.Context, accountID string) ([]blackjack.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []blackjack.LedgerEntry
	for _, e := range s.ledger {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// View runs fn against the committed state. Writes made in fn are discarded.
func (s *Store) View(ctx context.Context, fn func(blackjack.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTx(s))
}

// Update runs fn and applies its staged writes only when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(blackjack.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	for id, a := range tx.accounts {
		s.accounts[id] = a
	}
	for id, r := range tx.rounds {
		s.rounds[id] = r
	}
	s.ledger = append(s.ledger, tx.ledger...)
	return nil
}

// History returns the account's rounds, newest first.
func (s *Store) History(ctx context.Context, accountID string, limit int) ([]blackjack.Round, error) {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []blackjack.Round
	for _, r := range s.rounds {
		if r.AccountID == accountID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Leaderboard returns accounts by balance desc, wins desc, then username.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]blackjack.Standing, error) {
	if limit <= 0 {
		limit = store.DefaultLeaderboardLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]blackjack.Standing, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, blackjack.Standing{
			AccountID:   a.ID,
			Username:    a.Username,
			Balance:     a.Balance,
			Wins:        a.Wins,
			GamesPlayed: a.GamesPlayed,
			HighestWin:  a.HighestWin,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].Username < out[j].Username
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tx reads through its staged writes to the committed maps. The caller
// holds the store lock for the lifetime of the tx.
type tx struct {
	s        *Store
	accounts map[string]blackjack.Account
	rounds   map[string]blackjack.Round
	ledger   []blackjack.LedgerEntry
}

func newTx(s *Store) *tx {
	return &tx{
		s:        s,
		accounts: make(map[string]blackjack.Account),
		rounds:   make(map[string]blackjack.Round),
	}
}

func (t *tx) Account(ctx context.Context, id string) (blackjack.Account, error) {
	if a, ok := t.accounts[id]; ok {
		return a, nil
	}
	if a, ok := t.s.accounts[id]; ok {
		return a, nil
	}
	return blackjack.Account{}, store.ErrNotFound
}

func (t *tx) SaveAccount(ctx context.Context, a *blackjack.Account) error {
	current, err := t.Account(ctx, a.ID)
	if err != nil {
		return err
	}
	if current.Version != a.Version {
		return fmt.Errorf("account %s version %d, have %d: %w", a.ID, current.Version, a.Version, store.ErrConflict)
	}
	a.Version++
	t.accounts[a.ID] = *a
	return nil
}

func (t *tx) Round(ctx context.Context, id string) (blackjack.Round, error) {
	if r, ok := t.rounds[id]; ok {
		return r.Clone(), nil
	}
	if r, ok := t.s.rounds[id]; ok {
		return r.Clone(), nil
	}
	return blackjack.Round{}, store.ErrNotFound
}

func (t *tx) ActiveRound(ctx context.Context, accountID string) (blackjack.Round, bool, error) {
	for _, r := range t.rounds {
		if r.AccountID == accountID && r.Active() {
			return r.Clone(), true, nil
		}
	}
	for id, r := range t.s.rounds {
		if _, staged := t.rounds[id]; staged {
			continue
		}
		if r.AccountID == accountID && r.Active() {
			return r.Clone(), true, nil
		}
	}
	return blackjack.Round{}, false, nil
}

func (t *tx) CreateRound(ctx context.Context, r *blackjack.Round) error {
	if _, err := t.Round(ctx, r.ID); err == nil {
		return fmt.Errorf("round %s: %w", r.ID, store.ErrConflict)
	}
	if r.Active() {
		if _, found, _ := t.ActiveRound(ctx, r.AccountID); found {
			return fmt.Errorf("account %s already has an active round: %w", r.AccountID, store.ErrConflict)
		}
	}
	r.Version = 1
	t.rounds[r.ID] = r.Clone()
	return nil
}

func (t *tx) SaveRound(ctx context.Context, r *blackjack.Round) error {
	current, err := t.Round(ctx, r.ID)
	if err != nil {
		return err
	}
	if current.Version != r.Version {
		return fmt.Errorf("round %s version %d, have %d: %w", r.ID, current.Version, r.Version, store.ErrConflict)
	}
	r.Version++
	t.rounds[r.ID] = r.Clone()
	return nil
}

func (t *tx) AppendLedger(ctx context.Context, e blackjack.LedgerEntry) error {
	for _, entries := range [][]blackjack.LedgerEntry{t.s.ledger, t.ledger} {
		for _, existing := range entries {
			if existing.RoundID == e.RoundID && existing.Kind == e.Kind {
				return fmt.Errorf("round %s already has a %s entry: %w", e.RoundID, e.Kind, store.ErrConflict)
			}
		}
	}
	e.ID = int64(len(t.s.ledger) + len(t.ledger) + 1)
	t.ledger = append(t.ledger, e)
	return nil
}
