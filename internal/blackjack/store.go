package blackjack

import (
	"context"

	"github.com/lox/blackjack/internal/deck"
)

// Tx is the view of the account and round stores inside one transaction.
// Not-found reads return store.ErrNotFound. Saves compare Version with the
// stored version, return store.ErrConflict on mismatch and bump Version on
// success.
type Tx interface {
	Account(ctx context.Context, id string) (Account, error)
	SaveAccount(ctx context.Context, a *Account) error

	Round(ctx context.Context, id string) (Round, error)
	// ActiveRound returns the account's active round, if any.
	ActiveRound(ctx context.Context, accountID string) (Round, bool, error)
	// CreateRound inserts r; a second active round for the same account is a conflict.
	CreateRound(ctx context.Context, r *Round) error
	SaveRound(ctx context.Context, r *Round) error

	AppendLedger(ctx context.Context, e LedgerEntry) error
}

// Store runs transactions. Update commits every write made by fn or none of them.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error

	// History returns the account's rounds, newest first.
	History(ctx context.Context, accountID string, limit int) ([]Round, error)
	// Leaderboard returns accounts by balance, wins and username.
	Leaderboard(ctx context.Context, limit int) ([]Standing, error)
}

// DrawSource deals cards. Draw may block on I/O and returns exactly n cards
// or an error.
type DrawSource interface {
	Draw(ctx context.Context, n int) ([]deck.Card, error)
}

// Locker serialises commands for one account.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Notifier is told about every settled round after it commits.
type Notifier interface {
	RoundSettled(r Round, a Account)
}
