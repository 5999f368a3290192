package blackjack

import "time"

// Account is the balance-tracked player record.
type Account struct {
	ID          string
	Username    string
	Balance     int64
	GamesPlayed int64
	Wins        int64
	HighestWin  int64
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LedgerKind classifies a balance movement.
type LedgerKind string

const (
	LedgerBet    LedgerKind = "bet"
	LedgerSettle LedgerKind = "settle"
)

// LedgerEntry is one append-only balance movement. Amount is never
// negative; direction follows from Kind and Before/After.
type LedgerEntry struct {
	ID        int64
	AccountID string
	RoundID   string
	Kind      LedgerKind
	Amount    int64
	Before    int64
	After     int64
	CreatedAt time.Time
}

// Standing is one leaderboard row.
type Standing struct {
	AccountID   string
	Username    string
	Balance     int64
	Wins        int64
	GamesPlayed int64
	HighestWin  int64
}
