// Package sqlite persists accounts, rounds and the ledger in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/store"
	"github.com/lox/blackjack/internal/store/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store is the SQLite implementation of blackjack.Store.
type Store struct {
	db *sqlx.DB
}

var _ blackjack.Store = (*Store)(nil)

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the database at path and applies pending migrations. Write
// transactions take the database lock up front so concurrent commands queue
// on busy_timeout instead of failing on upgrade.
func Open(ctx context.Context, path string) (*Store, error) {
	s, _, err := open(ctx, path)
	return s, err
}

// Migrate applies pending migrations to the database at path and returns
// the names of the files applied.
func Migrate(ctx context.Context, path string) ([]string, error) {
	s, applied, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	return applied, s.Close()
}

func open(ctx context.Context, path string) (*Store, []string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	applied, err := applyMigrations(ctx, db, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, applied, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateAccount inserts a new account with its password hash.
func (s *Store) CreateAccount(ctx context.Context, a blackjack.Account, passwordHash []byte) (blackjack.Account, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.Version = 1
	if passwordHash == nil {
		passwordHash = []byte{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (
		   id, username, password_hash, balance, games_played, wins, highest_win,
		   version, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, passwordHash, a.Balance, a.GamesPlayed, a.Wins, a.HighestWin,
		a.Version, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return blackjack.Account{}, fmt.Errorf("account %s: %w", a.Username, store.ErrConflict)
		}
		return blackjack.Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// Credentials returns the account and password hash for username.
func (s *Store) Credentials(ctx context.Context, username string) (blackjack.Account, []byte, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+`, password_hash FROM accounts WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return blackjack.Account{}, nil, store.ErrNotFound
	}
	if err != nil {
		return blackjack.Account{}, nil, fmt.Errorf("get credentials: %w", err)
	}
	return row.account(), row.PasswordHash, nil
}

// GetAccount returns an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (blackjack.Account, error) {
	return (&tx{q: s.db}).Account(ctx, id)
}

// Ledger returns every ledger entry for accountID in append order.
func (s *Store) Ledger(ctx context.Context, accountID string) ([]blackjack.LedgerEntry, error) {
	var rows []ledgerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, account_id, round_id, kind, amount, balance_before, balance_after, created_at
		 FROM ledger WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	out := make([]blackjack.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(blackjack.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(&tx{q: sqlTx})
}

// Update runs fn in a write transaction and commits only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(blackjack.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	if err := fn(&tx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// History returns the account's rounds, newest first.
func (s *Store) History(ctx context.Context, accountID string, limit int) ([]blackjack.Round, error) {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	var rows []roundRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+roundColumns+` FROM rounds
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	out := make([]blackjack.Round, 0, len(rows))
	for _, r := range rows {
		round, err := r.round()
		if err != nil {
			return nil, err
		}
		out = append(out, round)
	}
	return out, nil
}

// Leaderboard returns accounts by balance desc, wins desc, then username.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]blackjack.Standing, error) {
	if limit <= 0 {
		limit = store.DefaultLeaderboardLimit
	}
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+accountColumns+` FROM accounts
		 ORDER BY balance DESC, wins DESC, username COLLATE BINARY ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}
	out := make([]blackjack.Standing, 0, len(rows))
	for _, r := range rows {
		out = append(out, blackjack.Standing{
			AccountID:   r.ID,
			Username:    r.Username,
			Balance:     r.Balance,
			Wins:        r.Wins,
			GamesPlayed: r.GamesPlayed,
			HighestWin:  r.HighestWin,
		})
	}
	return out, nil
}

// tx implements blackjack.Tx over a database handle or transaction.
type tx struct {
	q sqlx.ExtContext
}

func (t *tx) Account(ctx context.Context, id string) (blackjack.Account, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, t.q, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return blackjack.Account{}, store.ErrNotFound
	}
	if err != nil {
		return blackjack.Account{}, fmt.Errorf("get account: %w", err)
	}
	return row.account(), nil
}

func (t *tx) SaveAccount(ctx context.Context, a *blackjack.Account) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE accounts SET
		   balance = ?, games_played = ?, wins = ?, highest_win = ?,
		   updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		a.Balance, a.GamesPlayed, a.Wins, a.HighestWin,
		toMillis(a.UpdatedAt), a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if err := t.checkUpdated(ctx, res, "accounts", a.ID, a.Version); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (t *tx) Round(ctx context.Context, id string) (blackjack.Round, error) {
	var row roundRow
	err := sqlx.GetContext(ctx, t.q, &row, `SELECT `+roundColumns+` FROM rounds WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return blackjack.Round{}, store.ErrNotFound
	}
	if err != nil {
		return blackjack.Round{}, fmt.Errorf("get round: %w", err)
	}
	return row.round()
}

func (t *tx) ActiveRound(ctx context.Context, accountID string) (blackjack.Round, bool, error) {
	var row roundRow
	err := sqlx.GetContext(ctx, t.q, &row,
		`SELECT `+roundColumns+` FROM rounds WHERE account_id = ? AND state = 'active'`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return blackjack.Round{}, false, nil
	}
	if err != nil {
		return blackjack.Round{}, false, fmt.Errorf("get active round: %w", err)
	}
	r, err := row.round()
	return r, err == nil, err
}

func (t *tx) CreateRound(ctx context.Context, r *blackjack.Round) error {
	row, err := newRoundRow(*r)
	if err != nil {
		return err
	}
	row.Version = 1
	_, err = sqlx.NamedExecContext(ctx, t.q,
		`INSERT INTO rounds (
		   id, account_id, state, player_cards, dealer_cards, stake, payout,
		   outcome, message, version, created_at, updated_at, settled_at
		 ) VALUES (
		   :id, :account_id, :state, :player_cards, :dealer_cards, :stake, :payout,
		   :outcome, :message, :version, :created_at, :updated_at, :settled_at
		 )`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("round %s: %w", r.ID, store.ErrConflict)
		}
		return fmt.Errorf("insert round: %w", err)
	}
	r.Version = 1
	return nil
}

func (t *tx) SaveRound(ctx context.Context, r *blackjack.Round) error {
	row, err := newRoundRow(*r)
	if err != nil {
		return err
	}
	res, err := sqlx.NamedExecContext(ctx, t.q,
		`UPDATE rounds SET
		   state = :state, player_cards = :player_cards, dealer_cards = :dealer_cards,
		   payout = :payout, outcome = :outcome, message = :message,
		   updated_at = :updated_at, settled_at = :settled_at, version = version + 1
		 WHERE id = :id AND version = :version`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("round %s: %w", r.ID, store.ErrConflict)
		}
		return fmt.Errorf("update round: %w", err)
	}
	if err := t.checkUpdated(ctx, res, "rounds", r.ID, r.Version); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (t *tx) AppendLedger(ctx context.Context, e blackjack.LedgerEntry) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO ledger (
		   account_id, round_id, kind, amount, balance_before, balance_after, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.AccountID, e.RoundID, string(e.Kind), e.Amount, e.Before, e.After, toMillis(e.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("round %s already has a %s entry: %w", e.RoundID, e.Kind, store.ErrConflict)
		}
		return fmt.Errorf("insert ledger: %w", err)
	}
	return nil
}

// checkUpdated turns a zero-row versioned update into ErrNotFound or
// ErrConflict.
func (t *tx) checkUpdated(ctx context.Context, res sql.Result, table, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var current int64
	err = sqlx.GetContext(ctx, t.q, &current, `SELECT version FROM `+table+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	return fmt.Errorf("%s %s version %d, have %d: %w", table, id, current, version, store.ErrConflict)
}

const accountColumns = `id, username, balance, games_played, wins, highest_win, version, created_at, updated_at`

type accountRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash []byte `db:"password_hash"`
	Balance      int64  `db:"balance"`
	GamesPlayed  int64  `db:"games_played"`
	Wins         int64  `db:"wins"`
	HighestWin   int64  `db:"highest_win"`
	Version      int64  `db:"version"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r accountRow) account() blackjack.Account {
	return blackjack.Account{
		ID:          r.ID,
		Username:    r.Username,
		Balance:     r.Balance,
		GamesPlayed: r.GamesPlayed,
		Wins:        r.Wins,
		HighestWin:  r.HighestWin,
		Version:     r.Version,
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
}

const roundColumns = `id, account_id, state, player_cards, dealer_cards, stake, payout, outcome, message, version, created_at, updated_at, settled_at`

type roundRow struct {
	ID          string        `db:"id"`
	AccountID   string        `db:"account_id"`
	State       string        `db:"state"`
	PlayerCards string        `db:"player_cards"`
	DealerCards string        `db:"dealer_cards"`
	Stake       int64         `db:"stake"`
	Payout      int64         `db:"payout"`
	Outcome     string        `db:"outcome"`
	Message     string        `db:"message"`
	Version     int64         `db:"version"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
	SettledAt   sql.NullInt64 `db:"settled_at"`
}

func newRoundRow(r blackjack.Round) (roundRow, error) {
	player, err := encodeCards(r.Player)
	if err != nil {
		return roundRow{}, err
	}
	dealer, err := encodeCards(r.Dealer)
	if err != nil {
		return roundRow{}, err
	}
	row := roundRow{
		ID:          r.ID,
		AccountID:   r.AccountID,
		State:       string(r.State),
		PlayerCards: player,
		DealerCards: dealer,
		Stake:       r.Stake,
		Payout:      r.Payout,
		Outcome:     string(r.Outcome),
		Message:     r.Message,
		Version:     r.Version,
		CreatedAt:   toMillis(r.CreatedAt),
		UpdatedAt:   toMillis(r.UpdatedAt),
	}
	if !r.SettledAt.IsZero() {
		row.SettledAt = sql.NullInt64{Int64: toMillis(r.SettledAt), Valid: true}
	}
	return row, nil
}

func (r roundRow) round() (blackjack.Round, error) {
	player, err := decodeCards(r.PlayerCards)
	if err != nil {
		return blackjack.Round{}, fmt.Errorf("round %s player cards: %w", r.ID, err)
	}
	dealer, err := decodeCards(r.DealerCards)
	if err != nil {
		return blackjack.Round{}, fmt.Errorf("round %s dealer cards: %w", r.ID, err)
	}
	out := blackjack.Round{
		ID:        r.ID,
		AccountID: r.AccountID,
		State:     blackjack.State(r.State),
		Player:    player,
		Dealer:    dealer,
		Stake:     r.Stake,
		Payout:    r.Payout,
		Outcome:   blackjack.Outcome(r.Outcome),
		Message:   r.Message,
		Version:   r.Version,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
	if r.SettledAt.Valid {
		out.SettledAt = fromMillis(r.SettledAt.Int64)
	}
	return out, nil
}

type ledgerRow struct {
	ID        int64  `db:"id"`
	AccountID string `db:"account_id"`
	RoundID   string `db:"round_id"`
	Kind      string `db:"kind"`
	Amount    int64  `db:"amount"`
	Before    int64  `db:"balance_before"`
	After     int64  `db:"balance_after"`
	CreatedAt int64  `db:"created_at"`
}

func (r ledgerRow) entry() blackjack.LedgerEntry {
	return blackjack.LedgerEntry{
		ID:        r.ID,
		AccountID: r.AccountID,
		RoundID:   r.RoundID,
		Kind:      blackjack.LedgerKind(r.Kind),
		Amount:    r.Amount,
		Before:    r.Before,
		After:     r.After,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

// Hands are stored as JSON arrays of card codes, e.g. ["AS","0H"].
func encodeCards(cards []deck.Card) (string, error) {
	b, err := json.Marshal(deck.Codes(cards))
	if err != nil {
		return "", fmt.Errorf("encode cards: %w", err)
	}
	return string(b), nil
}

func decodeCards(s string) ([]deck.Card, error) {
	var codes []string
	if err := json.Unmarshal([]byte(s), &codes); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	cards := make([]deck.Card, 0, len(codes))
	for _, code := range codes {
		c, err := deck.ParseCode(code)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
