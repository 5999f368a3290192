package blackjack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/lock"
	"github.com/lox/blackjack/internal/metrics"
	"github.com/lox/blackjack/internal/roundid"
	"github.com/lox/blackjack/internal/store"
	"github.com/rs/zerolog"
)

// Result is the snapshot returned by every command.
type Result struct {
	Round   Round
	Account Account
}

// Engine owns the round lifecycle: start, hit, stand and surrender.
type Engine struct {
	store    Store
	draw     DrawSource
	locks    Locker
	clock    quartz.Clock
	logger   zerolog.Logger
	notifier Notifier
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker replaces the default in-process account lock.
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locks = l }
}

// WithClock sets the clock used for round and ledger timestamps.
func WithClock(c quartz.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l.With().Str("component", "engine").Logger() }
}

// WithNotifier registers a receiver for settled rounds.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithIDGenerator overrides round id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an engine over s, dealing from d.
func NewEngine(s Store, d DrawSource, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		draw:   d,
		locks:  lock.NewLocal(),
		clock:  quartz.NewReal(),
		logger: zerolog.Nop(),
		newID:  roundid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a round for accountID, deducting stake and dealing two cards
// each to player and dealer (player, dealer, player, dealer).
func (e *Engine) Start(ctx context.Context, accountID string, stake int64) (res Result, err error) {
	started := time.Now()
	defer func() { metrics.RecordCommand("start", ErrorKind(err), started) }()

	if stake <= 0 {
		return Result{}, ErrInvalidStake
	}

	unlock, err := e.locks.Lock(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("lock account %s: %w", accountID, err)
	}
	defer unlock()

	var acct Account
	err = e.store.View(ctx, func(tx Tx) error {
		a, err := tx.Account(ctx, accountID)
		if err != nil {
			return accountErr(err)
		}
		_, found, err := tx.ActiveRound(ctx, accountID)
		if err != nil {
			return fmt.Errorf("find active round: %w", err)
		}
		if found {
			return ErrRoundInProgress
		}
		acct = a
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if stake > acct.Balance {
		return Result{}, fmt.Errorf("%w: stake %d exceeds balance %d", ErrInsufficientFunds, stake, acct.Balance)
	}

	e.logger.Debug().Str("account", accountID).Int64("stake", stake).Msg("dealing round")

	cards, err := e.drawCards(ctx, 4)
	if err != nil {
		return Result{}, err
	}

	now := e.clock.Now().UTC()
	round := Round{
		ID:        e.newID(),
		AccountID: accountID,
		State:     StateActive,
		Player:    []deck.Card{cards[0], cards[2]},
		Dealer:    []deck.Card{cards[1], cards[3]},
		Stake:     stake,
		Message:   "Round started",
		CreatedAt: now,
		UpdatedAt: now,
	}

	next := acct
	next.Balance -= stake
	next.UpdatedAt = now
	entry := LedgerEntry{
		AccountID: accountID,
		RoundID:   round.ID,
		Kind:      LedgerBet,
		Amount:    stake,
		Before:    acct.Balance,
		After:     next.Balance,
		CreatedAt: now,
	}

	err = e.store.Update(ctx, func(tx Tx) error {
		if err := tx.SaveAccount(ctx, &next); err != nil {
			return fmt.Errorf("debit stake: %w", err)
		}
		if err := tx.CreateRound(ctx, &round); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrRoundInProgress
			}
			return fmt.Errorf("create round: %w", err)
		}
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	metrics.RecordStake(stake)
	e.logger.Info().
		Str("round", round.ID).
		Str("account", accountID).
		Int64("stake", stake).
		Int("player_score", round.PlayerScore()).
		Int64("balance", next.Balance).
		Msg("round started")

	return Result{Round: round.Clone(), Account: next}, nil
}

// Hit deals one card to the player. A bust settles the round with no payout.
func (e *Engine) Hit(ctx context.Context, accountID, roundID string) (Result, error) {
	return e.command(ctx, "hit", accountID, roundID, func(ctx context.Context, r *Round) (*settlement, error) {
		cards, err := e.drawCards(ctx, 1)
		if err != nil {
			return nil, err
		}
		r.Player = append(r.Player, cards[0])
		if IsBust(r.Player) {
			return &settlement{
				outcome: OutcomePlayerBust,
				payout:  0,
				message: "Bust! Dealer wins",
			}, nil
		}
		return nil, nil
	})
}

// Stand plays out the dealer hand and settles the round.
func (e *Engine) Stand(ctx context.Context, accountID, roundID string) (Result, error) {
	return e.command(ctx, "stand", accountID, roundID, func(ctx context.Context, r *Round) (*settlement, error) {
		for DealerShouldDraw(r.Dealer) {
			cards, err := e.drawCards(ctx, 1)
			if err != nil {
				return nil, err
			}
			r.Dealer = append(r.Dealer, cards[0])
		}
		s := compare(r.PlayerScore(), r.DealerScore(), r.Stake)
		return &s, nil
	})
}

// Surrender forfeits the round and refunds half the stake, rounded down.
func (e *Engine) Surrender(ctx context.Context, accountID, roundID string) (Result, error) {
	return e.command(ctx, "surrender", accountID, roundID, func(ctx context.Context, r *Round) (*settlement, error) {
		return &settlement{
			outcome: OutcomeSurrendered,
			payout:  r.Stake / 2,
			message: "Player surrendered",
		}, nil
	})
}

// Get returns a round owned by accountID.
func (e *Engine) Get(ctx context.Context, accountID, roundID string) (Round, error) {
	var round Round
	err := e.store.View(ctx, func(tx Tx) error {
		r, err := ownedRound(ctx, tx, accountID, roundID)
		round = r
		return err
	})
	return round, err
}

// History returns the account's most recent rounds.
func (e *Engine) History(ctx context.Context, accountID string, limit int) ([]Round, error) {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	return e.store.History(ctx, accountID, limit)
}

// Leaderboard returns the top accounts by balance.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	if limit <= 0 {
		limit = store.DefaultLeaderboardLimit
	}
	return e.store.Leaderboard(ctx, limit)
}

// settlement is the terminal decision made by a command step.
type settlement struct {
	outcome Outcome
	payout  int64
	message string
}

// step mutates a private copy of an active round. Returning a settlement
// ends the round; returning an error discards every change.
type step func(ctx context.Context, r *Round) (*settlement, error)

func (e *Engine) command(ctx context.Context, name, accountID, roundID string, fn step) (res Result, err error) {
	started := time.Now()
	defer func() { metrics.RecordCommand(name, ErrorKind(err), started) }()

	unlock, err := e.locks.Lock(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("lock account %s: %w", accountID, err)
	}
	defer unlock()

	var (
		round Round
		acct  Account
	)
	err = e.store.View(ctx, func(tx Tx) error {
		r, err := ownedRound(ctx, tx, accountID, roundID)
		if err != nil {
			return err
		}
		if !r.Active() {
			return ErrRoundNotActive
		}
		a, err := tx.Account(ctx, accountID)
		if err != nil {
			return accountErr(err)
		}
		round, acct = r, a
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	e.logger.Debug().Str("round", roundID).Str("account", accountID).Str("command", name).Msg("applying command")

	next := round.Clone()
	s, err := fn(ctx, &next)
	if err != nil {
		return Result{}, err
	}

	now := e.clock.Now().UTC()
	next.UpdatedAt = now
	nextAcct := acct
	var entry LedgerEntry
	if s != nil {
		entry = settle(&next, &nextAcct, *s, now)
	}

	err = e.store.Update(ctx, func(tx Tx) error {
		if err := tx.SaveRound(ctx, &next); err != nil {
			return fmt.Errorf("save round: %w", err)
		}
		if s == nil {
			return nil
		}
		if err := tx.SaveAccount(ctx, &nextAcct); err != nil {
			return fmt.Errorf("credit payout: %w", err)
		}
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if s != nil {
		metrics.RecordSettlement(string(next.Outcome), next.Payout)
		e.logger.Info().
			Str("round", next.ID).
			Str("account", accountID).
			Str("outcome", string(next.Outcome)).
			Int("player_score", next.PlayerScore()).
			Int("dealer_score", next.DealerScore()).
			Int64("stake", next.Stake).
			Int64("payout", next.Payout).
			Int64("balance", nextAcct.Balance).
			Msg("round settled")
		if e.notifier != nil {
			e.notifier.RoundSettled(next.Clone(), nextAcct)
		}
	}

	return Result{Round: next.Clone(), Account: nextAcct}, nil
}

// settle fixes the outcome on r and applies the payout and counters to a.
// wins and highest win only move when the payout returns more than the stake.
func settle(r *Round, a *Account, s settlement, now time.Time) LedgerEntry {
	before := a.Balance

	r.State = StateSettled
	r.Outcome = s.outcome
	r.Payout = s.payout
	r.Message = s.message
	r.SettledAt = now

	a.Balance += s.payout
	a.UpdatedAt = now
	if s.outcome.CountsAsGame() {
		a.GamesPlayed++
	}
	if s.payout > r.Stake {
		a.Wins++
		if s.payout > a.HighestWin {
			a.HighestWin = s.payout
		}
	}

	return LedgerEntry{
		AccountID: a.ID,
		RoundID:   r.ID,
		Kind:      LedgerSettle,
		Amount:    s.payout,
		Before:    before,
		After:     a.Balance,
		CreatedAt: now,
	}
}

// compare settles a stood hand against the finished dealer hand.
func compare(player, dealer int, stake int64) settlement {
	switch {
	case dealer > Blackjack:
		return settlement{outcome: OutcomePlayerWin, payout: 2 * stake, message: "Dealer busts! Player wins"}
	case dealer > player:
		return settlement{outcome: OutcomeDealerWin, payout: 0, message: "Dealer wins"}
	case dealer < player:
		return settlement{outcome: OutcomePlayerWin, payout: 2 * stake, message: "Player wins"}
	default:
		return settlement{outcome: OutcomePush, payout: stake, message: "Push"}
	}
}

func (e *Engine) drawCards(ctx context.Context, n int) ([]deck.Card, error) {
	cards, err := e.draw.Draw(ctx, n)
	if err != nil {
		if errors.Is(err, ErrDrawUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDrawUnavailable, err)
	}
	if len(cards) != n {
		return nil, fmt.Errorf("%w: wanted %d cards, got %d", ErrDrawUnavailable, n, len(cards))
	}
	return cards, nil
}

func ownedRound(ctx context.Context, tx Tx, accountID, roundID string) (Round, error) {
	r, err := tx.Round(ctx, roundID)
	if errors.Is(err, store.ErrNotFound) {
		return Round{}, ErrRoundNotFound
	}
	if err != nil {
		return Round{}, fmt.Errorf("load round: %w", err)
	}
	// Other players' rounds are indistinguishable from missing ones.
	if r.AccountID != accountID {
		return Round{}, ErrRoundNotFound
	}
	return r, nil
}

func accountErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrAccountNotFound
	}
	return fmt.Errorf("load account: %w", err)
}
