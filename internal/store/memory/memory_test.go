package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, s *Store, id, username string, balance int64) blackjack.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), blackjack.Account{ID: id, Username: username, Balance: balance}, []byte("hash-"+id))
	require.NoError(t, err)
	return a
}

func activeRound(id, accountID string) blackjack.Round {
	return blackjack.Round{
		ID:        id,
		AccountID: accountID,
		State:     blackjack.StateActive,
		Player:    deck.MustParseCodes("KS QH"),
		Dealer:    deck.MustParseCodes("9C 7D"),
		Stake:     10,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAccountUniqueUsername(t *testing.T) {
	s := New()
	a := seedAccount(t, s, "a1", "Alice", 1000)
	assert.Equal(t, int64(1), a.Version)
	assert.False(t, a.CreatedAt.IsZero())

	_, err := s.CreateAccount(context.Background(), blackjack.Account{ID: "a2", Username: "alice"}, nil)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateAccount(context.Background(), blackjack.Account{ID: "a1", Username: "other"}, nil)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, hash, err := s.Credentials(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, []byte("hash-a1"), hash)

	_, _, err = s.Credentials(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateCommitsAllOrNothing(t *testing.T) {
	s := New()
	seedAccount(t, s, "a1", "alice", 1000)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx blackjack.Tx) error {
		a, err := tx.Account(ctx, "a1")
		require.NoError(t, err)
		a.Balance = 1
		require.NoError(t, tx.SaveAccount(ctx, &a))
		r := activeRound("r1", "a1")
		require.NoError(t, tx.CreateRound(ctx, &r))

		// Reads inside the tx see staged writes.
		staged, err := tx.Account(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), staged.Balance)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, err := s.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), a.Balance)
	assert.Equal(t, int64(1), a.Version)

	err = s.View(ctx, func(tx blackjack.Tx) error {
		_, err := tx.Round(ctx, "r1")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveAccountVersionConflict(t *testing.T) {
	s := New()
	stale := seedAccount(t, s, "a1", "alice", 1000)
	ctx := context.Background()

	fresh := stale
	require.NoError(t, s.Update(ctx, func(tx blackjack.Tx) error {
		return tx.SaveAccount(ctx, &fresh)
	}))
	assert.Equal(t, int64(2), fresh.Version)

	err := s.Update(ctx, func(tx blackjack.Tx) error {
		return tx.SaveAccount(ctx, &stale)
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestOneActiveRoundPerAccount(t *testing.T) {
	s := New()
	seedAccount(t, s, "a1", "alice", 1000)
	seedAccount(t, s, "a2", "bob", 1000)
	ctx := context.Background()

	create := func(r blackjack.Round) error {
		return s.Update(ctx, func(tx blackjack.Tx) error { return tx.CreateRound(ctx, &r) })
	}

	require.NoError(t, create(activeRound("r1", "a1")))
	assert.ErrorIs(t, create(activeRound("r2", "a1")), store.ErrConflict)
	assert.NoError(t, create(activeRound("r3", "a2")))
	assert.ErrorIs(t, create(activeRound("r1", "a2")), store.ErrConflict, "duplicate id")

	// Settling r1 frees the account.
	require.NoError(t, s.Update(ctx, func(tx blackjack.Tx) error {
		r, err := tx.Round(ctx, "r1")
		if err != nil {
			return err
		}
		r.State = blackjack.StateSettled
		if err := tx.SaveRound(ctx, &r); err != nil {
			return err
		}
		_, found, err := tx.ActiveRound(ctx, "a1")
		assert.False(t, found)
		return err
	}))
	assert.NoError(t, create(activeRound("r4", "a1")))
}

func TestRoundReadsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := activeRound("r1", "a1")
	require.NoError(t, s.Update(ctx, func(tx blackjack.Tx) error { return tx.CreateRound(ctx, &r) }))

	r.Player[0] = deck.MustParseCodes("2C")[0]

	require.NoError(t, s.View(ctx, func(tx blackjack.Tx) error {
		got, err := tx.Round(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"KS", "QH"}, deck.Codes(got.Player))
		got.Player = append(got.Player, deck.MustParseCodes("3C")...)
		return nil
	}))

	history, err := s.History(ctx, "a1", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Len(t, history[0].Player, 2)
}

func TestAppendLedgerRejectsDuplicateKind(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry := blackjack.LedgerEntry{AccountID: "a1", RoundID: "r1", Kind: blackjack.LedgerSettle, Amount: 20}
	require.NoError(t, s.Update(ctx, func(tx blackjack.Tx) error { return tx.AppendLedger(ctx, entry) }))

	err := s.Update(ctx, func(tx blackjack.Tx) error { return tx.AppendLedger(ctx, entry) })
	assert.ErrorIs(t, err, store.ErrConflict)

	err = s.Update(ctx, func(tx blackjack.Tx) error {
		bet := entry
		bet.Kind = blackjack.LedgerBet
		if err := tx.AppendLedger(ctx, bet); err != nil {
			return err
		}
		return tx.AppendLedger(ctx, bet)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	ledger, err := s.Ledger(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(1), ledger[0].ID)
}

func TestHistoryNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3", "r4"} {
		r := activeRound(id, "a1")
		r.State = blackjack.StateSettled
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Update(ctx, func(tx blackjack.Tx) error { return tx.CreateRound(ctx, &r) }))
	}
	other := activeRound("x1", "a2")
	require.NoError(t, s.Update(ctx, func(tx blackjack.Tx) error { return tx.CreateRound(ctx, &other) }))

	history, err := s.History(ctx, "a1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "r4", history[0].ID)
	assert.Equal(t, "r3", history[1].ID)
	assert.Equal(t, "r2", history[2].ID)
}

func TestLeaderboardSort(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccount(t, s, "a1", "carol", 1200)
	seedAccount(t, s, "a2", "bob", 1500)
	seedAccount(t, s, "a3", "alice", 1500)
	seedAccount(t, s, "a4", "dave", 1500)

	require.NoError(t, s.Update(ctx, func(tx blackjack.Tx) error {
		a, err := tx.Account(ctx, "a4")
		if err != nil {
			return err
		}
		a.Wins = 3
		return tx.SaveAccount(ctx, &a)
	}))

	board, err := s.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 4)
	var names []string
	for _, row := range board {
		names = append(names, row.Username)
	}
	assert.Equal(t, []string{"dave", "alice", "bob", "carol"}, names)
}

func TestUpdateHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Update(ctx, func(tx blackjack.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
