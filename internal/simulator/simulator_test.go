package simulator

import (
	"context"
	"testing"

	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/deck"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Rounds: 0, Stake: 10})
	require.Error(t, err)

	_, err = New(Config{Rounds: 1, Stake: 0})
	require.Error(t, err)

	_, err = New(Config{Rounds: 1, Stake: 10, Policy: "martingale"})
	require.ErrorContains(t, err, "unknown policy")

	sim, err := New(Config{Rounds: 1, Stake: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, sim.config.Players)
	assert.Equal(t, int64(1000), sim.config.StartingBalance)
	assert.Equal(t, 6, sim.config.Decks)
	assert.Equal(t, "dealer", sim.config.Policy)
}

func TestRunPlaysEveryRound(t *testing.T) {
	t.Parallel()

	sim, err := New(Config{
		Players: 4, Rounds: 25, Stake: 10, StartingBalance: 1000,
		Seed: 42, Workers: 2, Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	report, err := sim.Run(context.Background())
	require.NoError(t, err)

	// 25 losses of 10 cannot exhaust 1000, so nothing is skipped.
	assert.Equal(t, 100, report.Stats.Rounds)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, int64(1000), report.Stats.Staked)
	assert.Len(t, report.Standings, 4)
	assert.Zero(t, report.Stats.Count(blackjack.OutcomeSurrendered))

	var games int64
	for _, row := range report.Standings {
		games += row.GamesPlayed
	}
	assert.Equal(t, int64(100), games)
}

func TestRunIsReproducible(t *testing.T) {
	t.Parallel()

	run := func(workers int) *Report {
		sim, err := New(Config{
			Players: 3, Rounds: 30, Stake: 5, Seed: 7, Workers: workers, Policy: "surrender",
		})
		require.NoError(t, err)
		report, err := sim.Run(context.Background())
		require.NoError(t, err)
		return report
	}

	a := run(1)
	b := run(3)
	assert.Equal(t, a.Stats.Values, b.Stats.Values)
	assert.Equal(t, a.Stats.Paid, b.Stats.Paid)
}

func TestRunSkipsWhenStakeUncovered(t *testing.T) {
	t.Parallel()

	sim, err := New(Config{Players: 2, Rounds: 3, Stake: 50, StartingBalance: 20})
	require.NoError(t, err)

	report, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Stats.Rounds)
	assert.Equal(t, 6, report.Skipped)
	for _, row := range report.Standings {
		assert.Equal(t, int64(20), row.Balance)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim, err := New(Config{Players: 2, Rounds: 5, Stake: 10})
	require.NoError(t, err)
	_, err = sim.Run(ctx)
	require.Error(t, err)
}

func TestPolicies(t *testing.T) {
	t.Parallel()

	ten := deck.MustParseCodes("TS")[0]
	six := deck.MustParseCodes("6H")[0]
	ace := deck.MustParseCodes("AC")[0]

	tests := []struct {
		name   string
		policy Policy
		hand   string
		upcard deck.Card
		want   Action
	}{
		{"dealer hits 16", DealerPolicy, "TH 6D", six, Hit},
		{"dealer stands 17", DealerPolicy, "TH 7D", ten, Stand},
		{"dealer stands soft 17", DealerPolicy, "AH 6D", ten, Stand},
		{"cautious stands 12", CautiousPolicy, "TH 2D", ten, Stand},
		{"cautious hits 11", CautiousPolicy, "5H 6D", ten, Hit},
		{"surrender 16 vs ten", SurrenderPolicy, "TH 6D", ten, Surrender},
		{"surrender 15 vs ace", SurrenderPolicy, "9H 6D", ace, Surrender},
		{"no surrender vs six", SurrenderPolicy, "TH 6D", six, Hit},
		{"no surrender three cards", SurrenderPolicy, "4H 6D 6C", ten, Hit},
		{"no surrender soft 16", SurrenderPolicy, "AH 5D", ten, Hit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy(deck.MustParseCodes(tt.hand), tt.upcard))
		})
	}
}

func TestPolicyByName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"cautious", "dealer", "surrender"}, PolicyNames())
	p, err := PolicyByName("Dealer")
	require.NoError(t, err)
	assert.Equal(t, Hit, p(deck.MustParseCodes("TH 2D"), deck.Card{}))
	assert.Equal(t, "surrender", Surrender.String())
}
