package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/config"
	"github.com/lox/blackjack/internal/fileutil"
	"github.com/lox/blackjack/internal/simulator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	seed := int64(99)
	cmd := ServeCmd{
		Addr:      ":9000",
		Storage:   "memory",
		Deck:      "remote",
		DeckURL:   "http://deck.test",
		Seed:      &seed,
		JWTSecret: "s3cret",
		Redis:     "localhost:6379",
	}
	cmd.apply(cfg)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, config.StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "blackjack.db", cfg.Storage.Path)
	assert.Equal(t, config.DeckRemote, cfg.Deck.Source)
	assert.Equal(t, "http://deck.test", cfg.Deck.RemoteURL)
	assert.Equal(t, int64(99), cfg.Deck.Seed)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.True(t, cfg.RedisEnabled())
	require.NoError(t, cfg.Validate())
}

func TestServeFlagsKeepConfigWhenUnset(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	(&ServeCmd{}).apply(cfg)
	assert.Equal(t, config.Default(), cfg)
}

func TestOpenStoreMemory(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.Driver = config.StorageMemory
	st, closeFn, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.NotNil(t, st)
}

func TestOpenStoreSQLite(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "bj.db")
	st, closeFn, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()

	board, err := st.Leaderboard(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, board)
}

func TestDrawSourceSelection(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cmd := &ServeCmd{}

	src, err := cmd.drawSource(cfg, zerolog.Nop())
	require.NoError(t, err)
	cards, err := src.Draw(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, cards, 4)

	cfg.Deck.Source = "carrier-pigeon"
	_, err = cmd.drawSource(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRenderLeaderboard(t *testing.T) {
	t.Parallel()

	assert.Contains(t, renderLeaderboard(nil), "No accounts yet")

	out := renderLeaderboard([]blackjack.Standing{
		{Username: "alice", Balance: 1500, Wins: 3, GamesPlayed: 5, HighestWin: 400},
		{Username: "bob", Balance: 900},
	})
	assert.Contains(t, out, "Leaderboard")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "1500")
	assert.Contains(t, out, "bob")
}

func TestStandingRecordsRank(t *testing.T) {
	t.Parallel()

	recs := standingRecords([]blackjack.Standing{{Username: "a"}, {Username: "b"}})
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].Rank)
	assert.Equal(t, 2, recs[1].Rank)
}

func TestSimulationReportOutput(t *testing.T) {
	t.Parallel()

	sim, err := simulator.New(simulator.Config{Players: 2, Rounds: 10, Stake: 10, Seed: 3})
	require.NoError(t, err)
	report, err := sim.Run(context.Background())
	require.NoError(t, err)

	text := renderReport(report)
	assert.Contains(t, text, "dealer policy, seed 3")
	assert.Contains(t, text, "player_win")
	assert.Contains(t, text, "Return to player")

	rec := newReportRecord(report)
	total := 0
	for _, n := range rec.Outcomes {
		total += n
	}
	assert.Equal(t, 20, total)
	assert.Len(t, rec.Standings, 2)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, fileutil.WriteJSON(path, rec))

	var decoded reportRecord
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, rec.Rounds, decoded.Rounds)
}
