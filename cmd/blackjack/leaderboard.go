package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/fileutil"
	"github.com/lox/blackjack/internal/store/sqlite"
)

// LeaderboardCmd prints the top accounts from the sqlite store.
type LeaderboardCmd struct {
	DB    string `name:"db" help:"SQLite database path" type:"path" env:"BLACKJACK_DB"`
	Limit int    `help:"Number of rows" default:"10"`
	Out   string `help:"Also write the rows as JSON to this file" type:"path"`
}

type standingRecord struct {
	Rank        int    `json:"rank"`
	Username    string `json:"username"`
	Balance     int64  `json:"balance"`
	Wins        int64  `json:"wins"`
	GamesPlayed int64  `json:"games_played"`
	HighestWin  int64  `json:"highest_win"`
}

func standingRecords(board []blackjack.Standing) []standingRecord {
	out := make([]standingRecord, 0, len(board))
	for i, row := range board {
		out = append(out, standingRecord{
			Rank:        i + 1,
			Username:    row.Username,
			Balance:     row.Balance,
			Wins:        row.Wins,
			GamesPlayed: row.GamesPlayed,
			HighestWin:  row.HighestWin,
		})
	}
	return out
}

func (c *LeaderboardCmd) Run(globals *Globals) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	path := cfg.Storage.Path
	if c.DB != "" {
		path = c.DB
	}
	if c.Limit < 1 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}

	ctx := context.Background()
	st, err := sqlite.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	board, err := st.Leaderboard(ctx, c.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, renderLeaderboard(board))

	if c.Out != "" {
		if err := fileutil.WriteJSON(c.Out, standingRecords(board)); err != nil {
			return err
		}
		logger.Info().Str("file", c.Out).Int("rows", len(board)).Msg("Wrote leaderboard")
	}
	return nil
}
