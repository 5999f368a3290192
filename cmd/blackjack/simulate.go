package main

import (
	"fmt"
	"os"
	"time"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/fileutil"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/simulator"
)

// SimulateCmd plays rounds through the engine against an in-memory store.
type SimulateCmd struct {
	Players int           `help:"Number of simulated accounts" default:"4"`
	Rounds  int           `help:"Rounds per account" default:"1000"`
	Stake   int64         `help:"Stake per round" default:"10"`
	Balance int64         `help:"Starting balance per account" default:"1000"`
	Decks   int           `help:"Decks per shoe" default:"6"`
	Policy  string        `help:"Player policy (dealer, cautious, surrender)" default:"dealer"`
	Seed    *int64        `help:"Seed for reproducible shoes (optional)"`
	Workers int           `help:"Concurrent players" default:"4"`
	Timeout time.Duration `help:"Per-round timeout" default:"5s"`
	Out     string        `help:"Also write the summary as JSON to this file" type:"path"`
}

type reportRecord struct {
	Policy         string           `json:"policy"`
	Seed           int64            `json:"seed"`
	Rounds         int              `json:"rounds"`
	Skipped        int              `json:"skipped"`
	Staked         int64            `json:"staked"`
	Paid           int64            `json:"paid"`
	ReturnToPlayer float64          `json:"return_to_player"`
	MeanNet        float64          `json:"mean_net"`
	StdDev         float64          `json:"std_dev"`
	Outcomes       map[string]int   `json:"outcomes"`
	Standings      []standingRecord `json:"standings"`
}

func newReportRecord(r *simulator.Report) reportRecord {
	out := reportRecord{
		Policy:         r.Policy,
		Seed:           r.Seed,
		Rounds:         r.Stats.Rounds,
		Skipped:        r.Skipped,
		Staked:         r.Stats.Staked,
		Paid:           r.Stats.Paid,
		ReturnToPlayer: r.Stats.ReturnToPlayer(),
		MeanNet:        r.Stats.Mean(),
		StdDev:         r.Stats.StdDev(),
		Outcomes:       make(map[string]int, len(outcomeOrder)),
		Standings:      standingRecords(r.Standings),
	}
	for _, o := range outcomeOrder {
		out.Outcomes[string(o)] = r.Stats.Count(o)
	}
	return out
}

func (c *SimulateCmd) Run(globals *Globals) error {
	_, logger, err := globals.load()
	if err != nil {
		return err
	}
	seed, _ := randutil.FromOptional(c.Seed)

	sim, err := simulator.New(simulator.Config{
		Players:         c.Players,
		Rounds:          c.Rounds,
		Stake:           c.Stake,
		StartingBalance: c.Balance,
		Decks:           c.Decks,
		Seed:            seed,
		Workers:         c.Workers,
		Policy:          c.Policy,
		Timeout:         c.Timeout,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := shared.SetupSignalHandler(logger)
	defer cancel()

	logger.Info().
		Int("players", c.Players).
		Int("rounds", c.Rounds).
		Str("policy", c.Policy).
		Int64("seed", seed).
		Msg("Starting simulation")

	report, err := sim.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, renderReport(report))

	if c.Out != "" {
		if err := fileutil.WriteJSON(c.Out, newReportRecord(report)); err != nil {
			return err
		}
		logger.Info().Str("file", c.Out).Msg("Wrote simulation report")
	}
	return nil
}
