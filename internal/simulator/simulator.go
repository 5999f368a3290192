// Package simulator plays many rounds through the engine against a local
// shoe to measure how a player policy fares against the house rule.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/draw"
	"github.com/lox/blackjack/internal/lock"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/roundid"
	"github.com/lox/blackjack/internal/statistics"
	"github.com/lox/blackjack/internal/store/memory"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for running simulations
type Config struct {
	Players         int
	Rounds          int // per player
	Stake           int64
	StartingBalance int64
	Decks           int
	Seed            int64
	Workers         int
	Policy          string
	Timeout         time.Duration // per round
	Logger          zerolog.Logger
}

// Report is the outcome of a simulation run.
type Report struct {
	Policy    string
	Seed      int64
	Stats     *statistics.Statistics
	Standings []blackjack.Standing
	// Skipped counts rounds not played because the player could not cover
	// the stake.
	Skipped int
	Elapsed time.Duration
}

// Simulator runs blackjack round simulations
type Simulator struct {
	config Config
	policy Policy
}

// New creates a simulator, filling unset fields with defaults.
func New(config Config) (*Simulator, error) {
	if config.Players <= 0 {
		config.Players = 1
	}
	if config.Rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", config.Rounds)
	}
	if config.Stake <= 0 {
		return nil, fmt.Errorf("stake must be positive, got %d", config.Stake)
	}
	if config.StartingBalance <= 0 {
		config.StartingBalance = 1000
	}
	if config.Decks <= 0 {
		config.Decks = 6
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Policy == "" {
		config.Policy = "dealer"
	}
	policy, err := PolicyByName(config.Policy)
	if err != nil {
		return nil, err
	}
	return &Simulator{config: config, policy: policy}, nil
}

// Run plays every player's rounds and returns the aggregated report. Each
// player deals from its own shoe derived from the seed, so a run is
// reproducible regardless of worker scheduling.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	st := memory.New()
	locks := lock.NewLocal()

	ids := make([]string, s.config.Players)
	for i := range ids {
		acct, err := st.CreateAccount(ctx, blackjack.Account{
			ID:        roundid.New(),
			Username:  fmt.Sprintf("sim-%03d", i+1),
			Balance:   s.config.StartingBalance,
			CreatedAt: started.UTC(),
			UpdatedAt: started.UTC(),
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("create player %d: %w", i+1, err)
		}
		ids[i] = acct.ID
	}

	perPlayer := make([]*statistics.Statistics, s.config.Players)
	skipped := make([]int, s.config.Players)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, id := range ids {
		g.Go(func() error {
			engine := blackjack.NewEngine(st,
				draw.NewShoeSourceFrom(s.config.Decks, randutil.Derive(s.config.Seed, i)),
				blackjack.WithLocker(locks),
				blackjack.WithLogger(s.config.Logger),
			)
			stats, n, err := s.playPlayer(gctx, engine, id)
			if err != nil {
				return fmt.Errorf("player %d: %w", i+1, err)
			}
			perPlayer[i] = stats
			skipped[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Policy: s.config.Policy,
		Seed:   s.config.Seed,
		Stats:  &statistics.Statistics{},
	}
	for i := range perPlayer {
		report.Stats.Merge(perPlayer[i])
		report.Skipped += skipped[i]
	}
	if report.Stats.Rounds > 0 {
		if err := report.Stats.Validate(); err != nil {
			return nil, fmt.Errorf("statistics validation failed: %w", err)
		}
	}

	standings, err := st.Leaderboard(ctx, s.config.Players)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	report.Standings = standings

	var total int64
	for _, row := range standings {
		total += row.Balance
	}
	want := int64(s.config.Players)*s.config.StartingBalance + report.Stats.Paid - report.Stats.Staked
	if total != want {
		return nil, fmt.Errorf("balances total %d, expected %d", total, want)
	}

	report.Elapsed = time.Since(started)
	s.config.Logger.Info().
		Int("rounds", report.Stats.Rounds).
		Int("skipped", report.Skipped).
		Dur("elapsed", report.Elapsed).
		Msg("Simulation finished")
	return report, nil
}

func (s *Simulator) playPlayer(ctx context.Context, engine *blackjack.Engine, accountID string) (*statistics.Statistics, int, error) {
	stats := &statistics.Statistics{}
	for n := 0; n < s.config.Rounds; n++ {
		round, err := s.playRound(ctx, engine, accountID)
		if errors.Is(err, blackjack.ErrInsufficientFunds) {
			s.config.Logger.Debug().Str("account", accountID).Int("round", n+1).Msg("Player cannot cover the stake")
			return stats, s.config.Rounds - n, nil
		}
		if err != nil {
			return nil, 0, err
		}
		stats.Add(statistics.FromRound(round))
	}
	return stats, 0, nil
}

// playRound plays one round to settlement with a timeout guarding against
// a wedged draw source.
func (s *Simulator) playRound(ctx context.Context, engine *blackjack.Engine, accountID string) (blackjack.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	res, err := engine.Start(ctx, accountID, s.config.Stake)
	if err != nil {
		return blackjack.Round{}, err
	}
	round := res.Round
	for round.Active() {
		switch s.policy(round.Player, round.Dealer[0]) {
		case Hit:
			res, err = engine.Hit(ctx, accountID, round.ID)
		case Surrender:
			res, err = engine.Surrender(ctx, accountID, round.ID)
		default:
			res, err = engine.Stand(ctx, accountID, round.ID)
		}
		if err != nil {
			return blackjack.Round{}, fmt.Errorf("round %s: %w", round.ID, err)
		}
		round = res.Round
	}
	return round, nil
}
