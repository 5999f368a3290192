// Package statistics aggregates settled rounds into outcome counts and
// per-round return figures.
package statistics

import (
	"fmt"
	"math"
	"slices"

	"github.com/lox/blackjack/internal/blackjack"
)

// RoundResult is the outcome of one settled round from the player's side.
type RoundResult struct {
	Stake       int64
	Payout      int64
	Outcome     blackjack.Outcome
	PlayerScore int
	DealerScore int
	PlayerCards int
	DealerCards int
}

// Net is the change in balance the round caused.
func (r RoundResult) Net() int64 {
	return r.Payout - r.Stake
}

// FromRound converts a settled round.
func FromRound(r blackjack.Round) RoundResult {
	return RoundResult{
		Stake:       r.Stake,
		Payout:      r.Payout,
		Outcome:     r.Outcome,
		PlayerScore: r.PlayerScore(),
		DealerScore: r.DealerScore(),
		PlayerCards: len(r.Player),
		DealerCards: len(r.Dealer),
	}
}

// OutcomeStats tracks rounds that ended with one outcome.
type OutcomeStats struct {
	Rounds int
	Net    int64
}

// Statistics accumulates round results.
type Statistics struct {
	Rounds  int
	Staked  int64
	Paid    int64
	SumNet  float64
	SumNet2 float64 // sum of squares for variance
	Values  []float64

	Outcomes map[blackjack.Outcome]*OutcomeStats

	// Naturals counts two-card 21s dealt to the player.
	Naturals    int
	DealerBusts int
	MaxPayout   int64
}

// Add incorporates one round.
func (s *Statistics) Add(r RoundResult) {
	if s.Outcomes == nil {
		s.Outcomes = make(map[blackjack.Outcome]*OutcomeStats)
	}
	net := float64(r.Net())
	s.Rounds++
	s.Staked += r.Stake
	s.Paid += r.Payout
	s.SumNet += net
	s.SumNet2 += net * net
	s.Values = append(s.Values, net)

	o := s.Outcomes[r.Outcome]
	if o == nil {
		o = &OutcomeStats{}
		s.Outcomes[r.Outcome] = o
	}
	o.Rounds++
	o.Net += r.Net()

	if r.PlayerCards == 2 && r.PlayerScore == 21 {
		s.Naturals++
	}
	if r.Outcome == blackjack.OutcomePlayerWin && r.DealerScore > 21 {
		s.DealerBusts++
	}
	if r.Payout > s.MaxPayout {
		s.MaxPayout = r.Payout
	}
}

// Merge folds other into s.
func (s *Statistics) Merge(other *Statistics) {
	if other == nil {
		return
	}
	if s.Outcomes == nil {
		s.Outcomes = make(map[blackjack.Outcome]*OutcomeStats)
	}
	s.Rounds += other.Rounds
	s.Staked += other.Staked
	s.Paid += other.Paid
	s.SumNet += other.SumNet
	s.SumNet2 += other.SumNet2
	s.Values = append(s.Values, other.Values...)
	for k, v := range other.Outcomes {
		o := s.Outcomes[k]
		if o == nil {
			o = &OutcomeStats{}
			s.Outcomes[k] = o
		}
		o.Rounds += v.Rounds
		o.Net += v.Net
	}
	s.Naturals += other.Naturals
	s.DealerBusts += other.DealerBusts
	s.MaxPayout = max(s.MaxPayout, other.MaxPayout)
}

// Count returns how many rounds ended with outcome o.
func (s *Statistics) Count(o blackjack.Outcome) int {
	if os, ok := s.Outcomes[o]; ok {
		return os.Rounds
	}
	return 0
}

// Rate returns the share of rounds that ended with outcome o.
func (s *Statistics) Rate(o blackjack.Outcome) float64 {
	if s.Rounds == 0 {
		return 0
	}
	return float64(s.Count(o)) / float64(s.Rounds)
}

// Mean returns the average net per round.
func (s *Statistics) Mean() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.SumNet / float64(s.Rounds)
}

// ReturnToPlayer is total paid over total staked.
func (s *Statistics) ReturnToPlayer() float64 {
	if s.Staked == 0 {
		return 0
	}
	return float64(s.Paid) / float64(s.Staked)
}

// Variance returns the sample variance of per-round net.
func (s *Statistics) Variance() float64 {
	if s.Rounds < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumNet2 - float64(s.Rounds)*mean*mean) / float64(s.Rounds-1)
}

// StdDev returns the sample standard deviation.
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean.
func (s *Statistics) StdError() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Rounds))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean.
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// Median returns the median per-round net.
func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the interpolated value at p in [0, 1].
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := slices.Clone(s.Values)
	slices.Sort(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Validate checks that the aggregates agree with each other.
func (s *Statistics) Validate() error {
	if s.Rounds <= 0 {
		return fmt.Errorf("invalid round count: %d", s.Rounds)
	}
	if len(s.Values) != s.Rounds {
		return fmt.Errorf("values length (%d) does not match round count (%d)", len(s.Values), s.Rounds)
	}
	var rounds int
	var net int64
	for outcome, o := range s.Outcomes {
		if outcome == blackjack.OutcomeNone {
			return fmt.Errorf("%d rounds recorded without an outcome", o.Rounds)
		}
		rounds += o.Rounds
		net += o.Net
	}
	if rounds != s.Rounds {
		return fmt.Errorf("outcome rounds (%d) do not match round count (%d)", rounds, s.Rounds)
	}
	if net != s.Paid-s.Staked {
		return fmt.Errorf("ledger mismatch: outcome net %d, paid %d, staked %d", net, s.Paid, s.Staked)
	}
	return nil
}
