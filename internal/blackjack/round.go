package blackjack

import (
	"slices"
	"time"

	"github.com/lox/blackjack/internal/deck"
)

// State is the lifecycle state of a round.
type State string

const (
	StateActive  State = "active"
	StateSettled State = "settled"
)

// Outcome is the result tag fixed at settlement.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomePlayerBust  Outcome = "player_bust"
	OutcomePlayerWin   Outcome = "player_win"
	OutcomeDealerWin   Outcome = "dealer_win"
	OutcomePush        Outcome = "push"
	OutcomeSurrendered Outcome = "surrendered"
)

// CountsAsGame reports whether settling with this outcome increments the
// account's games-played counter. Surrender does not.
func (o Outcome) CountsAsGame() bool {
	return o != OutcomeNone && o != OutcomeSurrendered
}

// Round is one hand from deal to settlement.
type Round struct {
	ID        string
	AccountID string
	State     State
	Player    []deck.Card
	Dealer    []deck.Card
	Stake     int64
	Payout    int64
	Outcome   Outcome
	Message   string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	SettledAt time.Time
}

// Active reports whether the round still accepts commands.
func (r Round) Active() bool {
	return r.State == StateActive
}

// PlayerScore returns the evaluated player hand.
func (r Round) PlayerScore() int {
	return Score(r.Player)
}

// DealerScore returns the evaluated dealer hand.
func (r Round) DealerScore() int {
	return Score(r.Dealer)
}

// Clone returns a copy whose hands do not share backing arrays with r.
func (r Round) Clone() Round {
	r.Player = slices.Clone(r.Player)
	r.Dealer = slices.Clone(r.Dealer)
	return r
}
