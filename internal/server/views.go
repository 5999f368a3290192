package server

import (
	"time"

	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/deck"
)

const timeFormat = time.RFC3339

type handView struct {
	Cards  []string `json:"cards"`
	Score  int      `json:"score"`
	Hidden int      `json:"hidden,omitempty"`
}

type roundView struct {
	ID        string   `json:"id"`
	State     string   `json:"state"`
	Stake     int64    `json:"stake"`
	Payout    int64    `json:"payout"`
	Outcome   string   `json:"outcome,omitempty"`
	Message   string   `json:"message,omitempty"`
	Player    handView `json:"player"`
	Dealer    handView `json:"dealer"`
	CreatedAt string   `json:"created_at"`
	SettledAt string   `json:"settled_at,omitempty"`
	Version   int64    `json:"version"`
}

// newRoundView renders a round for its owner. While the round is active
// only the dealer's first card and its score are shown.
func newRoundView(r blackjack.Round) roundView {
	dealer := handView{Cards: deck.Codes(r.Dealer), Score: r.DealerScore()}
	if r.Active() && len(r.Dealer) > 1 {
		visible := r.Dealer[:1]
		dealer = handView{
			Cards:  deck.Codes(visible),
			Score:  blackjack.Score(visible),
			Hidden: len(r.Dealer) - 1,
		}
	}

	v := roundView{
		ID:        r.ID,
		State:     string(r.State),
		Stake:     r.Stake,
		Payout:    r.Payout,
		Outcome:   string(r.Outcome),
		Message:   r.Message,
		Player:    handView{Cards: deck.Codes(r.Player), Score: r.PlayerScore()},
		Dealer:    dealer,
		CreatedAt: r.CreatedAt.UTC().Format(timeFormat),
		Version:   r.Version,
	}
	if !r.SettledAt.IsZero() {
		v.SettledAt = r.SettledAt.UTC().Format(timeFormat)
	}
	return v
}

type accountView struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Balance     int64  `json:"balance"`
	GamesPlayed int64  `json:"games_played"`
	Wins        int64  `json:"wins"`
	HighestWin  int64  `json:"highest_win"`
	CreatedAt   string `json:"created_at"`
}

func newAccountView(a blackjack.Account) accountView {
	return accountView{
		ID:          a.ID,
		Username:    a.Username,
		Balance:     a.Balance,
		GamesPlayed: a.GamesPlayed,
		Wins:        a.Wins,
		HighestWin:  a.HighestWin,
		CreatedAt:   a.CreatedAt.UTC().Format(timeFormat),
	}
}

type standingView struct {
	Rank        int    `json:"rank"`
	Username    string `json:"username"`
	Balance     int64  `json:"balance"`
	Wins        int64  `json:"wins"`
	GamesPlayed int64  `json:"games_played"`
	HighestWin  int64  `json:"highest_win"`
}

func newStandingView(rank int, s blackjack.Standing) standingView {
	return standingView{
		Rank:        rank,
		Username:    s.Username,
		Balance:     s.Balance,
		Wins:        s.Wins,
		GamesPlayed: s.GamesPlayed,
		HighestWin:  s.HighestWin,
	}
}
