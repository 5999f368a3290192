package blackjack

import "github.com/lox/blackjack/internal/deck"

const (
	// Blackjack is the best possible score; anything above busts.
	Blackjack = 21

	// DealerStandsOn is the fixed dealer threshold. The dealer stands on
	// every 17, soft or hard.
	DealerStandsOn = 17
)

// Score totals a hand. Non-ace cards count their pip value; each ace then
// counts 11 while that keeps the total at or below 21 and 1 otherwise.
// The result is independent of card order and is not clamped, so a value
// above 21 means the hand is bust.
func Score(cards []deck.Card) int {
	total, aces := 0, 0
	for _, c := range cards {
		if c.IsAce() {
			aces++
			continue
		}
		total += c.Rank.PipValue()
	}
	for i := 0; i < aces; i++ {
		if total+11 <= Blackjack {
			total += 11
		} else {
			total++
		}
	}
	return total
}

// IsBust reports whether the hand scores above 21.
func IsBust(cards []deck.Card) bool {
	return Score(cards) > Blackjack
}

// IsSoft reports whether an ace in the hand is currently counted as 11.
func IsSoft(cards []deck.Card) bool {
	hard := 0
	hasAce := false
	for _, c := range cards {
		hard += c.Rank.PipValue()
		hasAce = hasAce || c.IsAce()
	}
	return hasAce && Score(cards) != hard
}

// IsNatural reports a two-card 21.
func IsNatural(cards []deck.Card) bool {
	return len(cards) == 2 && Score(cards) == Blackjack
}

// DealerShouldDraw applies the house policy to the dealer's hand.
func DealerShouldDraw(dealer []deck.Card) bool {
	return Score(dealer) < DealerStandsOn
}
