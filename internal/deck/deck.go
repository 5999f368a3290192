package deck

import (
	rand "math/rand/v2"
)

// Deck is a shoe of one or more standard 52-card decks
type Deck struct {
	cards []Card
	decks int
	rng   *rand.Rand
}

// NewDeck creates an unshuffled shoe of n standard decks using rng for shuffling
func NewDeck(n int, rng *rand.Rand) *Deck {
	if n < 1 {
		n = 1
	}
	d := &Deck{
		cards: make([]Card, 0, 52*n),
		decks: n,
		rng:   rng,
	}
	d.fill()
	return d
}

func (d *Deck) fill() {
	d.cards = d.cards[:0]
	for i := 0; i < d.decks; i++ {
		for suit := Spades; suit <= Clubs; suit++ {
			for rank := Ace; rank <= King; rank++ {
				d.cards = append(d.cards, NewCard(suit, rank))
			}
		}
	}
}

// Shuffle randomizes the order of cards in the deck
func (d *Deck) Shuffle() {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := d.rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the top card from the deck
func (d *Deck) Deal() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}

	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// CardsRemaining returns the number of cards left in the deck
func (d *Deck) CardsRemaining() int {
	return len(d.cards)
}

// Size returns the number of cards in a full shoe
func (d *Deck) Size() int {
	return 52 * d.decks
}

// Reset restores the full shoe and shuffles it
func (d *Deck) Reset() {
	d.fill()
	d.Shuffle()
}
