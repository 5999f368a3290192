package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit. It is carried for display only.
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the symbol for the suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// Letter returns the single-letter code used by deck services (S, H, D, C)
func (s Suit) Letter() string {
	switch s {
	case Spades:
		return "S"
	case Hearts:
		return "H"
	case Diamonds:
		return "D"
	case Clubs:
		return "C"
	default:
		return "?"
	}
}

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

// Rank is the single rank enumeration shared by the evaluator and the dealer.
type Rank int

const (
	Ace Rank = iota + 1
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
)

// String returns the short rank label ("A", "2".."10", "J", "Q", "K")
func (r Rank) String() string {
	switch {
	case r == Ace:
		return "A"
	case r >= Two && r <= Ten:
		return fmt.Sprintf("%d", int(r))
	case r == Jack:
		return "J"
	case r == Queen:
		return "Q"
	case r == King:
		return "K"
	default:
		return "?"
	}
}

// code returns the rank character used in two-letter card codes, where ten is "0".
func (r Rank) code() string {
	if r == Ten {
		return "0"
	}
	return r.String()
}

// Valid reports whether r is one of the thirteen ranks.
func (r Rank) Valid() bool {
	return r >= Ace && r <= King
}

// PipValue returns the non-ace contribution of the rank: face value for
// Two..Ten and 10 for court cards. Aces return 1; the evaluator decides
// whether they count as 11.
func (r Rank) PipValue() int {
	switch {
	case r == Ace:
		return 1
	case r >= Two && r <= Ten:
		return int(r)
	case r >= Jack && r <= King:
		return 10
	default:
		return 0
	}
}

// Card represents a playing card. Cards are values and never change once dealt.
type Card struct {
	Suit Suit
	Rank Rank
}

// NewCard creates a new card
func NewCard(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank}
}

// String returns the display form of a card (e.g., "A♠", "10♥")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Code returns the two-letter code of the card (e.g., "AS", "0H")
func (c Card) Code() string {
	return c.Rank.code() + c.Suit.Letter()
}

// IsRed returns true if the card is red
func (c Card) IsRed() bool {
	return c.Suit.IsRed()
}

// IsAce returns true if the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// IsFaceCard returns true if the card is a face card (J, Q, K)
func (c Card) IsFaceCard() bool {
	return c.Rank >= Jack && c.Rank <= King
}

// ParseRank accepts short labels ("A", "K", "10", "T") and the long names
// returned by remote deck services ("ACE", "KING", "10").
func ParseRank(s string) (Rank, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "ACE", "1":
		return Ace, nil
	case "2":
		return Two, nil
	case "3":
		return Three, nil
	case "4":
		return Four, nil
	case "5":
		return Five, nil
	case "6":
		return Six, nil
	case "7":
		return Seven, nil
	case "8":
		return Eight, nil
	case "9":
		return Nine, nil
	case "10", "T", "0":
		return Ten, nil
	case "J", "JACK":
		return Jack, nil
	case "Q", "QUEEN":
		return Queen, nil
	case "K", "KING":
		return King, nil
	}
	return 0, fmt.Errorf("invalid rank: %q", s)
}

// ParseSuit accepts suit letters, names and symbols.
func ParseSuit(s string) (Suit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S", "SPADES", "♠":
		return Spades, nil
	case "H", "HEARTS", "♥":
		return Hearts, nil
	case "D", "DIAMONDS", "♦":
		return Diamonds, nil
	case "C", "CLUBS", "♣":
		return Clubs, nil
	}
	return 0, fmt.Errorf("invalid suit: %q", s)
}

// ParseCode parses a card code such as "AS", "0H", "10D" or "kc".
func ParseCode(code string) (Card, error) {
	code = strings.TrimSpace(code)
	if len(code) < 2 {
		return Card{}, fmt.Errorf("invalid card code: %q", code)
	}
	rank, err := ParseRank(code[:len(code)-1])
	if err != nil {
		return Card{}, fmt.Errorf("card %q: %w", code, err)
	}
	suit, err := ParseSuit(code[len(code)-1:])
	if err != nil {
		return Card{}, fmt.Errorf("card %q: %w", code, err)
	}
	return NewCard(suit, rank), nil
}

// ParseCodes parses a space or comma separated list of card codes.
func ParseCodes(s string) ([]Card, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCode(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// MustParseCodes is ParseCodes for fixed inputs; it panics on error.
func MustParseCodes(s string) []Card {
	cards, err := ParseCodes(s)
	if err != nil {
		panic(err)
	}
	return cards
}

// Codes returns the card codes of cards in order.
func Codes(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Code()
	}
	return out
}
