// Package draw provides card sources for the round engine: an in-process
// shoe, a client for a remote deck service and a scripted source.
package draw

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/metrics"
	"github.com/lox/blackjack/internal/randutil"
)

// ErrUnavailable is returned when no cards can be dealt.
var ErrUnavailable = errors.New("draw: source unavailable")

// ShoeSource deals from a locally shuffled shoe and reshuffles a fresh shoe
// when it runs out.
type ShoeSource struct {
	mu   sync.Mutex
	shoe *deck.Deck
}

// NewShoeSource creates a shuffled shoe of decks standard decks.
func NewShoeSource(decks int, seed int64) *ShoeSource {
	return NewShoeSourceFrom(decks, randutil.New(seed))
}

// NewShoeSourceFrom creates a shoe shuffled by rng.
func NewShoeSourceFrom(decks int, rng *rand.Rand) *ShoeSource {
	s := &ShoeSource{shoe: deck.NewDeck(decks, rng)}
	_ = s.Initialize(context.Background())
	return s
}

// Initialize discards the current shoe and shuffles a full one.
func (s *ShoeSource) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shoe.Reset()
	metrics.RecordDeckInit("shoe")
	return nil
}

// Draw deals n cards.
func (s *ShoeSource) Draw(ctx context.Context, n int) (cards []deck.Card, err error) {
	started := time.Now()
	defer func() { metrics.RecordDraw("shoe", err, started) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("draw: invalid count %d", n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cards = make([]deck.Card, 0, n)
	for len(cards) < n {
		c, ok := s.shoe.Deal()
		if !ok {
			s.shoe.Reset()
			metrics.RecordDeckInit("shoe")
			continue
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Remaining returns the cards left before the next reshuffle.
func (s *ShoeSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shoe.CardsRemaining()
}

// ScriptedSource deals a fixed sequence of cards. Once exhausted it fails
// with ErrUnavailable, and Fail makes the next draws fail on demand.
type ScriptedSource struct {
	mu    sync.Mutex
	cards []deck.Card
	fails int
	calls int
}

// NewScriptedSource deals cards in the given order.
func NewScriptedSource(cards ...deck.Card) *ScriptedSource {
	return &ScriptedSource{cards: cards}
}

// NewScriptedCodes deals the cards named by codes, e.g. "9C AS 0H KD".
func NewScriptedCodes(codes string) (*ScriptedSource, error) {
	cards, err := deck.ParseCodes(codes)
	if err != nil {
		return nil, err
	}
	return NewScriptedSource(cards...), nil
}

// Push appends cards to the end of the script.
func (s *ScriptedSource) Push(cards ...deck.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, cards...)
}

// Fail makes the next n draws return ErrUnavailable without consuming cards.
func (s *ScriptedSource) Fail(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails = n
}

// Calls returns the number of Draw calls made.
func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Remaining returns the number of scripted cards not yet dealt.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// Draw deals the next n scripted cards.
func (s *ScriptedSource) Draw(ctx context.Context, n int) ([]deck.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if s.fails > 0 {
		s.fails--
		return nil, ErrUnavailable
	}
	if n > len(s.cards) {
		return nil, fmt.Errorf("%w: script has %d cards, wanted %d", ErrUnavailable, len(s.cards), n)
	}
	out := make([]deck.Card, n)
	copy(out, s.cards[:n])
	s.cards = s.cards[n:]
	return out, nil
}
