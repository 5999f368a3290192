package deck

import (
	"testing"

	"github.com/lox/blackjack/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeckContainsEveryCard(t *testing.T) {
	d := NewDeck(2, randutil.New(1))
	require.Equal(t, 104, d.CardsRemaining())
	assert.Equal(t, 104, d.Size())

	counts := make(map[Card]int)
	for {
		c, ok := d.Deal()
		if !ok {
			break
		}
		counts[c]++
	}
	assert.Len(t, counts, 52)
	for c, n := range counts {
		assert.Equal(t, 2, n, c.String())
	}
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	a := NewDeck(1, randutil.New(42))
	b := NewDeck(1, randutil.New(42))
	a.Shuffle()
	b.Shuffle()

	for i := 0; i < 52; i++ {
		ca, _ := a.Deal()
		cb, _ := b.Deal()
		require.Equal(t, ca, cb, "card %d", i)
	}
}

func TestResetRefillsShoe(t *testing.T) {
	d := NewDeck(1, randutil.New(7))
	for i := 0; i < 10; i++ {
		d.Deal()
	}
	assert.Equal(t, 42, d.CardsRemaining())
	d.Reset()
	assert.Equal(t, 52, d.CardsRemaining())

	empty := NewDeck(1, randutil.New(7))
	for i := 0; i < 52; i++ {
		empty.Deal()
	}
	_, ok := empty.Deal()
	assert.False(t, ok)
}
