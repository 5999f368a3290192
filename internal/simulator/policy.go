package simulator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/deck"
)

// Action is a player decision on an active round.
type Action int

const (
	Stand Action = iota
	Hit
	Surrender
)

func (a Action) String() string {
	switch a {
	case Hit:
		return "hit"
	case Surrender:
		return "surrender"
	default:
		return "stand"
	}
}

// Policy decides the next action from the player's hand and the dealer's
// visible card.
type Policy func(player []deck.Card, upcard deck.Card) Action

// DealerPolicy plays the player's hand by the house rule: hit below 17.
func DealerPolicy(player []deck.Card, _ deck.Card) Action {
	if blackjack.DealerShouldDraw(player) {
		return Hit
	}
	return Stand
}

// CautiousPolicy never risks a bust: it hits only below 12.
func CautiousPolicy(player []deck.Card, _ deck.Card) Action {
	if blackjack.Score(player) < 12 {
		return Hit
	}
	return Stand
}

// SurrenderPolicy gives up a hard 15 or 16 on the deal against a dealer
// nine, ten or ace, and otherwise follows DealerPolicy.
func SurrenderPolicy(player []deck.Card, upcard deck.Card) Action {
	score := blackjack.Score(player)
	strong := upcard.IsAce() || upcard.Rank.PipValue() >= 9
	if len(player) == 2 && (score == 15 || score == 16) && !blackjack.IsSoft(player) && strong {
		return Surrender
	}
	return DealerPolicy(player, upcard)
}

var policies = map[string]Policy{
	"dealer":    DealerPolicy,
	"cautious":  CautiousPolicy,
	"surrender": SurrenderPolicy,
}

// PolicyNames lists the registered policies in name order.
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// PolicyByName looks up a registered policy.
func PolicyByName(name string) (Policy, error) {
	p, ok := policies[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown policy %q (want one of %s)", name, strings.Join(PolicyNames(), ", "))
	}
	return p, nil
}
