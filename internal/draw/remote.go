package draw

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/singleflight"
)

// DefaultRemoteURL is the public deck of cards service.
const DefaultRemoteURL = "https://deckofcardsapi.com"

// RemoteConfig configures a RemoteSource.
type RemoteConfig struct {
	BaseURL   string
	DeckCount int
	Timeout   time.Duration
}

// RemoteSource draws from a deckofcardsapi compatible service. A deck is
// shuffled on first use and replaced once it cannot cover a draw.
type RemoteSource struct {
	cfg    RemoteConfig
	client *fasthttp.Client
	logger zerolog.Logger
	group  singleflight.Group

	mu        sync.Mutex
	deckID    string
	remaining int
}

type apiCard struct {
	Code  string `json:"code"`
	Value string `json:"value"`
	Suit  string `json:"suit"`
}

type apiResponse struct {
	Success   bool      `json:"success"`
	DeckID    string    `json:"deck_id"`
	Remaining int       `json:"remaining"`
	Cards     []apiCard `json:"cards"`
	Error     string    `json:"error"`
}

// NewRemoteSource creates a client for the deck service at cfg.BaseURL.
func NewRemoteSource(cfg RemoteConfig, logger zerolog.Logger) *RemoteSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRemoteURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DeckCount <= 0 {
		cfg.DeckCount = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &RemoteSource{
		cfg: cfg,
		client: &fasthttp.Client{
			Name:                "blackjack",
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		logger: logger.With().Str("component", "remote_deck").Logger(),
	}
}

// Initialize shuffles a new deck and makes it current. Concurrent callers
// share one request.
func (s *RemoteSource) Initialize(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("init", func() (any, error) {
		url := fmt.Sprintf("%s/api/deck/new/shuffle/?deck_count=%d", s.cfg.BaseURL, s.cfg.DeckCount)
		var resp apiResponse
		if err := s.get(ctx, url, &resp); err != nil {
			return "", err
		}
		if resp.DeckID == "" {
			return "", fmt.Errorf("%w: deck service returned no deck id", ErrUnavailable)
		}

		s.mu.Lock()
		s.deckID = resp.DeckID
		s.remaining = resp.Remaining
		s.mu.Unlock()

		metrics.RecordDeckInit("remote")
		s.logger.Debug().Str("deck", resp.DeckID).Int("remaining", resp.Remaining).Msg("shuffled new deck")
		return resp.DeckID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Draw deals n cards, initialising a deck first when none is active or the
// current one is too short.
func (s *RemoteSource) Draw(ctx context.Context, n int) (cards []deck.Card, err error) {
	started := time.Now()
	defer func() { metrics.RecordDraw("remote", err, started) }()

	if n <= 0 {
		return nil, fmt.Errorf("draw: invalid count %d", n)
	}

	s.mu.Lock()
	deckID, remaining := s.deckID, s.remaining
	s.mu.Unlock()

	if deckID == "" || remaining < n {
		if deckID, err = s.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	url := fmt.Sprintf("%s/api/deck/%s/draw/?count=%d", s.cfg.BaseURL, deckID, n)
	var resp apiResponse
	if err := s.get(ctx, url, &resp); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.deckID == deckID {
		s.remaining = resp.Remaining
	}
	s.mu.Unlock()

	if len(resp.Cards) != n {
		return nil, fmt.Errorf("%w: wanted %d cards, got %d", ErrUnavailable, n, len(resp.Cards))
	}

	cards = make([]deck.Card, 0, n)
	for _, c := range resp.Cards {
		card, err := toCard(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func (s *RemoteSource) get(ctx context.Context, url string, out *apiResponse) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if !out.Success {
		return fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
	}
	return nil
}

func toCard(c apiCard) (deck.Card, error) {
	if c.Value != "" && c.Suit != "" {
		rank, err := deck.ParseRank(c.Value)
		if err != nil {
			return deck.Card{}, err
		}
		suit, err := deck.ParseSuit(c.Suit)
		if err != nil {
			return deck.Card{}, err
		}
		return deck.NewCard(suit, rank), nil
	}
	return deck.ParseCode(c.Code)
}
