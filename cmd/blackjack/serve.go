package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/accounts"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/config"
	"github.com/lox/blackjack/internal/draw"
	"github.com/lox/blackjack/internal/lock"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/store/memory"
	"github.com/lox/blackjack/internal/store/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ServeCmd runs the HTTP API. Flags override the config file.
type ServeCmd struct {
	Addr      string `help:"Listen address" env:"BLACKJACK_ADDR"`
	Storage   string `help:"Store driver (sqlite or memory)" env:"BLACKJACK_STORAGE"`
	DB        string `name:"db" help:"SQLite database path" type:"path" env:"BLACKJACK_DB"`
	Deck      string `help:"Card source (shoe or remote)" env:"BLACKJACK_DECK"`
	DeckURL   string `name:"deck-url" help:"Remote deck service base URL" env:"BLACKJACK_DECK_URL"`
	Seed      *int64 `help:"Deterministic shoe seed (optional)"`
	JWTSecret string `name:"jwt-secret" help:"Secret used to sign session tokens" env:"BLACKJACK_JWT_SECRET"`
	Redis     string `help:"Redis address for the shared account lock" env:"BLACKJACK_REDIS_ADDR"`
}

func (c *ServeCmd) apply(cfg *config.Config) {
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.Storage != "" {
		cfg.Storage.Driver = c.Storage
	}
	if c.DB != "" {
		cfg.Storage.Path = c.DB
	}
	if c.Deck != "" {
		cfg.Deck.Source = c.Deck
	}
	if c.DeckURL != "" {
		cfg.Deck.RemoteURL = c.DeckURL
	}
	if c.Seed != nil {
		cfg.Deck.Seed = *c.Seed
	}
	if c.JWTSecret != "" {
		cfg.Auth.Secret = c.JWTSecret
	}
	if c.Redis != "" {
		cfg.Redis.Address = c.Redis
	}
}

func (c *ServeCmd) Run(globals *Globals) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := shared.SetupSignalHandler(logger)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	source, err := c.drawSource(cfg, logger)
	if err != nil {
		return err
	}

	clock := quartz.NewReal()
	hub := server.NewHub(logger)
	opts := []blackjack.Option{
		blackjack.WithLogger(logger),
		blackjack.WithClock(clock),
		blackjack.WithNotifier(hub),
	}
	if cfg.RedisEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Redis.Address, err)
		}
		opts = append(opts, blackjack.WithLocker(lock.NewRedis(client, logger, lock.RedisConfig{
			TTL:   cfg.Redis.LockTTLDuration(),
			Wait:  cfg.Redis.LockWaitDuration(),
			Clock: clock,
		})))
		logger.Info().Str("addr", cfg.Redis.Address).Msg("Using redis account locks")
	}
	engine := blackjack.NewEngine(st, source, opts...)

	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.TokenTTLDuration(), auth.WithClock(clock))
	if err != nil {
		return err
	}
	accts := accounts.NewService(st, tokens, accounts.Config{
		StartingBalance: cfg.Game.StartingBalance,
		BcryptCost:      cfg.Auth.BcryptCost,
	}, clock, logger)

	srv := server.New(cfg.Server.Address, server.Options{
		Engine:           engine,
		Accounts:         accts,
		Tokens:           tokens,
		Hub:              hub,
		Logger:           logger,
		HistoryLimit:     cfg.Game.HistoryLimit,
		LeaderboardLimit: cfg.Game.LeaderboardLimit,
	})

	logger.Info().
		Str("address", cfg.Server.Address).
		Str("storage", cfg.Storage.Driver).
		Str("deck", cfg.Deck.Source).
		Int("decks", cfg.Deck.Decks).
		Int64("starting_balance", cfg.Game.StartingBalance).
		Msg("Starting blackjack server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}

// store is what the server needs from either store implementation.
type store interface {
	blackjack.Store
	accounts.Store
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return memory.New(), func() {}, nil
	default:
		s, err := sqlite.Open(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

func (c *ServeCmd) drawSource(cfg *config.Config, logger zerolog.Logger) (blackjack.DrawSource, error) {
	switch cfg.Deck.Source {
	case config.DeckRemote:
		return draw.NewRemoteSource(draw.RemoteConfig{
			BaseURL:   cfg.Deck.RemoteURL,
			DeckCount: cfg.Deck.Decks,
			Timeout:   cfg.Deck.TimeoutDuration(),
		}, logger), nil
	case config.DeckShoe:
		var seedPtr *int64
		if cfg.Deck.Seed != 0 {
			seedPtr = &cfg.Deck.Seed
		}
		seed, rng := randutil.FromOptional(seedPtr)
		logger.Info().Int64("seed", seed).Int("decks", cfg.Deck.Decks).Msg("Using local shoe")
		return draw.NewShoeSourceFrom(cfg.Deck.Decks, rng), nil
	default:
		return nil, fmt.Errorf("unknown deck source %q", cfg.Deck.Source)
	}
}
