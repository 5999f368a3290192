// Package config loads the service configuration from an optional HCL file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete service configuration. Every block is optional in
// the file; Load fills missing blocks and values with defaults.
type Config struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Storage *StorageSettings `hcl:"storage,block"`
	Deck    *DeckSettings    `hcl:"deck,block"`
	Game    *GameSettings    `hcl:"game,block"`
	Auth    *AuthSettings    `hcl:"auth,block"`
	Redis   *RedisSettings   `hcl:"redis,block"`
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Address         string `hcl:"address,optional"`
	LogLevel        string `hcl:"log_level,optional"`
	ShutdownTimeout string `hcl:"shutdown_timeout,optional"`
}

// StorageSettings selects the round and account store.
type StorageSettings struct {
	Driver string `hcl:"driver,optional"`
	Path   string `hcl:"path,optional"`
}

// DeckSettings selects where cards come from.
type DeckSettings struct {
	Source    string `hcl:"source,optional"`
	Decks     int    `hcl:"decks,optional"`
	Seed      int64  `hcl:"seed,optional"`
	RemoteURL string `hcl:"remote_url,optional"`
	Timeout   string `hcl:"timeout,optional"`
}

// GameSettings holds table limits and read defaults.
type GameSettings struct {
	StartingBalance  int64 `hcl:"starting_balance,optional"`
	HistoryLimit     int   `hcl:"history_limit,optional"`
	LeaderboardLimit int   `hcl:"leaderboard_limit,optional"`
}

// AuthSettings configures session tokens.
type AuthSettings struct {
	Secret     string `hcl:"secret,optional"`
	TokenTTL   string `hcl:"token_ttl,optional"`
	BcryptCost int    `hcl:"bcrypt_cost,optional"`
}

// RedisSettings enables the shared account lock when Address is set.
type RedisSettings struct {
	Address  string `hcl:"address,optional"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
	LockTTL  string `hcl:"lock_ttl,optional"`
	LockWait string `hcl:"lock_wait,optional"`
}

const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"

	DeckShoe   = "shoe"
	DeckRemote = "remote"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads filename, applying defaults for missing values. A missing file
// yields Default().
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var c Config
	if diags := gohcl.DecodeBody(file.Body, nil, &c); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.Storage == nil {
		c.Storage = &StorageSettings{}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageSQLite
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "blackjack.db"
	}

	if c.Deck == nil {
		c.Deck = &DeckSettings{}
	}
	if c.Deck.Source == "" {
		c.Deck.Source = DeckShoe
	}
	if c.Deck.Decks == 0 {
		c.Deck.Decks = 6
	}
	if c.Deck.RemoteURL == "" {
		c.Deck.RemoteURL = "https://deckofcardsapi.com"
	}
	if c.Deck.Timeout == "" {
		c.Deck.Timeout = "5s"
	}

	if c.Game == nil {
		c.Game = &GameSettings{}
	}
	if c.Game.StartingBalance == 0 {
		c.Game.StartingBalance = 1000
	}
	if c.Game.HistoryLimit == 0 {
		c.Game.HistoryLimit = 10
	}
	if c.Game.LeaderboardLimit == 0 {
		c.Game.LeaderboardLimit = 10
	}

	if c.Auth == nil {
		c.Auth = &AuthSettings{}
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "24h"
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}

	if c.Redis == nil {
		c.Redis = &RedisSettings{}
	}
	if c.Redis.LockTTL == "" {
		c.Redis.LockTTL = "10s"
	}
	if c.Redis.LockWait == "" {
		c.Redis.LockWait = "5s"
	}
}

// Validate checks ranges and that durations parse.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server: address is required")
	}
	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage: path is required for sqlite")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage: invalid driver %q", c.Storage.Driver)
	}
	switch c.Deck.Source {
	case DeckShoe, DeckRemote:
	default:
		return fmt.Errorf("deck: invalid source %q", c.Deck.Source)
	}
	if c.Deck.Decks < 1 || c.Deck.Decks > 20 {
		return fmt.Errorf("deck: decks must be between 1 and 20, got %d", c.Deck.Decks)
	}
	if c.Deck.Source == DeckRemote && c.Deck.RemoteURL == "" {
		return fmt.Errorf("deck: remote_url is required for the remote source")
	}
	if c.Game.StartingBalance <= 0 {
		return fmt.Errorf("game: starting balance must be positive")
	}
	if c.Game.HistoryLimit <= 0 || c.Game.LeaderboardLimit <= 0 {
		return fmt.Errorf("game: limits must be positive")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth: secret is required")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth: bcrypt cost must be between 4 and 31")
	}

	durations := map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"deck.timeout":            c.Deck.Timeout,
		"auth.token_ttl":          c.Auth.TokenTTL,
		"redis.lock_ttl":          c.Redis.LockTTL,
		"redis.lock_wait":         c.Redis.LockWait,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: must be positive", name)
		}
	}
	return nil
}

// RedisEnabled reports whether the shared lock should be used.
func (c *Config) RedisEnabled() bool {
	return c.Redis != nil && c.Redis.Address != ""
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ShutdownTimeoutDuration is the grace period for in-flight requests.
func (s *ServerSettings) ShutdownTimeoutDuration() time.Duration {
	return mustDuration(s.ShutdownTimeout)
}

// TimeoutDuration is the per-request deadline for the remote deck.
func (d *DeckSettings) TimeoutDuration() time.Duration {
	return mustDuration(d.Timeout)
}

// TokenTTLDuration is the lifetime of issued session tokens.
func (a *AuthSettings) TokenTTLDuration() time.Duration {
	return mustDuration(a.TokenTTL)
}

// LockTTLDuration is how long an account lock survives a crashed holder.
func (r *RedisSettings) LockTTLDuration() time.Duration {
	return mustDuration(r.LockTTL)
}

// LockWaitDuration caps how long a command waits for an account lock.
func (r *RedisSettings) LockWaitDuration() time.Duration {
	return mustDuration(r.LockWait)
}
