package main

import (
	"context"

	"github.com/lox/blackjack/internal/store/sqlite"
)

// MigrateCmd applies pending schema migrations.
type MigrateCmd struct {
	DB string `name:"db" help:"SQLite database path" type:"path" env:"BLACKJACK_DB"`
}

func (c *MigrateCmd) Run(globals *Globals) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	path := cfg.Storage.Path
	if c.DB != "" {
		path = c.DB
	}

	applied, err := sqlite.Migrate(context.Background(), path)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		logger.Info().Str("db", path).Msg("Schema is up to date")
		return nil
	}
	for _, name := range applied {
		logger.Info().Str("db", path).Str("migration", name).Msg("Applied migration")
	}
	return nil
}
