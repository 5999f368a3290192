package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/config"
	"github.com/rs/zerolog"
)

// version is set by ldflags during build
var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"Path to an HCL config file" type:"path" default:"blackjack.hcl" env:"BLACKJACK_CONFIG"`
	Debug    bool   `help:"Enable debug logging" env:"BLACKJACK_DEBUG"`
	LogLevel string `help:"Log level (overrides the config file)" env:"BLACKJACK_LOG_LEVEL"`
	LogJSON  bool   `name:"log-json" help:"Emit structured JSON logs" env:"BLACKJACK_LOG_JSON"`
}

// load reads the config file and builds the logger it describes.
func (g *Globals) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	name := cfg.Server.LogLevel
	if g.LogLevel != "" {
		name = g.LogLevel
	}
	level, err := shared.ParseLevel(name, g.Debug)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if g.LogJSON {
		return cfg, shared.SetupStructuredLogger(level), nil
	}
	return cfg, shared.SetupLogger(level), nil
}

type CLI struct {
	Globals

	Version     kong.VersionFlag `short:"v" help:"Show version"`
	Serve       ServeCmd         `cmd:"" help:"Run the blackjack HTTP server"`
	Migrate     MigrateCmd       `cmd:"" help:"Apply database migrations and exit"`
	Leaderboard LeaderboardCmd   `cmd:"" help:"Print the leaderboard"`
	Simulate    SimulateCmd      `cmd:"" help:"Simulate rounds with the dealer's policy"`
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blackjack"),
		kong.Description("Single-hand blackjack rounds against a dealer"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
		kong.Bind(&cli.Globals),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
