// Package server exposes the round engine and accounts over HTTP, with a
// websocket feed of settled rounds.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lox/blackjack/internal/accounts"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/blackjack"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options wires the server to its collaborators.
type Options struct {
	Engine           *blackjack.Engine
	Accounts         *accounts.Service
	Tokens           auth.Validator
	Hub              *Hub
	Logger           zerolog.Logger
	HistoryLimit     int
	LeaderboardLimit int
}

// Server is the HTTP API.
type Server struct {
	engine           *blackjack.Engine
	accounts         *accounts.Service
	tokens           auth.Validator
	hub              *Hub
	logger           zerolog.Logger
	historyLimit     int
	leaderboardLimit int
	httpServer       *http.Server
}

// New creates a server listening on addr. A nil Hub gets a fresh one.
func New(addr string, opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Logger)
	}
	s := &Server{
		engine:           opts.Engine,
		accounts:         opts.Accounts,
		tokens:           opts.Tokens,
		hub:              opts.Hub,
		logger:           opts.Logger.With().Str("component", "server").Logger(),
		historyLimit:     opts.HistoryLimit,
		leaderboardLimit: opts.LeaderboardLimit,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with logging and metrics applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.hub.ServeWS)

	mux.HandleFunc("POST /api/accounts", s.handleRegister)
	mux.HandleFunc("POST /api/sessions", s.handleLogin)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.Handle("GET /api/accounts/me", s.authenticated(s.handleMe))

	mux.Handle("POST /api/rounds", s.authenticated(s.handleStart))
	mux.Handle("GET /api/rounds", s.authenticated(s.handleHistory))
	mux.Handle("GET /api/rounds/{id}", s.authenticated(s.handleGetRound))
	mux.Handle("POST /api/rounds/{id}/hit", s.authenticated(s.handleCommand(s.engine.Hit)))
	mux.Handle("POST /api/rounds/{id}/stand", s.authenticated(s.handleCommand(s.engine.Stand)))
	mux.Handle("POST /api/rounds/{id}/surrender", s.authenticated(s.handleCommand(s.engine.Surrender)))

	return s.recoverPanics(s.logRequests(mux))
}

// Hub returns the settlement feed.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info().Str("addr", l.Addr().String()).Msg("starting HTTP server")
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// every feed connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "OK")
}
