package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/lox/blackjack/internal/accounts"
	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/store"
)

const maxBodyBytes = 1 << 16

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at"`
	Account   accountView `json:"account"`
}

type startRequest struct {
	Stake int64 `json:"stake"`
}

type roundResponse struct {
	Round   roundView   `json:"round"`
	Account accountView `json:"account"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := s.accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountView(a))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(timeFormat),
		Account:   newAccountView(session.Account),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	a, err := s.accounts.Get(r.Context(), identityFrom(r.Context()).AccountID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(a))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, s.leaderboardLimit)
	if !ok {
		return
	}
	board, err := s.engine.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := make([]standingView, 0, len(board))
	for i, row := range board {
		out = append(out, newStandingView(i+1, row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.engine.Start(r.Context(), identityFrom(r.Context()).AccountID, req.Stake)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roundResponse{
		Round:   newRoundView(res.Round),
		Account: newAccountView(res.Account),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, s.historyLimit)
	if !ok {
		return
	}
	rounds, err := s.engine.History(r.Context(), identityFrom(r.Context()).AccountID, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := make([]roundView, 0, len(rounds))
	for _, round := range rounds {
		out = append(out, newRoundView(round))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.engine.Get(r.Context(), identityFrom(r.Context()).AccountID, r.PathValue("id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRoundView(round))
}

type command func(ctx context.Context, accountID, roundID string) (blackjack.Result, error)

func (s *Server) handleCommand(fn command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := fn(r.Context(), identityFrom(r.Context()).AccountID, r.PathValue("id"))
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roundResponse{
			Round:   newRoundView(res.Round),
			Account: newAccountView(res.Account),
		})
	}
}

// errorStatus maps domain errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, blackjack.ErrInvalidStake):
		return http.StatusBadRequest, blackjack.ErrorKind(err)
	case errors.Is(err, blackjack.ErrInsufficientFunds):
		return http.StatusPaymentRequired, blackjack.ErrorKind(err)
	case errors.Is(err, blackjack.ErrAccountNotFound), errors.Is(err, blackjack.ErrRoundNotFound):
		return http.StatusNotFound, blackjack.ErrorKind(err)
	case errors.Is(err, blackjack.ErrRoundInProgress), errors.Is(err, blackjack.ErrRoundNotActive):
		return http.StatusConflict, blackjack.ErrorKind(err)
	case errors.Is(err, blackjack.ErrDrawUnavailable):
		return http.StatusServiceUnavailable, blackjack.ErrorKind(err)
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, accounts.ErrInvalidUsername), errors.Is(err, accounts.ErrInvalidPassword):
		return http.StatusBadRequest, "invalid_credentials_format"
	case errors.Is(err, accounts.ErrUsernameTaken):
		return http.StatusConflict, "username_taken"
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 100 {
		writeError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 100")
		return 0, false
	}
	return n, true
}
