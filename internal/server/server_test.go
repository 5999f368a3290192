package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/accounts"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/draw"
	"github.com/lox/blackjack/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	ts     *httptest.Server
	source *draw.ScriptedSource
	hub    *Hub
}

func newTestEnv(t *testing.T, script string) *testEnv {
	t.Helper()
	src, err := draw.NewScriptedCodes(script)
	require.NoError(t, err)

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	st := memory.New()
	tokens, err := auth.NewTokens("test-secret", time.Hour, auth.WithClock(clock))
	require.NoError(t, err)

	logger := zerolog.Nop()
	hub := NewHub(logger)
	engine := blackjack.NewEngine(st, src, blackjack.WithClock(clock), blackjack.WithNotifier(hub))
	svc := accounts.NewService(st, tokens, accounts.Config{BcryptCost: bcrypt.MinCost}, clock, logger)

	srv := New("", Options{
		Engine:           engine,
		Accounts:         svc,
		Tokens:           tokens,
		Hub:              hub,
		Logger:           logger,
		HistoryLimit:     10,
		LeaderboardLimit: 10,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{ts: ts, source: src, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (e *testEnv) signup(t *testing.T, username string) string {
	t.Helper()
	status, _ := e.do(t, http.MethodPost, "/api/accounts", "", credentialsRequest{Username: username, Password: "pw-" + username})
	require.Equal(t, http.StatusCreated, status)

	status, body := e.do(t, http.MethodPost, "/api/sessions", "", credentialsRequest{Username: username, Password: "pw-" + username})
	require.Equal(t, http.StatusOK, status)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(body, &session))
	require.NotEmpty(t, session.Token)
	return session.Token
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodGet, "/health", "", nil)
	status, body := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestRegisterLoginAndMe(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.signup(t, "alice")

	status, body := env.do(t, http.MethodGet, "/api/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[accountView](t, body)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, int64(1000), me.Balance)

	status, body = env.do(t, http.MethodPost, "/api/accounts", "", credentialsRequest{Username: "ALICE", Password: "x"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "username_taken", decode[errorResponse](t, body).Error)

	status, _ = env.do(t, http.MethodPost, "/api/sessions", "", credentialsRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, "")

	status, body := env.do(t, http.MethodPost, "/api/rounds", "", startRequest{Stake: 10})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", decode[errorResponse](t, body).Error)

	status, _ = env.do(t, http.MethodGet, "/api/accounts/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRoundLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, "KS 9C 5H 7D 2C 4D")
	token := env.signup(t, "alice")

	status, body := env.do(t, http.MethodPost, "/api/rounds", token, startRequest{Stake: 100})
	require.Equal(t, http.StatusCreated, status, string(body))
	started := decode[roundResponse](t, body)
	assert.Equal(t, "active", started.Round.State)
	assert.Equal(t, []string{"KS", "5H"}, started.Round.Player.Cards)
	assert.Equal(t, []string{"9C"}, started.Round.Dealer.Cards, "hole card is hidden")
	assert.Equal(t, 9, started.Round.Dealer.Score)
	assert.Equal(t, 1, started.Round.Dealer.Hidden)
	assert.Equal(t, int64(900), started.Account.Balance)

	id := started.Round.ID
	status, body = env.do(t, http.MethodPost, "/api/rounds/"+id+"/hit", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	hit := decode[roundResponse](t, body)
	assert.Equal(t, 17, hit.Round.Player.Score)
	assert.Equal(t, "active", hit.Round.State)

	status, body = env.do(t, http.MethodPost, "/api/rounds/"+id+"/stand", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	stood := decode[roundResponse](t, body)
	assert.Equal(t, "settled", stood.Round.State)
	assert.Equal(t, []string{"9C", "7D", "4D"}, stood.Round.Dealer.Cards)
	assert.Zero(t, stood.Round.Dealer.Hidden)
	assert.Equal(t, "dealer_win", stood.Round.Outcome)
	assert.NotEmpty(t, stood.Round.SettledAt)
	assert.Equal(t, int64(900), stood.Account.Balance)
	assert.Equal(t, int64(1), stood.Account.GamesPlayed)

	status, body = env.do(t, http.MethodPost, "/api/rounds/"+id+"/stand", token, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "round_not_active", decode[errorResponse](t, body).Error)

	status, body = env.do(t, http.MethodGet, "/api/rounds/"+id, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "settled", decode[roundView](t, body).State)

	status, body = env.do(t, http.MethodGet, "/api/rounds?limit=5", token, nil)
	require.Equal(t, http.StatusOK, status)
	history := decode[[]roundView](t, body)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].ID)
}

func TestStartErrors(t *testing.T) {
	env := newTestEnv(t, "KS 9C QH 7D")
	token := env.signup(t, "alice")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"zero stake", startRequest{Stake: 0}, http.StatusBadRequest, "invalid_stake"},
		{"over balance", startRequest{Stake: 5000}, http.StatusPaymentRequired, "insufficient_funds"},
		{"unknown field", map[string]any{"stake": 10, "bet": 10}, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/rounds", token, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, decode[errorResponse](t, body).Error)
		})
	}

	status, _ := env.do(t, http.MethodPost, "/api/rounds", token, startRequest{Stake: 10})
	require.Equal(t, http.StatusCreated, status)
	status, body := env.do(t, http.MethodPost, "/api/rounds", token, startRequest{Stake: 10})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "round_in_progress", decode[errorResponse](t, body).Error)
}

func TestDrawUnavailableMapsTo503(t *testing.T) {
	env := newTestEnv(t, "KS 9C QH 7D")
	token := env.signup(t, "alice")

	env.source.Fail(1)
	status, body := env.do(t, http.MethodPost, "/api/rounds", token, startRequest{Stake: 10})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "draw_unavailable", decode[errorResponse](t, body).Error)

	status, body = env.do(t, http.MethodGet, "/api/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1000), decode[accountView](t, body).Balance)
}

func TestForeignRoundIsNotFound(t *testing.T) {
	env := newTestEnv(t, "KS 9C QH 7D")
	alice := env.signup(t, "alice")
	mallory := env.signup(t, "mallory")

	status, body := env.do(t, http.MethodPost, "/api/rounds", alice, startRequest{Stake: 10})
	require.Equal(t, http.StatusCreated, status)
	id := decode[roundResponse](t, body).Round.ID

	status, body = env.do(t, http.MethodPost, "/api/rounds/"+id+"/surrender", mallory, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "round_not_found", decode[errorResponse](t, body).Error)

	status, _ = env.do(t, http.MethodGet, "/api/rounds/"+id, mallory, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t, "KS 9C QH 9D")
	alice := env.signup(t, "alice")
	env.signup(t, "bob")

	status, body := env.do(t, http.MethodPost, "/api/rounds", alice, startRequest{Stake: 100})
	require.Equal(t, http.StatusCreated, status)
	id := decode[roundResponse](t, body).Round.ID
	status, _ = env.do(t, http.MethodPost, "/api/rounds/"+id+"/stand", alice, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, "/api/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, status)
	board := decode[[]standingView](t, body)
	require.Len(t, board, 2)
	assert.Equal(t, "alice", board[0].Username)
	assert.Equal(t, int64(1100), board[0].Balance)
	assert.Equal(t, int64(1), board[0].Wins)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "bob", board[1].Username)

	status, _ = env.do(t, http.MethodGet, "/api/leaderboard?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSettlementFeed(t *testing.T) {
	env := newTestEnv(t, "KS 9C QH 7D")
	token := env.signup(t, "alice")

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	status, body := env.do(t, http.MethodPost, "/api/rounds", token, startRequest{Stake: 100})
	require.Equal(t, http.StatusCreated, status)
	id := decode[roundResponse](t, body).Round.ID
	status, _ = env.do(t, http.MethodPost, "/api/rounds/"+id+"/surrender", token, nil)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event SettlementEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "round_settled", event.Type)
	assert.Equal(t, "alice", event.Username)
	assert.Equal(t, id, event.Round.ID)
	assert.Equal(t, "surrendered", event.Round.Outcome)
	assert.Equal(t, int64(50), event.Round.Payout)
	assert.Equal(t, int64(950), event.Balance)
}

func TestShutdownClosesFeed(t *testing.T) {
	env := newTestEnv(t, "")
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	env.hub.Close()
	assert.Zero(t, env.hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestErrorStatusDefaultsToInternal(t *testing.T) {
	status, code := errorStatus(io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)
}
