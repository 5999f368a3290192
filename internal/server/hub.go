package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/blackjack"
	"github.com/lox/blackjack/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512

	sendBuffer = 64
)

// SettlementEvent is broadcast to feed clients for every settled round.
type SettlementEvent struct {
	Type     string    `json:"type"`
	Username string    `json:"username"`
	Balance  int64     `json:"balance"`
	Round    roundView `json:"round"`
}

// Hub fans settled rounds out to websocket clients. It implements
// blackjack.Notifier.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	closed  bool
}

var _ blackjack.Notifier = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "feed").Logger(),
		clients: make(map[*feedClient]struct{}),
	}
}

// RoundSettled broadcasts the settlement. Clients whose buffers are full are
// dropped rather than blocking the engine.
func (h *Hub) RoundSettled(r blackjack.Round, a blackjack.Account) {
	payload, err := json.Marshal(SettlementEvent{
		Type:     "round_settled",
		Username: a.Username,
		Balance:  a.Balance,
		Round:    newRoundView(r),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode settlement event")
		return
	}

	h.mu.RLock()
	var slow []*feedClient
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	recipients := len(h.clients) - len(slow)
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Msg("feed client buffer full, disconnecting")
		h.remove(c)
	}
	h.logger.Debug().Str("round", r.ID).Int("recipients", recipients).Msg("broadcast settlement")
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	c := &feedClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.FeedClients(1)
	h.logger.Info().Int("total", total).Msg("feed client connected")

	go c.writePump()
	go func() {
		c.readPump()
		h.remove(c)
	}()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*feedClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	metrics.FeedClients(-1)
	h.logger.Info().Int("total", total).Msg("feed client disconnected")
}

// feedClient is one websocket subscriber. The feed is server-to-client
// only; reads exist to process pongs and notice disconnects.
type feedClient struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *feedClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *feedClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
