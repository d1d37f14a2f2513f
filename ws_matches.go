package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"gitea.kood.tech/petrkubec/match-me/engine/events"
	"gitea.kood.tech/petrkubec/match-me/engine/logging"
	"gitea.kood.tech/petrkubec/match-me/engine/matching"
	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
)

// ServerEvent is one frame on /ws/matches.
type ServerEvent struct {
	Type string `json:"type"` // "notification" | "info"
	Data any    `json:"data,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan ServerEvent
}

// Hub tracks the websocket clients of this instance per user and receives
// notifications from the event bus.
type Hub struct {
	clientsByUser map[uuid.UUID]map[*Client]bool
	mu            sync.RWMutex
	upgrader      websocket.Upgrader
	log           zerolog.Logger
	dropLog       *rate.Sometimes
}

var _ events.Sink = (*Hub)(nil)

func newHub(origins []string) *Hub {
	return &Hub{
		clientsByUser: make(map[uuid.UUID]map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowedOrigin(origins),
		},
		log:     logging.Component("websocket"),
		dropLog: &rate.Sometimes{Interval: 10 * time.Second},
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*Client]bool)
	}
	h.clientsByUser[c.userID][c] = true
	metrics.WebsocketClients.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		if _, ok := peers[c]; !ok {
			return
		}
		delete(peers, c)
		close(c.send)
		metrics.WebsocketClients.Dec()
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
}

// Deliver implements events.Sink.
func (h *Hub) Deliver(evt matching.NotificationEvent) int {
	return h.sendToUser(evt.RecipientID, ServerEvent{Type: "notification", Data: evt})
}

// sendToUser queues evt on every connection of userID. A full buffer drops
// the event for that connection.
func (h *Hub) sendToUser(userID uuid.UUID, evt ServerEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.clientsByUser[userID] {
		select {
		case c.send <- evt:
			sent++
		default:
			h.dropLog.Do(func() {
				h.log.Warn().Str("user_id", userID.String()).Msg("client buffer full, dropping events")
			})
		}
	}
	return sent
}

func (h *Hub) connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userID])
}

// Serve keeps the hub under supervision and disconnects every client on
// shutdown.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()
	h.mu.Lock()
	var all []*Client
	for _, peers := range h.clientsByUser {
		for c := range peers {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
	return ctx.Err()
}

func (h *Hub) String() string { return "websocket-hub" }

// GET /ws/matches
func wsMatchesHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Debug().Err(err).Str("user_id", userID.String()).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			userID: userID,
			conn:   conn,
			send:   make(chan ServerEvent, 16),
		}
		h.register(client)

		// Announce connection to this client
		client.send <- ServerEvent{Type: "info", Data: "connected"}

		go h.clientWriter(client)
		h.clientReader(client)
	}
}

// clientReader only services pings and detects disconnects; the feed is
// server to client.
func (h *Hub) clientReader(c *Client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) clientWriter(c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			// ping to keep the connection alive
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
