package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lp-intermediary/swapd/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventType distinguishes the kinds of status events a client can subscribe
// to over the WebSocket status-streaming transport, spec.md §6.
type EventType string

const (
	// EventSwapStatus fires whenever a watched swap's state advances.
	EventSwapStatus EventType = "swap_status"
)

// WSEvent is one event pushed to subscribed clients.
type WSEvent struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// WSSubscription is a client's subscribe/unsubscribe request, filtered by
// payment hash: a client with at least one subscription receives updates
// only for those hashes; a client with none receives every update.
type WSSubscription struct {
	Action       string   `json:"action"` // "subscribe" or "unsubscribe"
	PaymentHashes []string `json:"payment_hashes"`
}

// WSClient is one connected status-streaming client.
type WSClient struct {
	conn    *websocket.Conn
	send    chan []byte
	hashes  map[string]bool
	mu      sync.RWMutex
	hub     *WSHub
}

// WSHub fans swap status updates out to subscribed clients, adapted from the
// teacher's peer/node event hub.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan *wsBroadcast
	register   chan *WSClient
	unregister chan *WSClient
	log        *logging.Logger
	mu         sync.RWMutex
}

type wsBroadcast struct {
	paymentHash string
	event       *WSEvent
}

// NewWSHub creates an idle hub; call Run to start its event loop.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan *wsBroadcast, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		log:        logging.GetDefault().Component("ws"),
	}
}

// Run is the hub's event loop; call it in its own goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("websocket client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug("websocket client disconnected", "clients", len(h.clients))

		case b := <-h.broadcast:
			data, err := json.Marshal(b.event)
			if err != nil {
				h.log.Error("failed to marshal status event", "err", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				client.mu.RLock()
				subscribed := client.hashes[b.paymentHash] || len(client.hashes) == 0
				client.mu.RUnlock()
				if !subscribed {
					continue
				}

				select {
				case client.send <- data:
				default:
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast pushes a swap-status update to every client subscribed to
// paymentHash (hex-encoded), called by swapcore whenever a state transition
// commits.
func (h *WSHub) Broadcast(paymentHashHex string, data interface{}) {
	b := &wsBroadcast{
		paymentHash: paymentHashHex,
		event:       &WSEvent{Type: EventSwapStatus, Data: data, Timestamp: time.Now().Unix()},
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn("broadcast channel full, dropping status event", "payment_hash", paymentHashHex)
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWS upgrades to a WebSocket connection and registers it with the hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		hashes: make(map[string]bool),
		hub:    s.wsHub,
	}

	s.wsHub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", "err", err)
			}
			break
		}

		var sub WSSubscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.handleSubscription(&sub)
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleSubscription(sub *WSSubscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range sub.PaymentHashes {
		switch sub.Action {
		case "subscribe":
			c.hashes[h] = true
		case "unsubscribe":
			delete(c.hashes, h)
		}
	}
}
