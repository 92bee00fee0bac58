// Package websocket is the network transport's server side: a hub of
// rooms keyed by game code, fanning state-change events out to every
// connected client and feeding incoming commands to the game service.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"quiz-live/internal/errors"
	"quiz-live/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins. Adjust this in production!
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GameService is the authoritative command handler behind the hub.
type GameService interface {
	HandleCommand(msg transport.Message) error
	SetPresence(code, playerID string, connected bool)
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	service GameService
	log     *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        slog.Default(),
	}
}

func (h *Hub) SetGameService(service GameService) {
	h.service = service
}

// Run processes client registration on a single goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[client.gameCode]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.gameCode] = room
			}
			room[client] = true
			h.mu.Unlock()
			h.log.Info("ws client joined room", "code", client.gameCode)

		case client := <-h.unregister:
			h.dropClient(client)
		}
	}
}

func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	registered := false
	if room, ok := h.rooms[client.gameCode]; ok {
		if _, registered = room[client]; registered {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, client.gameCode)
			}
		}
	}
	playerID := client.playerID
	if registered {
		client.closed = true
		close(client.send)
		close(client.done)
	}
	h.mu.Unlock()

	if !registered {
		return
	}

	// A dropped connection flips the player's connectivity flag; their
	// identity and answers survive for a possible rejoin.
	if playerID != "" && h.service != nil {
		h.service.SetPresence(client.gameCode, playerID, false)
	}
	h.log.Info("ws client left room", "code", client.gameCode, "player", playerID)
}

// Publish implements the game service's broadcaster over the hub: the
// event is wrapped in the wire envelope and queued on every room member's
// send channel, in call order.
func (h *Hub) Publish(code, event string, payload any) {
	msg, err := transport.NewMessage(event, payload)
	if err != nil {
		h.log.Error("ws marshal event", "event", event, "error", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws marshal envelope", "event", event, "error", err)
		return
	}

	// Sends happen under the read lock: a client's send channel is only
	// closed under the write lock, together with its removal from the room,
	// so every channel reached here is still open.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[code] {
		select {
		case client.send <- data:
		default:
			// Slow consumer: drop the connection rather than block the
			// whole room.
			h.log.Warn("ws send buffer full, dropping client", "code", code)
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	gameCode string

	// playerID and closed are guarded by the hub mutex: the readPump writes
	// the id while a slow-consumer eviction may be dropping the client from
	// another goroutine.
	playerID string
	closed   bool
}

func (c *Client) setPlayer(playerID string) {
	c.hub.mu.Lock()
	c.playerID = playerID
	c.hub.mu.Unlock()
}

func NewClient(hub *Hub, conn *websocket.Conn, gameCode string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		gameCode: gameCode,
	}
}

// HandleWebSocket upgrades the HTTP connection and registers the client in
// its game room.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameCode := mux.Vars(r)["gameCode"]
	if gameCode == "" {
		http.Error(w, "missing game code", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(h, conn, gameCode)
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("ws unexpected close", "code", c.gameCode, "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg transport.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.log.Error("ws decode command", "error", err)
		return
	}

	// Remember which player this connection speaks for, so a dropped
	// connection can flip their presence flag.
	switch msg.Type {
	case transport.CmdJoinGame:
		var p transport.JoinGamePayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			c.setPlayer(p.PlayerID)
		}
	case transport.CmdCreateGame:
		var p transport.CreateGamePayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			c.setPlayer(p.HostID)
		}
	}

	if c.hub.service == nil {
		return
	}

	if err := c.hub.service.HandleCommand(msg); err != nil {
		e := errors.Convert(err)
		c.sendError(e)
	}
}

// sendError reports a command failure back to the issuing client only.
func (c *Client) sendError(e *errors.Error) {
	msg, err := transport.NewMessage(transport.EventError, transport.ErrorPayload{
		Code:    int(e.Code),
		Message: e.Message,
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	// The client may have been evicted as a slow consumer while its
	// readPump was still dispatching; never write to the closed channel.
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
