package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectDelay       = time.Second
	clientWriteWait             = 10 * time.Second
)

// Client is the network backend: a WebSocket connection to the game
// server. On an unexpected disconnect it reconnects with exponential
// backoff (base delay doubling per attempt); when the attempt budget is
// exhausted it emits EventFallback so the caller can switch to the
// in-process backend instead of failing silently.
type Client struct {
	URL string

	// MaxReconnectAttempts and ReconnectDelay tune the backoff. Zero
	// values fall back to the defaults.
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	dialer *websocket.Dialer
	bus    *Bus
	log    *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}
	closed    bool
}

var _ Transport = (*Client)(nil)

func NewClient(url string) *Client {
	return &Client{
		URL:                  url,
		MaxReconnectAttempts: defaultMaxReconnectAttempts,
		ReconnectDelay:       defaultReconnectDelay,
		dialer:               websocket.DefaultDialer,
		bus:                  NewBus(),
		log:                  slog.Default(),
		done:                 make(chan struct{}),
	}
}

// Connect dials the server and starts the read pump.
func (c *Client) Connect() error {
	conn, _, err := c.dialer.Dial(c.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.bus.EmitPayload(EventConnected, nil)
	go c.readPump(conn)
	return nil
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Error("transport: decode server message", "error", err)
			continue
		}
		c.bus.Emit(msg.Type, msg.Payload)
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	c.conn = nil
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}

	c.log.Warn("transport: connection lost", "error", err)
	c.bus.EmitPayload(EventDisconnected, nil)
	go c.reconnect()
}

// reconnect retries with the base delay doubling per attempt. Stopping the
// client cancels future attempts.
func (c *Client) reconnect() {
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	max := c.MaxReconnectAttempts
	if max <= 0 {
		max = defaultMaxReconnectAttempts
	}

	for attempt := 1; attempt <= max; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}
		delay *= 2

		c.log.Info("transport: reconnecting", "attempt", attempt, "max", max)
		if err := c.Connect(); err == nil {
			return
		}
	}

	c.log.Warn("transport: reconnect attempts exhausted, signalling fallback")
	c.bus.EmitPayload(EventFallback, nil)
}

// Send delivers a command over the connection. Returns false when not
// connected; reconnection runs in the background.
func (c *Client) Send(msgType string, payload any) bool {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		c.log.Error("transport: encode command", "type", msgType, "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return false
	}

	c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Error("transport: write command", "type", msgType, "error", err)
		return false
	}
	return true
}

func (c *Client) On(event string, h Handler) (off func()) {
	return c.bus.Subscribe(event, h)
}

// Connected reports whether the connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close shuts the connection down deliberately: no reconnection is
// attempted afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}
