// Package client provides a reusable WebSocket client for the chat server.
// It connects using gobwas/ws (the same library the server uses),
// automatically handles the register -> registered handshake, rejoins rooms
// after a reconnect, and tracks per-connection metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/NoorMohdDev/Chat-App/internal/protocol"
)

// Config controls connection and reconnection behavior.
type Config struct {
	URL    string
	UserID string
	// ReconnectAttempts is the number of redial attempts after an
	// unexpected disconnect before the client gives up.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// DefaultConfig returns a Config with sensible defaults for the given
// server URL and user.
func DefaultConfig(url, userID string) Config {
	return Config{
		URL:               url,
		UserID:            userID,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
	}
}

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesReceived int
	MessagesSent     int
	Reconnects       int
	Errors           int
}

// Client represents a single user connection to the chat server. It manages
// the WebSocket lifecycle, dispatches incoming messages to registered
// handlers, and re-establishes its registration and room memberships after a
// reconnect.
type Client struct {
	cfg Config

	mu         sync.Mutex
	conn       net.Conn
	registered bool
	rooms      map[string]struct{}
	metrics    Metrics
	handlers   map[string]func(json.RawMessage)

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the server, sends the register message, and starts a
// background read loop. Handlers registered with On are invoked from that
// loop, so they should not block for extended periods.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c := &Client{
		cfg:      cfg,
		rooms:    make(map[string]struct{}),
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}

	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c.conn = conn
	c.metrics.ConnectLatency = time.Since(start)

	if err := c.send(map[string]string{
		"type":    protocol.TypeRegister,
		"user_id": cfg.UserID,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register: %w", err)
	}

	go c.readLoop(conn)

	return c, nil
}

// Send sends a JSON message to the server. It is goroutine-safe.
func (c *Client) Send(msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(msg)
}

func (c *Client) send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.metrics.MessagesSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Join asks the server to add this connection to a room. The membership is
// remembered so it can be replayed after a reconnect.
func (c *Client) Join(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
	return c.send(map[string]string{
		"type":    protocol.TypeJoinRoom,
		"room_id": roomID,
	})
}

// Leave asks the server to remove this connection from a room.
func (c *Client) Leave(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
	return c.send(map[string]string{
		"type":    protocol.TypeLeaveRoom,
		"room_id": roomID,
	})
}

// On registers a handler for a specific server message type. The handler
// receives the full raw JSON of the message for flexible decoding. Only one
// handler per message type is supported; registering a second handler for the
// same type replaces the first. On must be called before traffic that would
// trigger the handler.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// WaitForRegistered blocks until the server has acknowledged the register
// handshake or the context is cancelled.
func (c *Client) WaitForRegistered(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("connection closed before registration completed")
		case <-ticker.C:
			c.mu.Lock()
			ok := c.registered
			c.mu.Unlock()
			if ok {
				return nil
			}
		}
	}
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		err = c.conn.Close()
		c.mu.Unlock()
	})
	return err
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// readLoop continuously reads WebSocket frames from the server and dispatches
// them to registered handlers. On an unexpected error it attempts to
// reconnect up to cfg.ReconnectAttempts times before giving up.
func (c *Client) readLoop(conn net.Conn) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			select {
			case <-c.done:
				// Connection was intentionally closed; do not count as error.
				return
			default:
			}
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			next, rerr := c.reconnect()
			if rerr != nil {
				c.Close()
				return
			}
			conn = next
			continue
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		c.mu.Lock()
		c.metrics.MessagesReceived++
		if envelope.Type == protocol.TypeRegistered {
			c.registered = true
		}
		handler := c.handlers[envelope.Type]
		c.mu.Unlock()

		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

// reconnect redials the server, re-registers, and replays room memberships.
// It returns the new connection, or an error once all attempts are exhausted.
func (c *Client) reconnect() (net.Conn, error) {
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return nil, fmt.Errorf("client closed")
		case <-time.After(c.cfg.ReconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, _, _, err := ws.Dial(ctx, c.cfg.URL)
		cancel()
		if err != nil {
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.registered = false
		c.metrics.Reconnects++
		regErr := c.send(map[string]string{
			"type":    protocol.TypeRegister,
			"user_id": c.cfg.UserID,
		})
		if regErr == nil {
			for roomID := range c.rooms {
				_ = c.send(map[string]string{
					"type":    protocol.TypeJoinRoom,
					"room_id": roomID,
				})
			}
		}
		c.mu.Unlock()
		if regErr != nil {
			conn.Close()
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("reconnect failed after %d attempts", c.cfg.ReconnectAttempts)
}
