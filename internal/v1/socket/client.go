// Package socket drives one websocket connection per Client.
//
// Each client runs two goroutines: readPump decodes inbound frames and
// routes them through the session state machine, writePump drains the
// bounded outbound queue. Everything a room engine knows about a client is
// the small types.ClientInterface surface; the socket side stays the only
// owner of the underlying connection.
package socket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pier0x/bottel/internal/v1/engine"
	"github.com/pier0x/bottel/internal/v1/metrics"
	"github.com/pier0x/bottel/internal/v1/types"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error) // Read the next message from the connection
	WriteMessage(messageType int, data []byte) error     // Write a message to the connection
	Close() error                                        // Close the connection
	SetWriteDeadline(t time.Time) error
}

// Client is one socket's session. It implements types.ClientInterface.
type Client struct {
	conn   wsConnection
	srv    *Server
	connID string

	send      chan []byte
	closeOnce sync.Once

	mu     sync.RWMutex
	ident  *types.Identity // nil until a successful auth
	room   *engine.Room    // nil until a join
	closed bool
}

func newClient(conn wsConnection, srv *Server, connID string) *Client {
	return &Client{
		conn:   conn,
		srv:    srv,
		connID: connID,
		send:   make(chan []byte, sendBuffer),
	}
}

// ConnID satisfies types.ClientInterface.
func (c *Client) ConnID() string { return c.connID }

// Send satisfies types.ClientInterface. It never blocks; when the outbound
// queue is full the frame is dropped and the client resyncs on its next
// join.
func (c *Client) Send(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	// The queue can be closed between the check and the send; recovering
	// beats holding a lock across a channel operation.
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("dropped frame for closing client", "connId", c.connID)
		}
	}()

	select {
	case c.send <- data:
	default:
		slog.Warn("client send queue full, dropping frame", "connId", c.connID)
	}
}

// Disconnect satisfies types.ClientInterface. Closing the connection makes
// readPump exit, which performs the full cleanup exactly once.
func (c *Client) Disconnect() {
	c.conn.Close()
}

func (c *Client) identity() *types.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ident
}

func (c *Client) setIdentity(ident *types.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ident = ident
}

func (c *Client) currentRoom() *engine.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) setRoom(r *engine.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = r
}

// detachFromRoom dispatches Detach to whatever engine the socket is
// attached to, at most once per attachment.
func (c *Client) detachFromRoom() {
	c.mu.Lock()
	room := c.room
	c.room = nil
	c.mu.Unlock()
	if room != nil {
		room.Detach(c)
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// readPump continuously processes incoming frames until the socket closes.
func (c *Client) readPump() {
	defer func() {
		c.detachFromRoom()
		c.conn.Close()
		c.closeSend()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.route(data)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			slog.Error("error writing message", "connId", c.connID, "error", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
