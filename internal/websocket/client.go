package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aaronwang/live-auction/internal/identity"
	"github.com/aaronwang/live-auction/internal/models"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8 << 10
)

// Client is one websocket connection. It is the room session for that
// connection: the coordinator enqueues frames with Send and the write pump
// drains them in order.
type Client struct {
	id       string
	identity identity.Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger

	mu   sync.RWMutex
	role models.Role
}

func newClient(id string, ident identity.Identity, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:       id,
		identity: ident,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		logger:   logger,
		role:     ident.Role,
	}
}

// ID implements room.Session
func (c *Client) ID() string { return c.id }

// ParticipantRef implements room.Session
func (c *Client) ParticipantRef() string { return c.identity.ParticipantRef }

// Role implements room.Session
func (c *Client) Role() models.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// useRole sets the session role for the next room, never above the
// resolved identity's role, and returns the role it replaced
func (c *Client) useRole(requested models.Role) models.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.role
	c.role = c.identity.Role.Downgrade(requested)
	return previous
}

func (c *Client) restoreRole(role models.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}

// Send enqueues a frame without blocking. A client that cannot keep up
// is disconnected so it resyncs from a snapshot on reconnect.
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn("send buffer full, closing connection", "session", c.id, "participant", c.identity.ParticipantRef)
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// writePump pumps messages from the send buffer to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			// keep-alive ping
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump delivers inbound frames to handle until the connection ends
func (c *Client) readPump(handle func(data []byte)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "session", c.id, "error", err)
			}
			return
		}
		handle(message)
	}
}
