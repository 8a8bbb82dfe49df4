// Package ws serves the per-session push channel over WebSocket.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/agentui/internal/logger"
)

var (
	// ErrBufferFull is returned when a slow peer lets its queue fill up. The connection is closed.
	ErrBufferFull = errors.New("send buffer full")

	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("connection closed")
)

// Config holds connection timing and sizing.
type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultConfig returns the settings used for zero fields.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 65536,
		SendBuffer:     256,
	}
}

// Connection is one browser client. It implements session.Channel.
type Connection struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	cfg       Config
	log       *logger.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, sessionID string, cfg Config, log *logger.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:        id,
		sessionID: sessionID,
		conn:      conn,
		cfg:       cfg,
		log:       log.WithSessionID(sessionID).WithFields(zap.String("channel_id", id)),
		send:      make(chan []byte, cfg.SendBuffer),
		done:      make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// Send queues data for the write pump without blocking.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.log.Warn("send buffer full, closing connection")
		c.Close()
		return ErrBufferFull
	}
}

// Close asks the write pump to send a close frame and drop the socket.
// It is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// writePump is the only writer of data frames and owns closing the socket.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the read deadline fresh and discards client messages.
// It returns when the peer goes away.
func (c *Connection) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", zap.Error(err))
			}
			return
		}
	}
}
