package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/agentui/internal/domain"
)

// EventHandler receives the events pushed to a watched session.
type EventHandler func(domain.Event)

// Watch subscribes to the push channel of a session and hands every event to
// handler. A dropped or refused connection is retried after the reconnect
// delay, indefinitely. Watch returns nil once ctx is done.
func (c *Client) Watch(ctx context.Context, sessionID string, handler EventHandler) error {
	target, err := c.wsURL(sessionID)
	if err != nil {
		return err
	}
	log := c.log.WithSessionID(sessionID)

	for {
		err := c.watchOnce(ctx, target, handler)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("push channel lost, reconnecting", zap.Error(err), zap.Duration("delay", c.reconnectDelay))

		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Client) watchOnce(ctx context.Context, target string, handler EventHandler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read: %w", err)
		}
		var evt domain.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			c.log.Warn("ignoring malformed event", zap.Error(err))
			continue
		}
		handler(evt)
	}
}

func (c *Client) wsURL(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"sessionId": {sessionID}}.Encode()
	return u.String(), nil
}
