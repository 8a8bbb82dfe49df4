package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentui/internal/broker"
	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/logger"
	"github.com/xiaot623/agentui/internal/session"
	"github.com/xiaot623/agentui/internal/store"
)

func newTestServer(t *testing.T) (*broker.Broker, *httptest.Server) {
	t.Helper()
	b := broker.New(store.New(), session.NewRegistry(), broker.Config{}, broker.WithLogger(logger.Nop()))

	e := echo.New()
	NewServer(b, Config{}, logger.Nop()).RegisterRoutes(e)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return b, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?sessionId=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt domain.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func createConfirm(t *testing.T, b *broker.Broker, sessionID string) domain.InteractionRequest {
	t.Helper()
	req, err := b.CreateRequest(context.Background(), broker.CreateParams{
		Type:      domain.WidgetConfirm,
		SessionID: sessionID,
		Input:     json.RawMessage(`{"title":"Deploy?"}`),
	})
	require.NoError(t, err)
	return req
}

func TestCatchUpThenLiveEvents(t *testing.T) {
	b, srv := newTestServer(t)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, createConfirm(t, b, "S").ID)
	}

	conn := dial(t, srv, "S")
	for i := 0; i < 3; i++ {
		evt := readEvent(t, conn)
		assert.Equal(t, domain.EventTypeNewRequest, evt.Type)
		assert.Equal(t, ids[i], evt.Request.ID)
	}

	_, err := b.SubmitResponse(context.Background(), ids[0], json.RawMessage(`{"approved":true}`))
	require.NoError(t, err)

	evt := readEvent(t, conn)
	assert.Equal(t, domain.EventTypeRequestCompleted, evt.Type)
	assert.Equal(t, ids[0], evt.Request.ID)
	assert.JSONEq(t, `{"approved":true}`, string(evt.Request.Output))

	live := createConfirm(t, b, "S")
	evt = readEvent(t, conn)
	assert.Equal(t, domain.EventTypeNewRequest, evt.Type)
	assert.Equal(t, live.ID, evt.Request.ID)
}

func TestRefusesMissingSession(t *testing.T) {
	_, srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisconnectDeregisters(t *testing.T) {
	b, srv := newTestServer(t)

	conn := dial(t, srv, "S")
	assert.Eventually(t, func() bool { return b.Stats().Connections == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return b.Stats().Connections == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, b.Stats().Sessions)
}

func TestClientMessagesAreIgnored(t *testing.T) {
	b, srv := newTestServer(t)
	conn := dial(t, srv, "S")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)))
	assert.Eventually(t, func() bool { return b.Stats().Connections == 1 }, 2*time.Second, 10*time.Millisecond)

	req := createConfirm(t, b, "S")
	evt := readEvent(t, conn)
	assert.Equal(t, req.ID, evt.Request.ID)
}

func TestSendOnFullBufferClosesConnection(t *testing.T) {
	c := &Connection{
		id:   "c1",
		log:  logger.Nop(),
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}

	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrBufferFull)

	select {
	case <-c.Done():
	default:
		t.Fatal("connection should be closed after overflow")
	}
	assert.ErrorIs(t, c.Send([]byte("c")), ErrClosed)
}
