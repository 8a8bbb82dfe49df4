package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/logger"
	"github.com/xiaot623/agentui/internal/session"
)

// Broker is the part of the broker the push endpoint needs.
type Broker interface {
	OnClientConnect(sessionID string, ch session.Channel) error
	OnClientDisconnect(sessionID string, ch session.Channel)
}

// Server upgrades HTTP requests to push channels.
type Server struct {
	broker   Broker
	cfg      Config
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(broker Broker, cfg Config, log *logger.Logger) *Server {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}

	return &Server{
		broker: broker,
		cfg:    cfg,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Sessions are not authenticated; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the push endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
}

// HandleWebSocket serves GET /ws?sessionId=... until the client goes away.
func (s *Server) HandleWebSocket(c echo.Context) error {
	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "sessionId is required"})
	}

	wsConn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("failed to upgrade websocket", zap.Error(err))
		// The upgrader has already written the error response.
		return nil
	}

	conn := newConnection(wsConn, sessionID, s.cfg, s.log)
	go conn.writePump()

	if err := s.broker.OnClientConnect(sessionID, conn); err != nil {
		conn.Close()
		return nil
	}
	defer s.broker.OnClientDisconnect(sessionID, conn)

	conn.readPump()
	return nil
}
