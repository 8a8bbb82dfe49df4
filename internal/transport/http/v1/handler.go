// Package v1 provides the REST handlers of the agentui API.
package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentui/internal/broker"
	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/images"
	"github.com/xiaot623/agentui/internal/metrics"
)

// Handler handles HTTP requests.
type Handler struct {
	broker     *broker.Broker
	images     *images.Store
	metrics    *metrics.Metrics
	defaultTTL time.Duration
}

// Option configures optional parts of the handler.
type Option func(*Handler)

// WithImages enables the image endpoints. ttl applies when an upload sets none.
func WithImages(store *images.Store, ttl time.Duration) Option {
	return func(h *Handler) {
		h.images = store
		h.defaultTTL = ttl
	}
}

// WithMetrics enables GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a new handler.
func NewHandler(b *broker.Broker, opts ...Option) *Handler {
	h := &Handler{broker: b, defaultTTL: time.Hour}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/requests", h.CreateRequest)
	e.GET("/api/requests/:id", h.GetRequest)
	e.POST("/api/requests/:id/response", h.SubmitResponse)
	e.GET("/api/requests/:id/wait", h.WaitRequest)
	e.POST("/api/requests/:id/cancel", h.CancelRequest)
	e.GET("/api/requests/:id/events", h.GetRequestEvents)
	e.GET("/api/sessions/:session_id/requests", h.GetSessionRequests)
	e.GET("/api/sessions/:session_id/events", h.GetSessionEvents)

	if h.images != nil {
		e.POST("/api/images", h.UploadImage)
		e.GET("/api/images/:id", h.GetImage)
	}

	e.GET("/health", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}
}

// Health returns health status and live counts.
func (h *Handler) Health(c echo.Context) error {
	stats := h.broker.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"sessions":    stats.Sessions,
		"connections": stats.Connections,
		"pending":     stats.Pending,
	})
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, domain.ErrorResponse{Error: msg})
}

// respondError maps domain errors onto status codes.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return errorJSON(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return errorJSON(c, http.StatusRequestTimeout, domain.ErrWaitTimeout.Error())
	case errors.Is(err, context.Canceled):
		return errorJSON(c, http.StatusServiceUnavailable, "request cancelled")
	default:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
}
