package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentui/internal/broker"
	"github.com/xiaot623/agentui/internal/domain"
)

// defaultEventLimit caps session audit listings; a limit of 0 returns everything.
const defaultEventLimit = 50

// CreateRequest handles POST /api/requests.
func (h *Handler) CreateRequest(c echo.Context) error {
	var body domain.CreateRequestBody
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	req, err := h.broker.CreateRequest(c.Request().Context(), broker.CreateParams{
		Type:           body.Type,
		SessionID:      body.SessionID,
		Input:          body.Input,
		TimeoutSeconds: body.Timeout,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, req)
}

// GetRequest handles GET /api/requests/:id.
func (h *Handler) GetRequest(c echo.Context) error {
	req, err := h.broker.GetRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// SubmitResponse handles POST /api/requests/:id/response.
func (h *Handler) SubmitResponse(c echo.Context) error {
	var body domain.SubmitResponseBody
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	req, err := h.broker.SubmitResponse(c.Request().Context(), c.Param("id"), body.Output)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// WaitRequest handles GET /api/requests/:id/wait?timeout=60.
// It answers 200 with the request once it is terminal, whatever the terminal status.
func (h *Handler) WaitRequest(c echo.Context) error {
	var timeout time.Duration
	if raw := c.QueryParam("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 || int64(secs) > domain.MaxTimeoutSeconds {
			return errorJSON(c, http.StatusBadRequest, "timeout must be a non-negative number of seconds")
		}
		timeout = time.Duration(secs) * time.Second
	}

	req, err := h.broker.WaitForCompletion(c.Request().Context(), c.Param("id"), timeout)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// CancelRequest handles POST /api/requests/:id/cancel.
func (h *Handler) CancelRequest(c echo.Context) error {
	// The body is optional; Bind skips empty bodies.
	var body domain.CancelRequestBody
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	req, err := h.broker.CancelRequest(c.Request().Context(), c.Param("id"), body.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// GetRequestEvents handles GET /api/requests/:id/events.
func (h *Handler) GetRequestEvents(c echo.Context) error {
	events, err := h.broker.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// GetSessionRequests handles GET /api/sessions/:session_id/requests.
func (h *Handler) GetSessionRequests(c echo.Context) error {
	reqs := h.broker.SessionRequests(c.Request().Context(), c.Param("session_id"))
	return c.JSON(http.StatusOK, map[string]any{"requests": reqs})
}

// GetSessionEvents handles GET /api/sessions/:session_id/events?limit=50.
func (h *Handler) GetSessionEvents(c echo.Context) error {
	limit := defaultEventLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return errorJSON(c, http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	events, err := h.broker.SessionHistory(c.Request().Context(), c.Param("session_id"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}
