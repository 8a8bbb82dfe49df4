// Package client provides an HTTP and WebSocket client for the agentui broker.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/logger"
)

// DefaultReconnectDelay is the pause between two push channel connection attempts.
const DefaultReconnectDelay = 3 * time.Second

// Client talks to a running broker.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	reconnectDelay time.Duration
	log            *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The default has no global timeout
// because waits are long polls bounded by their own timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithReconnectDelay sets the pause used by Watch between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// WithLogger sets the logger used by Watch.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a new client for the broker at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     &http.Client{},
		reconnectDelay: DefaultReconnectDelay,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateParams describes a request to create.
type CreateParams struct {
	Type           domain.WidgetType
	SessionID      string
	Input          any
	TimeoutSeconds int
}

// CreateRequest posts a new interaction request.
func (c *Client) CreateRequest(ctx context.Context, p CreateParams) (domain.InteractionRequest, error) {
	input, err := json.Marshal(p.Input)
	if err != nil {
		return domain.InteractionRequest{}, fmt.Errorf("failed to marshal input: %w", err)
	}
	body := domain.CreateRequestBody{
		Type:      p.Type,
		SessionID: p.SessionID,
		Input:     input,
		Timeout:   p.TimeoutSeconds,
	}

	var out domain.InteractionRequest
	if err := c.doJSON(ctx, http.MethodPost, "/api/requests", body, &out); err != nil {
		return domain.InteractionRequest{}, err
	}
	return out, nil
}

// GetRequest fetches a request by id.
func (c *Client) GetRequest(ctx context.Context, id string) (domain.InteractionRequest, error) {
	var out domain.InteractionRequest
	if err := c.doJSON(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(id), nil, &out); err != nil {
		return domain.InteractionRequest{}, err
	}
	return out, nil
}

// SubmitResponse answers a pending request. output is marshalled as JSON.
func (c *Client) SubmitResponse(ctx context.Context, id string, output any) (domain.InteractionRequest, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return domain.InteractionRequest{}, fmt.Errorf("failed to marshal output: %w", err)
	}

	var out domain.InteractionRequest
	path := "/api/requests/" + url.PathEscape(id) + "/response"
	if err := c.doJSON(ctx, http.MethodPost, path, domain.SubmitResponseBody{Output: raw}, &out); err != nil {
		return domain.InteractionRequest{}, err
	}
	return out, nil
}

// CancelRequest withdraws a pending request.
func (c *Client) CancelRequest(ctx context.Context, id, reason string) (domain.InteractionRequest, error) {
	var out domain.InteractionRequest
	path := "/api/requests/" + url.PathEscape(id) + "/cancel"
	if err := c.doJSON(ctx, http.MethodPost, path, domain.CancelRequestBody{Reason: reason}, &out); err != nil {
		return domain.InteractionRequest{}, err
	}
	return out, nil
}

// WaitRequest long-polls a request once. It returns domain.ErrWaitTimeout when
// the server gives up before the request reaches a terminal status.
func (c *Client) WaitRequest(ctx context.Context, id string, waitSeconds int) (domain.InteractionRequest, error) {
	if waitSeconds <= 0 {
		waitSeconds = domain.DefaultWaitSeconds
	}
	path := "/api/requests/" + url.PathEscape(id) + "/wait?timeout=" + strconv.Itoa(waitSeconds)

	var out domain.InteractionRequest
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return domain.InteractionRequest{}, err
	}
	return out, nil
}

// Await waits for a request to finish. With waitSeconds > 0 it polls once;
// otherwise it keeps polling until the request finishes or ctx ends.
func (c *Client) Await(ctx context.Context, id string, waitSeconds int) (domain.InteractionRequest, error) {
	if waitSeconds > 0 {
		return c.WaitRequest(ctx, id, waitSeconds)
	}
	for {
		req, err := c.WaitRequest(ctx, id, domain.DefaultWaitSeconds)
		if errors.Is(err, domain.ErrWaitTimeout) && ctx.Err() == nil {
			continue
		}
		return req, err
	}
}

// RequestEvents returns the audit trail of a request.
func (c *Client) RequestEvents(ctx context.Context, id string) ([]domain.HistoryEvent, error) {
	var out struct {
		Events []domain.HistoryEvent `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(id)+"/events", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// SessionEvents returns the latest limit audit events of a session.
func (c *Client) SessionEvents(ctx context.Context, sessionID string, limit int) ([]domain.HistoryEvent, error) {
	var out struct {
		Events []domain.HistoryEvent `json:"events"`
	}
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/events?limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// SessionRequests lists the retained requests of a session.
func (c *Client) SessionRequests(ctx context.Context, sessionID string) ([]domain.InteractionRequest, error) {
	var out struct {
		Requests []domain.InteractionRequest `json:"requests"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/requests", nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// UploadImage uploads an image for use in image widgets. ttlSeconds of zero
// keeps the server default.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader, ttlSeconds int) (domain.UploadImageResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if ttlSeconds > 0 {
		if err := w.WriteField("ttlSeconds", strconv.Itoa(ttlSeconds)); err != nil {
			return domain.UploadImageResponse{}, fmt.Errorf("failed to write ttl field: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return domain.UploadImageResponse{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return domain.UploadImageResponse{}, fmt.Errorf("failed to copy image: %w", err)
	}
	if err := w.Close(); err != nil {
		return domain.UploadImageResponse{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/images", &buf)
	if err != nil {
		return domain.UploadImageResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out domain.UploadImageResponse
	if err := c.do(req, &out); err != nil {
		return domain.UploadImageResponse{}, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError turns an error response back into the matching domain error.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	msg := strings.TrimSpace(string(data))
	var body domain.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		sentinel = domain.ErrInvalidInput
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrAlreadyTerminal
	case http.StatusRequestTimeout:
		sentinel = domain.ErrWaitTimeout
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w (status %d): %s", sentinel, resp.StatusCode, msg)
}
