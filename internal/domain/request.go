package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// DefaultTimeoutSeconds is applied when a request is created without a timeout.
const DefaultTimeoutSeconds = 300

// MaxTimeoutSeconds is the largest timeout that still fits in a time.Duration.
const MaxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

// DefaultWaitSeconds is the wait budget used when a waiter does not supply one.
const DefaultWaitSeconds = 60

// InteractionRequest is one question posed to a human.
// JSON field names match what the web client expects.
type InteractionRequest struct {
	ID          string          `json:"id"`
	Type        WidgetType      `json:"type"`
	SessionID   string          `json:"sessionId"`
	Input       json.RawMessage `json:"input"`
	Output      json.RawMessage `json:"output,omitempty"`
	Status      RequestStatus   `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Error       string          `json:"error,omitempty"`
}

// Clone returns a copy that shares no mutable memory with r.
func (r InteractionRequest) Clone() InteractionRequest {
	out := r
	out.Input = cloneRaw(r.Input)
	out.Output = cloneRaw(r.Output)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Expired reports whether the request is still pending past its expiry.
func (r InteractionRequest) Expired(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.ExpiresAt)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

// IsEmptyJSON reports whether raw carries no value (absent or JSON null).
func IsEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Event is a message pushed to the channels of a session.
type Event struct {
	Type    EventType          `json:"type"`
	Request InteractionRequest `json:"request"`
}

// HistoryEvent is one entry of a request's audit trail.
type HistoryEvent struct {
	EventID   string           `json:"eventId"`
	RequestID string           `json:"requestId"`
	SessionID string           `json:"sessionId"`
	Type      HistoryEventType `json:"type"`
	Status    RequestStatus    `json:"status"`
	Ts        time.Time        `json:"ts"`
}

// CreateRequestBody is the body of POST /api/requests.
type CreateRequestBody struct {
	Type      WidgetType      `json:"type"`
	SessionID string          `json:"sessionId"`
	Input     json.RawMessage `json:"input"`
	Timeout   int             `json:"timeout,omitempty"` // seconds
}

// SubmitResponseBody is the body of POST /api/requests/:id/response.
type SubmitResponseBody struct {
	Output json.RawMessage `json:"output"`
}

// CancelRequestBody is the body of POST /api/requests/:id/cancel.
type CancelRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorResponse is the JSON error body returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UploadImageResponse is returned by POST /api/images.
type UploadImageResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}
