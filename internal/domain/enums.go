// Package domain defines the core domain models for the agentui broker.
package domain

// RequestStatus represents the lifecycle state of an interaction request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusTimeout   RequestStatus = "timeout"
	StatusError     RequestStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusTimeout, StatusError:
		return true
	}
	return false
}

// WidgetType determines the shape of a request's input and output.
type WidgetType string

const (
	WidgetConfirm WidgetType = "confirm"
	WidgetSelect  WidgetType = "select"
	WidgetForm    WidgetType = "form"
	WidgetUpload  WidgetType = "upload"
	WidgetTable   WidgetType = "table"
	WidgetImage   WidgetType = "image"
)

// WidgetTypes lists the closed set of supported widget types.
var WidgetTypes = []WidgetType{
	WidgetConfirm,
	WidgetSelect,
	WidgetForm,
	WidgetUpload,
	WidgetTable,
	WidgetImage,
}

// EventType is the type of a message pushed to connected clients.
type EventType string

const (
	EventTypeNewRequest       EventType = "new_request"
	EventTypeRequestCompleted EventType = "request_completed"
)

// HistoryEventType is the type of an audit trail entry.
type HistoryEventType string

const (
	HistoryCreated   HistoryEventType = "created"
	HistoryCompleted HistoryEventType = "completed"
	HistoryCancelled HistoryEventType = "cancelled"
	HistoryExpired   HistoryEventType = "expired"
	HistoryEvicted   HistoryEventType = "evicted"
)
