// Package broker coordinates interaction requests between agents and the
// browser clients of a session.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/logger"
	"github.com/xiaot623/agentui/internal/metrics"
	"github.com/xiaot623/agentui/internal/policy"
	"github.com/xiaot623/agentui/internal/session"
	"github.com/xiaot623/agentui/internal/store"
)

// Admission decides whether a creation call is acceptable.
type Admission interface {
	Evaluate(ctx context.Context, input policy.Input) ([]string, error)
}

// History records and reads the lifecycle audit trail.
type History interface {
	RecordEvent(ctx context.Context, event domain.HistoryEvent) error
	ListEvents(ctx context.Context, requestID string) ([]domain.HistoryEvent, error)
	ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]domain.HistoryEvent, error)
}

// Config tunes request lifecycle behavior.
type Config struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration // zero disables the cap
	WaitTimeout    time.Duration
	PollInterval   time.Duration
	SweepInterval  time.Duration
	Retention      time.Duration // zero keeps terminal requests forever
	ExpirePending  bool
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: domain.DefaultTimeoutSeconds * time.Second,
		WaitTimeout:    domain.DefaultWaitSeconds * time.Second,
		PollInterval:   500 * time.Millisecond,
		SweepInterval:  30 * time.Second,
		Retention:      time.Hour,
	}
}

// Option configures optional collaborators.
type Option func(*Broker)

func WithAdmission(a Admission) Option     { return func(b *Broker) { b.admission = a } }
func WithHistory(h History) Option         { return func(b *Broker) { b.history = h } }
func WithMetrics(m *metrics.Metrics) Option { return func(b *Broker) { b.metrics = m } }
func WithLogger(l *logger.Logger) Option   { return func(b *Broker) { b.log = l } }

// WithClock overrides the time source used for timestamps and the sweeper.
func WithClock(now func() time.Time) Option { return func(b *Broker) { b.now = now } }

// Broker is the only writer of interaction requests.
type Broker struct {
	requests *store.Store
	sessions *session.Registry
	cfg      Config

	// deliverMu orders pushes against client catch-up so that a connecting
	// channel never sees request_completed before the matching new_request.
	deliverMu sync.Mutex

	admission Admission
	history   History
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
}

// New creates a broker over the given store and registry.
func New(requests *store.Store, sessions *session.Registry, cfg Config, opts ...Option) *Broker {
	def := DefaultConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	b := &Broker{
		requests: requests,
		sessions: sessions,
		cfg:      cfg,
		log:      logger.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateParams are the caller-supplied fields of a new request.
type CreateParams struct {
	Type           domain.WidgetType
	SessionID      string
	Input          json.RawMessage
	TimeoutSeconds int
}

// CreateRequest stores a pending request and pushes it to the session's channels.
func (b *Broker) CreateRequest(ctx context.Context, p CreateParams) (domain.InteractionRequest, error) {
	if err := b.validateCreate(ctx, p); err != nil {
		return domain.InteractionRequest{}, err
	}

	timeout := b.cfg.DefaultTimeout
	if p.TimeoutSeconds > 0 {
		timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}

	now := b.now().UTC()
	req := domain.InteractionRequest{
		ID:        uuid.NewString(),
		Type:      p.Type,
		SessionID: p.SessionID,
		Input:     p.Input,
		Status:    domain.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
	}

	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	if err := b.requests.Insert(req); err != nil {
		return domain.InteractionRequest{}, fmt.Errorf("failed to store request: %w", err)
	}

	b.record(ctx, req, domain.HistoryCreated)
	b.metrics.RequestCreated(string(req.Type))
	b.log.Info("request created",
		zap.String("request_id", req.ID),
		zap.String("session_id", req.SessionID),
		zap.String("type", string(req.Type)),
		zap.Duration("timeout", timeout),
	)

	b.broadcast(req.SessionID, domain.Event{Type: domain.EventTypeNewRequest, Request: req})
	return req.Clone(), nil
}

func (b *Broker) validateCreate(ctx context.Context, p CreateParams) error {
	var missing []string
	if p.Type == "" {
		missing = append(missing, "type")
	}
	if p.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if domain.IsEmptyJSON(p.Input) {
		missing = append(missing, "input")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	if !json.Valid(p.Input) {
		return fmt.Errorf("%w: input is not valid JSON", domain.ErrInvalidInput)
	}
	if p.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeout must not be negative", domain.ErrInvalidInput)
	}
	if int64(p.TimeoutSeconds) > domain.MaxTimeoutSeconds {
		return fmt.Errorf("%w: timeout must not exceed %d seconds", domain.ErrInvalidInput, domain.MaxTimeoutSeconds)
	}

	if b.admission == nil {
		return nil
	}

	var input any
	_ = json.Unmarshal(p.Input, &input)
	timeout := p.TimeoutSeconds
	if timeout == 0 {
		timeout = int(b.cfg.DefaultTimeout / time.Second)
	}
	reasons, err := b.admission.Evaluate(ctx, policy.Input{
		Type:       string(p.Type),
		SessionID:  p.SessionID,
		Timeout:    timeout,
		MaxTimeout: int(b.cfg.MaxTimeout / time.Second),
		Input:      input,
	})
	if err != nil {
		return fmt.Errorf("admission check failed: %w", err)
	}
	if len(reasons) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(reasons, "; "))
	}
	return nil
}

// SubmitResponse completes a pending request with output. The first response wins.
func (b *Broker) SubmitResponse(ctx context.Context, id string, output json.RawMessage) (domain.InteractionRequest, error) {
	if domain.IsEmptyJSON(output) {
		return domain.InteractionRequest{}, fmt.Errorf("%w: missing output", domain.ErrInvalidInput)
	}
	if !json.Valid(output) {
		return domain.InteractionRequest{}, fmt.Errorf("%w: output is not valid JSON", domain.ErrInvalidInput)
	}

	req, err := b.requests.Complete(id, output, b.now())
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			b.metrics.ResponseConflict()
			b.log.Debug("late response rejected", zap.String("request_id", id))
		}
		return domain.InteractionRequest{}, err
	}

	b.finished(ctx, req, domain.HistoryCompleted)
	return req, nil
}

// CancelRequest moves a pending request to the error state.
func (b *Broker) CancelRequest(ctx context.Context, id, reason string) (domain.InteractionRequest, error) {
	if reason == "" {
		reason = "cancelled"
	}
	req, err := b.requests.Finish(id, domain.StatusError, reason, b.now())
	if err != nil {
		return domain.InteractionRequest{}, err
	}

	b.finished(ctx, req, domain.HistoryCancelled)
	return req, nil
}

// GetRequest returns the current snapshot of a request.
func (b *Broker) GetRequest(_ context.Context, id string) (domain.InteractionRequest, error) {
	return b.requests.Get(id)
}

// SessionRequests returns every retained request of a session in creation order.
func (b *Broker) SessionRequests(_ context.Context, sessionID string) []domain.InteractionRequest {
	return b.requests.ListSession(sessionID)
}

// History returns the audit trail of a request. Evicted requests keep their trail.
func (b *Broker) History(ctx context.Context, id string) ([]domain.HistoryEvent, error) {
	if b.history == nil {
		if _, err := b.requests.Get(id); err != nil {
			return nil, err
		}
		return []domain.HistoryEvent{}, nil
	}

	events, err := b.history.ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		if _, err := b.requests.Get(id); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// SessionHistory returns the latest limit audit events of a session, oldest first.
// Without a history backend it returns an empty trail.
func (b *Broker) SessionHistory(ctx context.Context, sessionID string, limit int) ([]domain.HistoryEvent, error) {
	if b.history == nil {
		return []domain.HistoryEvent{}, nil
	}
	return b.history.ListSessionEvents(ctx, sessionID, limit)
}

// OnClientConnect registers ch and replays the session's pending requests to it in creation order.
func (b *Broker) OnClientConnect(sessionID string, ch session.Channel) error {
	if sessionID == "" {
		return fmt.Errorf("%w: missing sessionId", domain.ErrInvalidInput)
	}

	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.sessions.Add(sessionID, ch)
	pending := b.requests.ListPending(sessionID)
	b.log.Info("client connected",
		zap.String("session_id", sessionID),
		zap.String("channel_id", ch.ID()),
		zap.Int("pending", len(pending)),
	)

	for _, req := range pending {
		data, err := json.Marshal(domain.Event{Type: domain.EventTypeNewRequest, Request: req})
		if err != nil {
			b.log.Error("failed to encode catch-up event", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		b.send(ch, sessionID, data)
	}
	return nil
}

// OnClientDisconnect deregisters ch.
func (b *Broker) OnClientDisconnect(sessionID string, ch session.Channel) {
	b.sessions.Remove(sessionID, ch)
	b.log.Info("client disconnected", zap.String("session_id", sessionID), zap.String("channel_id", ch.ID()))
}

// Stats is a point-in-time view used by the health endpoint.
type Stats struct {
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
	Pending     int `json:"pending"`
	Retained    int `json:"retained"`
}

// Stats returns current counts.
func (b *Broker) Stats() Stats {
	pending, total := b.requests.Stats()
	return Stats{
		Sessions:    b.sessions.SessionCount(),
		Connections: b.sessions.ChannelCount(),
		Pending:     pending,
		Retained:    total,
	}
}

func (b *Broker) finished(ctx context.Context, req domain.InteractionRequest, kind domain.HistoryEventType) {
	b.record(ctx, req, kind)
	b.metrics.RequestFinished(string(req.Status))
	b.log.Info("request finished",
		zap.String("request_id", req.ID),
		zap.String("session_id", req.SessionID),
		zap.String("status", string(req.Status)),
	)

	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	b.broadcast(req.SessionID, domain.Event{Type: domain.EventTypeRequestCompleted, Request: req})
}

// record appends to the audit trail. Failures never fail the caller.
func (b *Broker) record(ctx context.Context, req domain.InteractionRequest, kind domain.HistoryEventType) {
	if b.history == nil {
		return
	}
	event := domain.HistoryEvent{
		EventID:   uuid.NewString(),
		RequestID: req.ID,
		SessionID: req.SessionID,
		Type:      kind,
		Status:    req.Status,
		Ts:        b.now().UTC(),
	}
	if err := b.history.RecordEvent(context.WithoutCancel(ctx), event); err != nil {
		b.log.Warn("failed to record history event",
			zap.String("request_id", req.ID),
			zap.String("event", string(kind)),
			zap.Error(err),
		)
	}
}

// broadcast pushes evt to a snapshot of the session's channels.
func (b *Broker) broadcast(sessionID string, evt domain.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.Error("failed to encode event", zap.String("request_id", evt.Request.ID), zap.Error(err))
		return
	}
	for _, ch := range b.sessions.Channels(sessionID) {
		b.send(ch, sessionID, data)
	}
}

// send delivers to one channel, isolating errors and panics.
func (b *Broker) send(ch session.Channel, sessionID string, data []byte) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("channel panicked: %v", r)
			}
		}()
		return ch.Send(data)
	}()
	if err != nil {
		b.metrics.DeliveryFailed()
		b.log.Warn("push delivery failed",
			zap.String("session_id", sessionID),
			zap.String("channel_id", ch.ID()),
			zap.Error(err),
		)
	}
}
