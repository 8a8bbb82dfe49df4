// Package store holds the authoritative in-memory table of interaction requests.
// Every state transition of a request happens here, under one lock.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/agentui/internal/domain"
)

type entry struct {
	req  domain.InteractionRequest
	done chan struct{}
}

// Store is a concurrency-safe request table. Returned requests are copies.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*entry
	order    []string // creation order
}

// New creates an empty store.
func New() *Store {
	return &Store{
		requests: make(map[string]*entry),
	}
}

// Insert adds a pending request. It never overwrites an existing id.
func (s *Store) Insert(req domain.InteractionRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	if req.Status != domain.StatusPending {
		return fmt.Errorf("%w: new request must be pending, got %s", domain.ErrInvalidInput, req.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, req.ID)
	}
	s.requests[req.ID] = &entry{
		req:  req.Clone(),
		done: make(chan struct{}),
	}
	s.order = append(s.order, req.ID)
	return nil
}

// Get returns a snapshot of the request.
func (s *Store) Get(id string) (domain.InteractionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.requests[id]
	if !ok {
		return domain.InteractionRequest{}, domain.ErrNotFound
	}
	return e.req.Clone(), nil
}

// Done returns a channel that is closed once the request reaches a terminal state.
func (s *Store) Done(id string) (<-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.done, nil
}

// Complete moves a pending request to completed and stores its output.
// Check and set happen in one critical section, so among concurrent callers
// for the same id exactly one succeeds and the rest get ErrAlreadyTerminal.
func (s *Store) Complete(id string, output []byte, now time.Time) (domain.InteractionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.pendingEntry(id)
	if err != nil {
		return domain.InteractionRequest{}, err
	}

	out := make([]byte, len(output))
	copy(out, output)
	e.req.Output = out
	e.req.Status = domain.StatusCompleted
	e.finish(now)

	return e.req.Clone(), nil
}

// Finish moves a pending request to the timeout or error state. No output is stored.
func (s *Store) Finish(id string, status domain.RequestStatus, reason string, now time.Time) (domain.InteractionRequest, error) {
	if status != domain.StatusTimeout && status != domain.StatusError {
		return domain.InteractionRequest{}, fmt.Errorf("%w: cannot finish with status %s", domain.ErrInvalidInput, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.pendingEntry(id)
	if err != nil {
		return domain.InteractionRequest{}, err
	}

	e.req.Status = status
	e.req.Error = reason
	e.finish(now)

	return e.req.Clone(), nil
}

// ListPending returns the pending requests of a session in creation order.
func (s *Store) ListPending(sessionID string) []domain.InteractionRequest {
	return s.list(func(r *domain.InteractionRequest) bool {
		return r.SessionID == sessionID && r.Status == domain.StatusPending
	})
}

// ListSession returns every retained request of a session in creation order.
func (s *Store) ListSession(sessionID string) []domain.InteractionRequest {
	return s.list(func(r *domain.InteractionRequest) bool {
		return r.SessionID == sessionID
	})
}

// Overdue returns the ids of pending requests whose expiry has passed.
func (s *Store) Overdue(now time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.order {
		if e := s.requests[id]; e.req.Expired(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Evict removes terminal requests that completed before the cutoff and
// returns what was removed. Pending requests are never evicted.
func (s *Store) Evict(before time.Time) []domain.InteractionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []domain.InteractionRequest
	kept := s.order[:0]
	for _, id := range s.order {
		e := s.requests[id]
		if e.req.Status.IsTerminal() && e.req.CompletedAt != nil && e.req.CompletedAt.Before(before) {
			evicted = append(evicted, e.req.Clone())
			delete(s.requests, id)
			continue
		}
		kept = append(kept, id)
	}
	// Clear the tail so evicted ids are not retained by the backing array.
	for i := len(kept); i < len(s.order); i++ {
		s.order[i] = ""
	}
	s.order = kept
	return evicted
}

// Stats returns the number of pending requests and the number of retained requests.
func (s *Store) Stats() (pending, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.requests {
		if e.req.Status == domain.StatusPending {
			pending++
		}
	}
	return pending, len(s.requests)
}

func (s *Store) list(match func(*domain.InteractionRequest) bool) []domain.InteractionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InteractionRequest, 0)
	for _, id := range s.order {
		e := s.requests[id]
		if match(&e.req) {
			out = append(out, e.req.Clone())
		}
	}
	return out
}

// pendingEntry must be called with s.mu held for writing.
func (s *Store) pendingEntry(id string) (*entry, error) {
	e, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if e.req.Status.IsTerminal() {
		return nil, domain.ErrAlreadyTerminal
	}
	return e, nil
}

func (e *entry) finish(now time.Time) {
	completedAt := now.UTC()
	e.req.CompletedAt = &completedAt
	close(e.done)
}
