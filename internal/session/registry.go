// Package session tracks which delivery channels are live for each session.
package session

import "sync"

// Channel is a live push connection for one session.
type Channel interface {
	ID() string
	// Send enqueues a message. It must not block on a slow peer.
	Send(data []byte) error
}

// Registry maps session ids to their channels in connection order.
type Registry struct {
	mu       sync.Mutex
	sessions map[string][]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string][]Channel),
	}
}

// Add registers a channel for a session. Adding the same channel twice is a no-op.
func (r *Registry) Add(sessionID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sessions[sessionID] {
		if existing.ID() == ch.ID() {
			return
		}
	}
	r.sessions[sessionID] = append(r.sessions[sessionID], ch)
}

// Remove deregisters a channel. The session entry is dropped once it has no channels.
func (r *Registry) Remove(sessionID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	kept := make([]Channel, 0, len(channels))
	for _, existing := range channels {
		if existing.ID() != ch.ID() {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(r.sessions, sessionID)
		return
	}
	r.sessions[sessionID] = kept
}

// Channels returns a snapshot of the session's channels.
func (r *Registry) Channels(sessionID string) []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := r.sessions[sessionID]
	out := make([]Channel, len(channels))
	copy(out, channels)
	return out
}

// SessionCount returns the number of sessions with at least one channel.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ChannelCount returns the number of live channels across all sessions.
func (r *Registry) ChannelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, channels := range r.sessions {
		n += len(channels)
	}
	return n
}
