// Package session tracks which user identities are currently connected and
// maps each to its transport handle, room reference, and last-activity
// timestamp. The registry is the single source of truth for "who is online";
// every component that needs to push an event to a user looks the handle up
// here rather than caching it.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyConnected is returned by Register when the identity already has a
// live session. A second connection for the same wallet is refused rather
// than displacing the first.
var ErrAlreadyConnected = errors.New("session: identity already connected")

// Sender is the transport handle owned by a session. It is implemented by the
// WebSocket connection; tests substitute a fake.
type Sender interface {
	// Send pushes one encoded event frame to the client.
	Send(data []byte) error
	// Close terminates the underlying transport.
	Close() error
}

// UserSession is the registry's record for one connected identity.
type UserSession struct {
	ID          string // wallet address (opaque stable identifier)
	Sender      Sender
	ConnectedAt time.Time

	mu         sync.Mutex
	roomID     string
	lastActive time.Time
}

// RoomID returns the session's current room reference, or "" if not in a room.
func (s *UserSession) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// SetRoomID sets or clears the session's room reference.
func (s *UserSession) SetRoomID(roomID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()
}

// LastActive returns the session's last-activity timestamp.
func (s *UserSession) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Touch updates the session's last-activity timestamp to now.
func (s *UserSession) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Registry is a goroutine-safe map of connected sessions keyed by identity.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*UserSession
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*UserSession)}
}

// Register records a new session for id with the given transport handle.
// Returns ErrAlreadyConnected if a session for id already exists.
func (r *Registry) Register(id string, sender Sender) (*UserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return nil, ErrAlreadyConnected
	}

	now := time.Now()
	s := &UserSession{
		ID:          id,
		Sender:      sender,
		ConnectedAt: now,
		lastActive:  now,
	}
	r.sessions[id] = s
	return s, nil
}

// Unregister removes the session for id and returns it, or nil if absent.
// The caller is responsible for downstream teardown (room, queue) using the
// returned session.
func (r *Registry) Unregister(id string) *UserSession {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	return s
}

// Lookup returns the session for id, or nil if not connected.
func (r *Registry) Lookup(id string) *UserSession {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()
	return s
}

// Touch updates the last-activity timestamp for id. No-op if not connected.
func (r *Registry) Touch(id string) {
	if s := r.Lookup(id); s != nil {
		s.Touch()
	}
}

// Count returns the current number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.sessions)
	r.mu.RUnlock()
	return n
}

// ListStale returns the identities of sessions whose last activity is older
// than olderThan. The result is a snapshot; sessions may change concurrently.
func (r *Registry) ListStale(olderThan time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []string
	for id, s := range r.sessions {
		if s.LastActive().Before(olderThan) {
			stale = append(stale, id)
		}
	}
	return stale
}

// All returns a snapshot of all current sessions. The returned slice is safe
// to iterate without holding the registry lock.
func (r *Registry) All() []*UserSession {
	r.mu.RLock()
	out := make([]*UserSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	return out
}
