// Package room owns the lifecycle state of active two-party rooms: creation,
// activity tracking, end-once teardown, and idle detection. Per-room state is
// guarded independently of the matching queue so that message relay on one
// room never contends with a match being formed for unrelated users.
package room

import (
	"sync"
	"time"
)

// End reasons recorded when a room is torn down.
const (
	ReasonLeft         = "left"
	ReasonBlocked      = "blocked"
	ReasonDisconnected = "disconnected"
	ReasonAdmin        = "admin"
	ReasonTimeout      = "timeout"
)

// Room is one two-party chat session. The member pair is unordered; order is
// only used to resolve "self"/"other" per viewer.
type Room struct {
	ID        string
	MemberA   string
	MemberB   string
	CreatedAt time.Time

	mu           sync.Mutex
	active       bool
	lastActivity time.Time
	endedAt      time.Time
	endReason    string
}

// Partner returns the other member's identity, or "" if id is not a member.
func (r *Room) Partner(id string) string {
	if id == r.MemberA {
		return r.MemberB
	}
	if id == r.MemberB {
		return r.MemberA
	}
	return ""
}

// IsMember reports whether id is one of the room's two members.
func (r *Room) IsMember(id string) bool {
	return id == r.MemberA || id == r.MemberB
}

// Active reports whether the room has not yet ended.
func (r *Room) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Touch updates the room's last-activity timestamp. No-op on ended rooms.
func (r *Room) Touch() {
	r.mu.Lock()
	if r.active {
		r.lastActivity = time.Now()
	}
	r.mu.Unlock()
}

// LastActivity returns the room's last-activity timestamp.
func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// End marks the room ended with the given reason. Returns true exactly once;
// concurrent or repeated teardown attempts observe false and must not notify
// or persist again. An ended room never reactivates.
func (r *Room) End(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	r.active = false
	r.endedAt = time.Now()
	r.endReason = reason
	return true
}

// EndReason returns the recorded end reason, or "" while the room is active.
func (r *Room) EndReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endReason
}

// Table is the goroutine-safe registry of rooms, keyed by room ID.
type Table struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewTable creates an empty room table.
func NewTable() *Table {
	return &Table{rooms: make(map[string]*Room)}
}

// Add registers a freshly created, active room.
func (t *Table) Add(id, memberA, memberB string) *Room {
	now := time.Now()
	r := &Room{
		ID:           id,
		MemberA:      memberA,
		MemberB:      memberB,
		CreatedAt:    now,
		active:       true,
		lastActivity: now,
	}
	t.mu.Lock()
	t.rooms[id] = r
	t.mu.Unlock()
	return r
}

// Get returns the room for id, or nil if unknown (never created or evicted).
func (t *Table) Get(id string) *Room {
	t.mu.RLock()
	r := t.rooms[id]
	t.mu.RUnlock()
	return r
}

// Evict removes an ended room from the table. Active rooms are never evicted.
func (t *Table) Evict(id string) {
	t.mu.Lock()
	if r, ok := t.rooms[id]; ok && !r.Active() {
		delete(t.rooms, id)
	}
	t.mu.Unlock()
}

// ActiveCount returns the number of active rooms.
func (t *Table) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, r := range t.rooms {
		if r.Active() {
			n++
		}
	}
	return n
}

// IdleSince returns the active rooms whose last activity is older than
// cutoff. The result is a snapshot; the caller re-checks liveness via End.
func (t *Table) IdleSince(cutoff time.Time) []*Room {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var idle []*Room
	for _, r := range t.rooms {
		if r.Active() && r.LastActivity().Before(cutoff) {
			idle = append(idle, r)
		}
	}
	return idle
}
