// Package matching implements the waiting pool of users seeking a chat
// partner and the atomic pairing step the matcher runs against it. A single
// mutex guards every queue-state transition, so two concurrent match requests
// can never both claim the same third party and an identity can never be in
// the queue twice.
package matching

import (
	"sync"
	"time"
)

// Entry is a user waiting in the queue.
type Entry struct {
	ID         string
	EnqueuedAt time.Time
}

// Outcome is the result of an atomic Match call.
type Outcome int

const (
	// Waiting: no eligible partner was found; the caller was enqueued.
	Waiting Outcome = iota
	// Matched: an eligible partner was removed from the queue and both
	// parties are reserved pending room creation.
	Matched
	// AlreadyWaiting: the caller is already queued or reserved.
	AlreadyWaiting
)

// Queue is the FIFO waiting pool. Pairing removes entries strictly
// oldest-first among eligible candidates, which makes the tie-break
// deterministic and testable.
//
// A reservation set keeps a freshly paired couple ineligible for further
// matching while room creation persists outside the queue lock. Reservations
// are released on success (the pair now holds a room) or converted back into
// a queue entry on failure.
type Queue struct {
	mu       sync.Mutex
	order    []Entry
	queued   map[string]struct{}
	reserved map[string]struct{}
}

// NewQueue creates an empty matching queue.
func NewQueue() *Queue {
	return &Queue{
		queued:   make(map[string]struct{}),
		reserved: make(map[string]struct{}),
	}
}

// Match atomically pairs id with the earliest-enqueued waiting user accepted
// by eligible, or enqueues id if none qualifies. On Matched the partner entry
// has been removed from the queue and both id and the partner are reserved;
// the caller must follow up with ReleasePair or FailPair once room creation
// resolves.
func (q *Queue) Match(id string, eligible func(partner string) bool) (Outcome, Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[id]; ok {
		return AlreadyWaiting, Entry{}
	}
	if _, ok := q.reserved[id]; ok {
		return AlreadyWaiting, Entry{}
	}

	for i, e := range q.order {
		if e.ID == id {
			continue // defensive; queued check above already excludes this
		}
		if !eligible(e.ID) {
			continue
		}

		// Claim the partner: remove from the queue, reserve both sides.
		q.order = append(q.order[:i:i], q.order[i+1:]...)
		delete(q.queued, e.ID)
		q.reserved[id] = struct{}{}
		q.reserved[e.ID] = struct{}{}
		return Matched, e
	}

	q.order = append(q.order, Entry{ID: id, EnqueuedAt: time.Now()})
	q.queued[id] = struct{}{}
	return Waiting, Entry{}
}

// ReleasePair clears the reservations of a successfully roomed pair.
func (q *Queue) ReleasePair(a, b string) {
	q.mu.Lock()
	delete(q.reserved, a)
	delete(q.reserved, b)
	q.mu.Unlock()
}

// FailPair undoes a failed pairing: the reservation of both sides is cleared
// and the former queue member is returned to the front of the queue with its
// original enqueue time, so a persistence hiccup does not cost it its place.
// The initiating side (a) is not re-enqueued; it receives a retryable error.
func (q *Queue) FailPair(a string, partner Entry) {
	q.mu.Lock()
	delete(q.reserved, a)
	delete(q.reserved, partner.ID)
	if _, ok := q.queued[partner.ID]; !ok {
		q.order = append([]Entry{partner}, q.order...)
		q.queued[partner.ID] = struct{}{}
	}
	q.mu.Unlock()
}

// Remove deletes id from the queue. Returns true if an entry was removed,
// false if id was not queued (including the case where a concurrent match
// already claimed it, the race outcome callers must distinguish).
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[id]; !ok {
		return false
	}
	delete(q.queued, id)
	for i, e := range q.order {
		if e.ID == id {
			q.order = append(q.order[:i:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether id is currently queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	_, ok := q.queued[id]
	q.mu.Unlock()
	return ok
}

// Len returns the number of waiting users.
func (q *Queue) Len() int {
	q.mu.Lock()
	n := len(q.order)
	q.mu.Unlock()
	return n
}

// Snapshot returns the queue contents oldest-first. Used by the admin
// surface; the result is a copy and may be stale by the time it is read.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	out := make([]Entry, len(q.order))
	copy(out, q.order)
	q.mu.Unlock()
	return out
}
