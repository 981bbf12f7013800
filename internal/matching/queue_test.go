package matching

import (
	"sync"
	"testing"
	"time"
)

func anyPartner(string) bool { return false }

func TestMatch_EnqueuesWhenEmpty(t *testing.T) {
	q := NewQueue()

	outcome, _ := q.Match("alice", anyPartner)
	if outcome != Waiting {
		t.Fatalf("expected Waiting, got %v", outcome)
	}
	if !q.Contains("alice") {
		t.Error("alice should be queued")
	}
	if q.Len() != 1 {
		t.Errorf("expected queue length 1, got %d", q.Len())
	}
}

func TestMatch_PairsWithWaiting(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)

	outcome, partner := q.Match("bob", func(string) bool { return true })
	if outcome != Matched {
		t.Fatalf("expected Matched, got %v", outcome)
	}
	if partner.ID != "alice" {
		t.Errorf("expected partner alice, got %q", partner.ID)
	}
	if q.Contains("alice") {
		t.Error("alice should have been removed from the queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestMatch_FIFOTieBreak(t *testing.T) {
	q := NewQueue()
	q.Match("first", anyPartner)
	q.Match("second", anyPartner)
	q.Match("third", anyPartner)

	outcome, partner := q.Match("newcomer", func(string) bool { return true })
	if outcome != Matched {
		t.Fatalf("expected Matched, got %v", outcome)
	}
	if partner.ID != "first" {
		t.Errorf("expected oldest entry (first), got %q", partner.ID)
	}
}

func TestMatch_SkipsIneligible(t *testing.T) {
	q := NewQueue()
	q.Match("blocked", anyPartner)
	q.Match("ok", anyPartner)

	outcome, partner := q.Match("alice", func(id string) bool { return id != "blocked" })
	if outcome != Matched {
		t.Fatalf("expected Matched, got %v", outcome)
	}
	if partner.ID != "ok" {
		t.Errorf("expected partner ok, got %q", partner.ID)
	}
	if !q.Contains("blocked") {
		t.Error("blocked should remain queued")
	}
}

func TestMatch_AlreadyWaiting(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)

	outcome, _ := q.Match("alice", anyPartner)
	if outcome != AlreadyWaiting {
		t.Fatalf("expected AlreadyWaiting, got %v", outcome)
	}
	if q.Len() != 1 {
		t.Errorf("expected queue length 1, got %d", q.Len())
	}
}

func TestMatch_ReservedIsAlreadyWaiting(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)
	q.Match("bob", func(string) bool { return true })

	// Both alice and bob are reserved while room creation is in flight.
	outcome, _ := q.Match("alice", anyPartner)
	if outcome != AlreadyWaiting {
		t.Fatalf("expected AlreadyWaiting for reserved alice, got %v", outcome)
	}
	outcome, _ = q.Match("bob", anyPartner)
	if outcome != AlreadyWaiting {
		t.Fatalf("expected AlreadyWaiting for reserved bob, got %v", outcome)
	}
}

func TestMatch_ReservedNotMatchable(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)
	q.Match("bob", func(string) bool { return true })

	// A third party must not be paired while the queue is otherwise empty.
	outcome, _ := q.Match("carol", func(string) bool { return true })
	if outcome != Waiting {
		t.Fatalf("expected Waiting, got %v", outcome)
	}
}

func TestReleasePair_AllowsRematch(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)
	q.Match("bob", func(string) bool { return true })
	q.ReleasePair("bob", "alice")

	outcome, _ := q.Match("alice", anyPartner)
	if outcome != Waiting {
		t.Fatalf("expected Waiting after release, got %v", outcome)
	}
}

func TestFailPair_RequeuesPartnerAtFront(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)
	time.Sleep(time.Millisecond)
	q.Match("carol", anyPartner)

	outcome, partner := q.Match("bob", func(id string) bool { return true })
	if outcome != Matched || partner.ID != "alice" {
		t.Fatalf("expected alice matched, got %v %q", outcome, partner.ID)
	}
	enqueuedAt := partner.EnqueuedAt

	q.FailPair("bob", partner)

	snap := q.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 queued entries, got %d", len(snap))
	}
	if snap[0].ID != "alice" {
		t.Errorf("expected alice back at the front, got %q", snap[0].ID)
	}
	if !snap[0].EnqueuedAt.Equal(enqueuedAt) {
		t.Error("alice should keep her original enqueue time")
	}
	if q.Contains("bob") {
		t.Error("initiator bob must not be re-enqueued")
	}
}

func TestRemove_Cancel(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)

	if !q.Remove("alice") {
		t.Fatal("expected Remove to report an entry removed")
	}
	if q.Remove("alice") {
		t.Error("second Remove should report nothing removed")
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestRemove_AfterClaimReturnsFalse(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)
	q.Match("bob", func(string) bool { return true })

	// Alice is claimed (reserved), not queued: cancellation loses the race.
	if q.Remove("alice") {
		t.Error("Remove should return false for a claimed entry")
	}
}

func TestMatch_ConcurrentNeverDoubleClaims(t *testing.T) {
	q := NewQueue()
	q.Match("target", anyPartner)

	const contenders = 32
	var wg sync.WaitGroup
	results := make([]Outcome, contenders)
	partners := make([]Entry, contenders)

	for i := 0; i < contenders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "contender-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			results[i], partners[i] = q.Match(id, func(string) bool { return true })
		}()
	}
	wg.Wait()

	claimed := 0
	for i := 0; i < contenders; i++ {
		if results[i] == Matched && partners[i].ID == "target" {
			claimed++
		}
	}
	if claimed != 1 {
		t.Fatalf("target claimed by %d contenders, want exactly 1", claimed)
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	q := NewQueue()
	q.Match("alice", anyPartner)

	snap := q.Snapshot()
	snap[0].ID = "mutated"

	if got := q.Snapshot()[0].ID; got != "alice" {
		t.Errorf("queue state mutated through snapshot: %q", got)
	}
}
